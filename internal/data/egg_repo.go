package data

import (
	"context"
	"encoding/json"
	"errors"

	"panel-service/internal/biz"
	"panel-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// eggRepo 实现 biz.EggRepo 接口
type eggRepo struct {
	data *Data
	log  *log.Helper
}

// NewEggRepo 创建模板 repo
func NewEggRepo(data *Data, logger log.Logger) biz.EggRepo {
	return &eggRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// GetEgg 获取分类下的模板（含启动变量），不存在或分类不匹配时返回 (nil, nil)
func (r *eggRepo) GetEgg(ctx context.Context, nestID, eggID int64) (*biz.Egg, error) {
	var m model.Egg
	if err := r.data.db.WithContext(ctx).Where("egg_id = ? AND nest_id = ?", eggID, nestID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var vars []*model.EggVariable
	if err := r.data.db.WithContext(ctx).Where("egg_id = ?", eggID).Find(&vars).Error; err != nil {
		return nil, err
	}

	var images []string
	if m.DockerImages != "" {
		if err := json.Unmarshal([]byte(m.DockerImages), &images); err != nil {
			r.log.Warnf("Invalid docker_images json: egg_id=%d, error=%v", eggID, err)
		}
	}

	egg := &biz.Egg{
		ID:           m.EggID,
		NestID:       m.NestID,
		Name:         m.Name,
		DockerImages: images,
		Startup:      m.Startup,
		Variables:    make([]biz.EggVariable, 0, len(vars)),
	}
	for _, v := range vars {
		egg.Variables = append(egg.Variables, biz.EggVariable{
			EnvVariable:  v.EnvVariable,
			DefaultValue: v.DefaultValue,
		})
	}
	return egg, nil
}
