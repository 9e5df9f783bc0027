package data

import (
	"context"
	"errors"

	"panel-service/internal/biz"
	"panel-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// planRepo 实现 biz.PlanRepo 接口
type planRepo struct {
	data *Data
	log  *log.Helper
}

// NewPlanRepo 创建套餐 repo
func NewPlanRepo(data *Data, logger log.Logger) biz.PlanRepo {
	return &planRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// GetPlan 获取套餐，不存在时返回 (nil, nil)
func (r *planRepo) GetPlan(ctx context.Context, planID string) (*biz.Plan, error) {
	var m model.Plan
	if err := r.data.db.WithContext(ctx).Where("plan_id = ?", planID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return planToBiz(&m), nil
}

func planToBiz(m *model.Plan) *biz.Plan {
	return &biz.Plan{
		ID:                  m.PlanID,
		Name:                m.Name,
		ResourceType:        m.ResourceType,
		MemoryMB:            m.MemoryMB,
		DiskMB:              m.DiskMB,
		CPUPercent:          m.CPUPercent,
		IO:                  m.IO,
		SwapMB:              m.SwapMB,
		Price:               m.Price,
		Currency:            m.Currency,
		Interval:            m.Interval,
		IsCustom:            m.IsCustom,
		FirstPeriodDiscount: m.FirstPeriodDiscount,
		SalesDiscount:       m.SalesDiscount,
		ExternalPriceID:     m.ExternalPriceID,
		CreatedAt:           m.CreatedAt,
	}
}
