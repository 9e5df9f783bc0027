package data

import (
	"context"
	"errors"

	"panel-service/internal/biz"
	"panel-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// vpsRepo 实现 biz.VpsRepo 接口
type vpsRepo struct {
	data *Data
	log  *log.Helper
}

// NewVpsRepo 创建 VPS repo
func NewVpsRepo(data *Data, logger log.Logger) biz.VpsRepo {
	return &vpsRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// CreateVps 创建 VPS 记录（独立事务，远端调用前提交）
func (r *vpsRepo) CreateVps(ctx context.Context, v *biz.Vps) error {
	m := &model.Vps{
		VpsID:          v.ID,
		UserID:         v.UserID,
		SubscriptionID: v.SubscriptionID,
		Name:           v.Name,
		Distribution:   v.Distribution,
		MemoryMB:       v.MemoryMB,
		DiskMB:         v.DiskMB,
		CPUCores:       v.CPUCores,
		Status:         v.Status,
		Node:           v.Node,
		Vmid:           v.Vmid,
		StoragePool:    v.StoragePool,
	}
	if err := r.data.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	v.CreatedAt = m.CreatedAt
	return nil
}

// GetVps 获取 VPS，不存在时返回 (nil, nil)
func (r *vpsRepo) GetVps(ctx context.Context, vpsID string) (*biz.Vps, error) {
	var m model.Vps
	if err := r.data.db.WithContext(ctx).Where("vps_id = ?", vpsID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return vpsToBiz(&m), nil
}

// LinkSubscription 将 VPS 关联到订阅（单条 UPDATE）
func (r *vpsRepo) LinkSubscription(ctx context.Context, vpsID, subscriptionID string) error {
	return r.data.db.WithContext(ctx).Model(&model.Vps{}).
		Where("vps_id = ?", vpsID).
		Update("subscription_id", subscriptionID).Error
}

// UpdateVpsStatus 更新 VPS 状态
func (r *vpsRepo) UpdateVpsStatus(ctx context.Context, vpsID, status string) error {
	return r.data.db.WithContext(ctx).Model(&model.Vps{}).
		Where("vps_id = ?", vpsID).
		Update("status", status).Error
}

// ListVpsBySubscription 列出订阅下的全部 VPS
func (r *vpsRepo) ListVpsBySubscription(ctx context.Context, subscriptionID string) ([]*biz.Vps, error) {
	var ms []*model.Vps
	if err := r.data.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).Find(&ms).Error; err != nil {
		return nil, err
	}
	instances := make([]*biz.Vps, 0, len(ms))
	for _, m := range ms {
		instances = append(instances, vpsToBiz(m))
	}
	return instances, nil
}

// DeleteVps 删除 VPS 记录
func (r *vpsRepo) DeleteVps(ctx context.Context, vpsID string) error {
	return r.data.db.WithContext(ctx).
		Where("vps_id = ?", vpsID).
		Delete(&model.Vps{}).Error
}

// MaxVmid 返回当前已分配的最大 VMID，没有记录时返回 0
func (r *vpsRepo) MaxVmid(ctx context.Context) (int64, error) {
	var maxVmid int64
	err := r.data.db.WithContext(ctx).Model(&model.Vps{}).
		Select("COALESCE(MAX(vmid), 0)").
		Scan(&maxVmid).Error
	if err != nil {
		return 0, err
	}
	return maxVmid, nil
}

func vpsToBiz(m *model.Vps) *biz.Vps {
	return &biz.Vps{
		ID:             m.VpsID,
		UserID:         m.UserID,
		SubscriptionID: m.SubscriptionID,
		Name:           m.Name,
		Distribution:   m.Distribution,
		MemoryMB:       m.MemoryMB,
		DiskMB:         m.DiskMB,
		CPUCores:       m.CPUCores,
		Status:         m.Status,
		Node:           m.Node,
		Vmid:           m.Vmid,
		StoragePool:    m.StoragePool,
		CreatedAt:      m.CreatedAt,
	}
}
