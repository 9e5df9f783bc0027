package data

import (
	"context"
	"errors"
	"time"

	"panel-service/internal/biz"
	"panel-service/internal/constants"
	"panel-service/internal/data/model"
	panelErrors "panel-service/internal/errors"

	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// subscriptionRepo 实现 biz.SubscriptionRepo 接口
type subscriptionRepo struct {
	data *Data
	log  *log.Helper
}

// NewSubscriptionRepo 创建订阅 repo
func NewSubscriptionRepo(data *Data, logger log.Logger) biz.SubscriptionRepo {
	return &subscriptionRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// EnsureSubscription 幂等创建订阅
// external_id 唯一索引 + ON CONFLICT DO NOTHING：并发重复投递只有一条落库，
// 冲突方回读已存在的记录
func (r *subscriptionRepo) EnsureSubscription(ctx context.Context, sub *biz.Subscription) (*biz.Subscription, bool, error) {
	m := &model.Subscription{
		SubscriptionID: uuid.New().String(),
		UserID:         sub.UserID,
		ExternalID:     sub.ExternalID,
		ExternalStatus: sub.ExternalStatus,
		PlanID:         sub.PlanID,
		Interval:       sub.Interval,
		BillingAmount:  sub.BillingAmount,
		IsCreditsBased: sub.IsCreditsBased,
		EndsAt:         sub.EndsAt,
		NextBillingAt:  sub.NextBillingAt,
	}

	result := r.data.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).
		Create(m)
	if result.Error != nil {
		return nil, false, pkgErrors.WrapErrorWithLang(ctx, result.Error, panelErrors.ErrCodeSubscriptionCreateFailed)
	}
	created := result.RowsAffected > 0

	if !created {
		// 冲突路径：回读持有该 external_id 的记录
		existing, err := r.GetSubscriptionByExternalID(ctx, sub.ExternalID)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeSubscriptionCreateFailed)
		}
		return existing, false, nil
	}

	return subscriptionToBiz(m), true, nil
}

// GetSubscription 按本地 ID 查询，不存在时返回 (nil, nil)
func (r *subscriptionRepo) GetSubscription(ctx context.Context, subscriptionID string) (*biz.Subscription, error) {
	var m model.Subscription
	if err := r.data.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return subscriptionToBiz(&m), nil
}

// GetSubscriptionByExternalID 按外部引用 ID 查询，不存在时返回 (nil, nil)
func (r *subscriptionRepo) GetSubscriptionByExternalID(ctx context.Context, externalID string) (*biz.Subscription, error) {
	var m model.Subscription
	if err := r.data.db.WithContext(ctx).Where("external_id = ?", externalID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return subscriptionToBiz(&m), nil
}

// UpdateStatus 更新外部状态与取消生效时间
func (r *subscriptionRepo) UpdateStatus(ctx context.Context, subscriptionID, status string, endsAt *time.Time) error {
	return r.data.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("subscription_id = ?", subscriptionID).
		Updates(map[string]interface{}{
			"external_status": status,
			"ends_at":         endsAt,
		}).Error
}

// SetNextBillingAt 更新下次续费时间
func (r *subscriptionRepo) SetNextBillingAt(ctx context.Context, subscriptionID string, next *time.Time) error {
	return r.data.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("subscription_id = ?", subscriptionID).
		Update("next_billing_at", next).Error
}

// DeleteSubscription 删除订阅记录（开通失败补偿路径）
func (r *subscriptionRepo) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	return r.data.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Delete(&model.Subscription{}).Error
}

// ListDueCreditRenewals 列出到期待续费的信用点订阅
func (r *subscriptionRepo) ListDueCreditRenewals(ctx context.Context, before time.Time, limit int) ([]*biz.Subscription, error) {
	var ms []*model.Subscription
	err := r.data.db.WithContext(ctx).
		Where("is_credits_based = ? AND next_billing_at IS NOT NULL AND next_billing_at <= ?", true, before).
		Where("external_status IN ?", []string{constants.SubscriptionStatusActive, constants.SubscriptionStatusPastDue}).
		Order("next_billing_at ASC").
		Limit(limit).
		Find(&ms).Error
	if err != nil {
		return nil, err
	}
	subs := make([]*biz.Subscription, 0, len(ms))
	for _, m := range ms {
		subs = append(subs, subscriptionToBiz(m))
	}
	return subs, nil
}

// ListExpiredCancellations 列出已过取消生效时间、资源尚未回收的订阅
func (r *subscriptionRepo) ListExpiredCancellations(ctx context.Context, now time.Time, limit int) ([]*biz.Subscription, error) {
	serverExists := r.data.db.Model(&model.GameServer{}).Select("1").
		Where("game_server.subscription_id = subscription.subscription_id")
	vpsExists := r.data.db.Model(&model.Vps{}).Select("1").
		Where("vps.subscription_id = subscription.subscription_id")

	var ms []*model.Subscription
	err := r.data.db.WithContext(ctx).
		Where("external_status = ? AND ends_at IS NOT NULL AND ends_at <= ?", constants.SubscriptionStatusCanceled, now).
		Where("EXISTS (?) OR EXISTS (?)", serverExists, vpsExists).
		Order("ends_at ASC").
		Limit(limit).
		Find(&ms).Error
	if err != nil {
		return nil, err
	}
	subs := make([]*biz.Subscription, 0, len(ms))
	for _, m := range ms {
		subs = append(subs, subscriptionToBiz(m))
	}
	return subs, nil
}

func subscriptionToBiz(m *model.Subscription) *biz.Subscription {
	return &biz.Subscription{
		ID:             m.SubscriptionID,
		UserID:         m.UserID,
		ExternalID:     m.ExternalID,
		ExternalStatus: m.ExternalStatus,
		PlanID:         m.PlanID,
		Interval:       m.Interval,
		BillingAmount:  m.BillingAmount,
		IsCreditsBased: m.IsCreditsBased,
		EndsAt:         m.EndsAt,
		NextBillingAt:  m.NextBillingAt,
		CreatedAt:      m.CreatedAt,
	}
}
