package biz

import (
	"context"
	"time"

	"panel-service/internal/constants"
	panelErrors "panel-service/internal/errors"
	"panel-service/internal/metrics"

	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// Subscription 订阅领域对象
type Subscription struct {
	ID             string
	UserID         string
	ExternalID     string
	ExternalStatus string
	PlanID         *string
	Interval       string
	BillingAmount  float64
	IsCreditsBased bool
	EndsAt         *time.Time
	NextBillingAt  *time.Time
	CreatedAt      time.Time
}

// SubscriptionRepo 订阅数据层接口（定义在 biz 层）
type SubscriptionRepo interface {
	// EnsureSubscription 按外部引用 ID 幂等创建：并发重复投递下靠唯一约束收敛，
	// 冲突时返回已存在的记录，created 为 false
	EnsureSubscription(ctx context.Context, sub *Subscription) (result *Subscription, created bool, err error)
	// GetSubscription 按本地 ID 查询，不存在时返回 (nil, nil)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	// GetSubscriptionByExternalID 按外部引用 ID 查询，不存在时返回 (nil, nil)
	GetSubscriptionByExternalID(ctx context.Context, externalID string) (*Subscription, error)
	// UpdateStatus 更新外部状态与取消生效时间
	UpdateStatus(ctx context.Context, subscriptionID, status string, endsAt *time.Time) error
	// SetNextBillingAt 更新信用点订阅的下次续费时间
	SetNextBillingAt(ctx context.Context, subscriptionID string, next *time.Time) error
	DeleteSubscription(ctx context.Context, subscriptionID string) error
	// ListDueCreditRenewals 列出到期待续费的信用点订阅（未取消、next_billing_at 已过）
	ListDueCreditRenewals(ctx context.Context, before time.Time, limit int) ([]*Subscription, error)
	// ListExpiredCancellations 列出已过取消生效时间的订阅
	ListExpiredCancellations(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)
}

// SubscriptionUseCase 订阅生命周期业务逻辑
type SubscriptionUseCase struct {
	repo      SubscriptionRepo
	gateway   PaymentGateway
	resources *ResourceUseCase
	log       *log.Helper
	metrics   *metrics.PanelMetrics
}

// NewSubscriptionUseCase 创建订阅 UseCase
func NewSubscriptionUseCase(
	repo SubscriptionRepo,
	gateway PaymentGateway,
	resources *ResourceUseCase,
	logger log.Logger,
) *SubscriptionUseCase {
	return &SubscriptionUseCase{
		repo:      repo,
		gateway:   gateway,
		resources: resources,
		log:       log.NewHelper(logger),
		metrics:   metrics.GetMetrics(),
	}
}

// Cancel 取消订阅
// immediate=true：立即取消并同步删除关联资源（逐资源尽力而为）
// immediate=false：周期末取消，资源运行到 ends_at 由定时任务回收
// 网关不可达时本地状态仍乐观更新，pendingSync=true 表示待网关侧对账
func (uc *SubscriptionUseCase) Cancel(ctx context.Context, subscriptionID string, immediate bool) (sub *Subscription, pendingSync bool, err error) {
	sub, err = uc.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, false, err
	}
	if sub == nil {
		return nil, false, pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeSubscriptionNotFound)
	}
	if sub.ExternalStatus != constants.SubscriptionStatusActive && sub.ExternalStatus != constants.SubscriptionStatusTrialing {
		return nil, false, pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeInvalidStatus)
	}

	if immediate {
		now := time.Now()
		if failed := uc.resources.DeleteForSubscription(ctx, sub.ID); failed > 0 {
			uc.log.Warnf("Immediate cancel left %d resources undeleted: subscription_id=%s", failed, sub.ID)
		}
		if err := uc.repo.UpdateStatus(ctx, sub.ID, constants.SubscriptionStatusCanceled, &now); err != nil {
			return nil, false, err
		}
		sub.ExternalStatus = constants.SubscriptionStatusCanceled
		sub.EndsAt = &now

		if !sub.IsCreditsBased {
			if err := uc.gateway.CancelSubscription(ctx, sub.ExternalID); err != nil {
				uc.log.Warnf("Gateway cancel failed, local state is authoritative: subscription_id=%s, error=%v", sub.ID, err)
				pendingSync = true
			}
		}
		if uc.metrics != nil {
			uc.metrics.SubscriptionCancelTotal.WithLabelValues("immediate").Inc()
		}
		return sub, pendingSync, nil
	}

	var endsAt *time.Time
	if sub.IsCreditsBased {
		// 信用点订阅没有网关侧对象，周期末即下次续费时间
		endsAt = sub.NextBillingAt
	} else {
		gs, err := uc.gateway.SetCancelAtPeriodEnd(ctx, sub.ExternalID, true)
		if err != nil {
			uc.log.Warnf("Gateway cancel-at-period-end failed, local state is authoritative: subscription_id=%s, error=%v", sub.ID, err)
			pendingSync = true
		} else if !gs.CurrentPeriodEnd.IsZero() {
			endsAt = &gs.CurrentPeriodEnd
		}
	}
	if endsAt == nil {
		// 网关不可达或周期末未知：按本地周期估算
		estimated := estimatePeriodEnd(sub)
		endsAt = &estimated
	}
	if err := uc.repo.UpdateStatus(ctx, sub.ID, constants.SubscriptionStatusCanceled, endsAt); err != nil {
		return nil, false, err
	}
	sub.ExternalStatus = constants.SubscriptionStatusCanceled
	sub.EndsAt = endsAt
	if uc.metrics != nil {
		uc.metrics.SubscriptionCancelTotal.WithLabelValues("period_end").Inc()
	}
	return sub, pendingSync, nil
}

// Resume 恢复周期末取消的订阅
// 仅当状态为 canceled 且 ends_at 在未来时有效
func (uc *SubscriptionUseCase) Resume(ctx context.Context, subscriptionID string) (sub *Subscription, pendingSync bool, err error) {
	sub, err = uc.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, false, err
	}
	if sub == nil {
		return nil, false, pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeSubscriptionNotFound)
	}
	if sub.ExternalStatus != constants.SubscriptionStatusCanceled {
		return nil, false, pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeInvalidStatus)
	}
	if sub.EndsAt == nil || !sub.EndsAt.After(time.Now()) {
		return nil, false, pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeResumeWindowExpired)
	}

	if !sub.IsCreditsBased {
		if _, err := uc.gateway.SetCancelAtPeriodEnd(ctx, sub.ExternalID, false); err != nil {
			uc.log.Warnf("Gateway resume failed, local state is authoritative: subscription_id=%s, error=%v", sub.ID, err)
			pendingSync = true
		}
	}
	if err := uc.repo.UpdateStatus(ctx, sub.ID, constants.SubscriptionStatusActive, nil); err != nil {
		return nil, false, err
	}
	sub.ExternalStatus = constants.SubscriptionStatusActive
	sub.EndsAt = nil
	if uc.metrics != nil {
		uc.metrics.SubscriptionResumeTotal.Inc()
	}
	return sub, pendingSync, nil
}

// SyncExternalStatus 将网关侧订阅状态同步到本地（webhook updated/deleted 路径）
// 只同步状态与 ends_at，绝不触发资源的开通或回收
func (uc *SubscriptionUseCase) SyncExternalStatus(ctx context.Context, gs *GatewaySubscription) error {
	sub, err := uc.repo.GetSubscriptionByExternalID(ctx, gs.ID)
	if err != nil {
		return err
	}
	if sub == nil {
		// 本地没有镜像：可能是本面板之外创建的订阅，记录后忽略
		uc.log.Warnf("Status sync for unknown subscription: external_id=%s, status=%s", gs.ID, gs.Status)
		return nil
	}

	var endsAt *time.Time
	if gs.CancelAtPeriodEnd && !gs.CurrentPeriodEnd.IsZero() {
		endsAt = &gs.CurrentPeriodEnd
	}
	if gs.Status == constants.SubscriptionStatusCanceled {
		if !gs.CurrentPeriodEnd.IsZero() {
			endsAt = &gs.CurrentPeriodEnd
		} else {
			now := time.Now()
			endsAt = &now
		}
	}

	if err := uc.repo.UpdateStatus(ctx, sub.ID, gs.Status, endsAt); err != nil {
		return err
	}
	uc.log.Infof("Subscription status synced: subscription_id=%s, external_id=%s, status=%s", sub.ID, gs.ID, gs.Status)
	return nil
}

// estimatePeriodEnd 网关周期末未知时按本地数据估算
// 从创建时间按周期向前滚动，保证估算出的周期末在未来（老订阅已经走过若干周期）
func estimatePeriodEnd(sub *Subscription) time.Time {
	months := MonthsIn(sub.Interval)
	if months == 0 {
		months = 1
	}
	now := time.Now()
	end := sub.CreatedAt.AddDate(0, months, 0)
	for !end.After(now) {
		end = end.AddDate(0, months, 0)
	}
	return end
}
