package biz

import (
	"context"
	"time"

	"panel-service/internal/constants"
	"panel-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// RenewalEvent 一条待续费事件（MQ 消息体）
type RenewalEvent struct {
	SubscriptionID string  `json:"subscription_id"`
	UserID         string  `json:"user_id"`
	Amount         float64 `json:"amount"`
}

// RenewalPublisher 续费事件发布接口
// RocketMQ 实现；MQ 未启用时实现返回 ErrPublisherDisabled，调用方退化为直接处理
type RenewalPublisher interface {
	PublishRenewal(ctx context.Context, event *RenewalEvent) error
	Enabled() bool
}

// RenewalUseCase 信用点订阅续费与到期回收
type RenewalUseCase struct {
	subscriptions SubscriptionRepo
	ledger        *CreditLedgerUseCase
	resources     *ResourceUseCase
	pricing       *PricingResolver
	plans         PlanRepo
	publisher     RenewalPublisher
	conf          *BillingConfig
	log           *log.Helper
	metrics       *metrics.PanelMetrics
}

// NewRenewalUseCase 创建续费 UseCase
func NewRenewalUseCase(
	subscriptions SubscriptionRepo,
	ledger *CreditLedgerUseCase,
	resources *ResourceUseCase,
	pricing *PricingResolver,
	plans PlanRepo,
	publisher RenewalPublisher,
	conf *BillingConfig,
	logger log.Logger,
) *RenewalUseCase {
	return &RenewalUseCase{
		subscriptions: subscriptions,
		ledger:        ledger,
		resources:     resources,
		pricing:       pricing,
		plans:         plans,
		publisher:     publisher,
		conf:          conf,
		log:           log.NewHelper(logger),
		metrics:       metrics.GetMetrics(),
	}
}

// PublishDueRenewals 扫描到期的信用点订阅并投递续费事件（cron 入口）
// MQ 未启用时退化为同步直接处理
func (uc *RenewalUseCase) PublishDueRenewals(ctx context.Context) (int, error) {
	due, err := uc.subscriptions.ListDueCreditRenewals(ctx, time.Now(), uc.conf.RenewalBatchSize)
	if err != nil {
		return 0, err
	}
	published := 0
	for _, sub := range due {
		event := &RenewalEvent{
			SubscriptionID: sub.ID,
			UserID:         sub.UserID,
			Amount:         uc.renewalAmount(ctx, sub),
		}
		if uc.publisher != nil && uc.publisher.Enabled() {
			if err := uc.publisher.PublishRenewal(ctx, event); err != nil {
				uc.log.Errorf("Publish renewal event failed, processing directly: subscription_id=%s, error=%v", sub.ID, err)
				uc.ProcessRenewal(ctx, event)
			}
		} else {
			uc.ProcessRenewal(ctx, event)
		}
		published++
	}
	if published > 0 {
		uc.log.Infof("Due renewals dispatched: count=%d", published)
	}
	return published, nil
}

// ProcessRenewal 处理一条续费事件（MQ 消费入口）
// 余额不足不视为消费失败：订阅标记 past_due 后消息确认，避免无意义重投
func (uc *RenewalUseCase) ProcessRenewal(ctx context.Context, event *RenewalEvent) {
	sub, err := uc.subscriptions.GetSubscription(ctx, event.SubscriptionID)
	if err != nil || sub == nil {
		uc.log.Warnf("Renewal target missing: subscription_id=%s, error=%v", event.SubscriptionID, err)
		uc.recordRenewal(constants.ResultFailed)
		return
	}
	if sub.ExternalStatus != constants.SubscriptionStatusActive && sub.ExternalStatus != constants.SubscriptionStatusPastDue {
		uc.log.Infof("Renewal skipped for non-renewable status: subscription_id=%s, status=%s", sub.ID, sub.ExternalStatus)
		return
	}
	if sub.NextBillingAt == nil || sub.NextBillingAt.After(time.Now()) {
		// 消息滞后到达时订阅可能已被续费过
		uc.log.Infof("Renewal skipped, not due: subscription_id=%s", sub.ID)
		return
	}

	amount := event.Amount
	if amount <= 0 {
		amount = uc.renewalAmount(ctx, sub)
	}
	if amount <= 0 {
		uc.log.Errorf("Renewal amount unresolvable: subscription_id=%s", sub.ID)
		uc.recordRenewal(constants.ResultFailed)
		return
	}

	balance, err := uc.ledger.GetBalance(ctx, sub.UserID)
	if err != nil {
		uc.log.Errorf("Renewal balance check failed: subscription_id=%s, error=%v", sub.ID, err)
		uc.recordRenewal(constants.ResultFailed)
		return
	}
	if balance < amount {
		uc.log.Warnf("Renewal deferred, insufficient balance: subscription_id=%s, user_id=%s, amount=%.2f, balance=%.2f",
			sub.ID, sub.UserID, amount, balance)
		if updateErr := uc.subscriptions.UpdateStatus(ctx, sub.ID, constants.SubscriptionStatusPastDue, nil); updateErr != nil {
			uc.log.Errorf("Failed to mark subscription past_due: subscription_id=%s, error=%v", sub.ID, updateErr)
		}
		uc.recordRenewal(constants.ResultFailed)
		return
	}

	if _, err := uc.ledger.RecordRenewal(ctx, sub.UserID, amount, &sub.ID); err != nil {
		// 账本锁内的余额校验是兜底，并发下仍可能在这里失败
		uc.log.Errorf("Renewal deduction failed: subscription_id=%s, error=%v", sub.ID, err)
		uc.recordRenewal(constants.ResultFailed)
		return
	}

	next := nextBillingFrom(sub, time.Now())
	if err := uc.subscriptions.SetNextBillingAt(ctx, sub.ID, &next); err != nil {
		uc.log.Errorf("Failed to advance next_billing_at: subscription_id=%s, error=%v", sub.ID, err)
	}
	if sub.ExternalStatus == constants.SubscriptionStatusPastDue {
		if err := uc.subscriptions.UpdateStatus(ctx, sub.ID, constants.SubscriptionStatusActive, nil); err != nil {
			uc.log.Errorf("Failed to reactivate subscription: subscription_id=%s, error=%v", sub.ID, err)
		}
	}
	uc.recordRenewal(constants.ResultSuccess)
	uc.log.Infof("Renewal processed: subscription_id=%s, user_id=%s, amount=%.2f, next_billing_at=%s",
		sub.ID, sub.UserID, amount, next.Format(time.RFC3339))
}

// EnforceExpirations 回收已过取消生效时间的订阅资源（cron 入口）
func (uc *RenewalUseCase) EnforceExpirations(ctx context.Context) (int, error) {
	expired, err := uc.subscriptions.ListExpiredCancellations(ctx, time.Now(), uc.conf.RenewalBatchSize)
	if err != nil {
		return 0, err
	}
	enforced := 0
	for _, sub := range expired {
		if failed := uc.resources.DeleteForSubscription(ctx, sub.ID); failed > 0 {
			// 留到下一轮重试，不推进订阅状态
			uc.log.Warnf("Expiry enforcement incomplete: subscription_id=%s, failed=%d", sub.ID, failed)
			continue
		}
		if err := uc.subscriptions.UpdateStatus(ctx, sub.ID, constants.SubscriptionStatusCanceled, sub.EndsAt); err != nil {
			uc.log.Errorf("Failed to finalize expired subscription: subscription_id=%s, error=%v", sub.ID, err)
			continue
		}
		enforced++
		uc.log.Infof("Expired subscription enforced: subscription_id=%s", sub.ID)
	}
	return enforced, nil
}

// renewalAmount 解析订阅的续费金额：快照优先，缺失时按套餐重算
func (uc *RenewalUseCase) renewalAmount(ctx context.Context, sub *Subscription) float64 {
	if sub.BillingAmount > 0 {
		return sub.BillingAmount
	}
	if sub.PlanID != nil {
		plan, err := uc.plans.GetPlan(ctx, *sub.PlanID)
		if err == nil && plan != nil {
			if quote, err := uc.pricing.PriceForPlan(ctx, plan, sub.Interval, false); err == nil {
				return quote.Recurring
			}
		}
	}
	return 0
}

func (uc *RenewalUseCase) recordRenewal(result string) {
	if uc.metrics != nil {
		uc.metrics.RenewalTotal.WithLabelValues(result).Inc()
	}
}

// nextBillingFrom 从上一个到期点推进一个周期，落后多期时推进到未来
func nextBillingFrom(sub *Subscription, now time.Time) time.Time {
	months := MonthsIn(sub.Interval)
	if months == 0 {
		months = 1
	}
	next := now
	if sub.NextBillingAt != nil {
		next = *sub.NextBillingAt
	}
	for !next.After(now) {
		next = next.AddDate(0, months, 0)
	}
	return next
}
