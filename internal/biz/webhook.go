package biz

import (
	"context"
	"strconv"
	"time"

	"panel-service/internal/constants"
	panelErrors "panel-service/internal/errors"
	"panel-service/internal/metrics"

	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// WebhookDedup webhook 事件去重接口
// 存储层基于 redis 实现：MarkIfFirst 用 SETNX 占位，处理失败后 Release 释放，
// 让支付方的重试还有机会被处理
type WebhookDedup interface {
	MarkIfFirst(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// WebhookUseCase webhook 事件路由
// 错误分级契约：永久性错误（重投同样的载荷也不会成功）记录后向调用方返回
// 已接收，瞬时性错误返回重试信号由支付方重投
type WebhookUseCase struct {
	gateway       PaymentGateway
	dedup         WebhookDedup
	provisioning  *ProvisioningUseCase
	subscriptions *SubscriptionUseCase
	ledger        *CreditLedgerUseCase
	log           *log.Helper
	metrics       *metrics.PanelMetrics
}

// NewWebhookUseCase 创建 webhook 路由 UseCase
func NewWebhookUseCase(
	gateway PaymentGateway,
	dedup WebhookDedup,
	provisioning *ProvisioningUseCase,
	subscriptions *SubscriptionUseCase,
	ledger *CreditLedgerUseCase,
	logger log.Logger,
) *WebhookUseCase {
	return &WebhookUseCase{
		gateway:       gateway,
		dedup:         dedup,
		provisioning:  provisioning,
		subscriptions: subscriptions,
		ledger:        ledger,
		log:           log.NewHelper(logger),
		metrics:       metrics.GetMetrics(),
	}
}

// HandleEvent 处理一条已签名的 webhook 投递
// accepted=true 表示事件已消化（含永久失败与重复投递），调用方应答 2xx；
// accepted=false 时 err 非空，调用方应答非 2xx 触发支付方重试
func (uc *WebhookUseCase) HandleEvent(ctx context.Context, payload []byte, signature string) (accepted bool, err error) {
	event, err := uc.gateway.VerifyWebhook(payload, signature)
	if err != nil {
		// 签名失败没有可信的事件 ID，不进入去重与指标；
		// 标记为签名错误让入口层应答 4xx 拒绝而不触发重投
		return false, panelErrors.InvalidSignature(pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeSignatureInvalid))
	}

	start := time.Now()
	defer func() {
		if uc.metrics != nil {
			result := constants.ResultSuccess
			if err != nil {
				result = constants.ResultFailed
			}
			uc.metrics.WebhookEventTotal.WithLabelValues(event.Type, result).Inc()
			uc.metrics.WebhookEventDuration.WithLabelValues(event.Type).Observe(time.Since(start).Seconds())
		}
	}()

	first, err := uc.dedup.MarkIfFirst(ctx, event.ID)
	if err != nil {
		// 去重不可用按瞬时失败处理，等支付方重投
		return false, err
	}
	if !first {
		if uc.metrics != nil {
			uc.metrics.WebhookDuplicate.Inc()
		}
		uc.log.Infof("Duplicate webhook event skipped: event_id=%s, type=%s", event.ID, event.Type)
		return true, nil
	}

	if err = uc.dispatch(ctx, event); err != nil {
		if panelErrors.IsPermanent(err) {
			// 永久失败：记录并吞掉，重投不会有不同结果
			uc.log.Errorf("Webhook event permanently failed: event_id=%s, type=%s, error=%v", event.ID, event.Type, err)
			return true, nil
		}
		// 瞬时失败：释放去重占位，等待重投
		if releaseErr := uc.dedup.Release(ctx, event.ID); releaseErr != nil {
			uc.log.Errorf("Failed to release webhook dedup mark: event_id=%s, error=%v", event.ID, releaseErr)
		}
		return false, err
	}
	return true, nil
}

func (uc *WebhookUseCase) dispatch(ctx context.Context, event *WebhookEvent) error {
	switch event.Type {
	case constants.EventCheckoutCompleted:
		return uc.handleCheckoutCompleted(ctx, event.CheckoutSession)
	case constants.EventSubscriptionCreated:
		return uc.handleSubscriptionCreated(ctx, event.Subscription)
	case constants.EventSubscriptionUpdated, constants.EventSubscriptionDeleted:
		return uc.subscriptions.SyncExternalStatus(ctx, event.Subscription)
	case constants.EventInvoiceSucceeded:
		uc.log.Infof("Invoice paid: invoice_id=%s, amount=%.2f", event.Invoice.ID, event.Invoice.AmountPaid)
		return nil
	case constants.EventInvoiceFailed:
		uc.log.Warnf("Invoice payment failed: invoice_id=%s, amount_due=%.2f", event.Invoice.ID, event.Invoice.AmountDue)
		return nil
	default:
		uc.log.Infof("Unrecognized webhook event ignored: type=%s", event.Type)
		return nil
	}
}

// handleCheckoutCompleted checkout 回执
// payment 模式是信用点充值入账，subscription 模式触发资源开通
func (uc *WebhookUseCase) handleCheckoutCompleted(ctx context.Context, session *GatewayCheckoutSession) error {
	if session == nil {
		return panelErrors.Permanent(pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeEventMetadataMissing))
	}

	if session.Mode == constants.CheckoutModePayment {
		userID := session.Metadata[constants.MetaUserID]
		amount := session.AmountTotal
		if v := session.Metadata[constants.MetaCredits]; v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				amount = parsed
			}
		}
		if userID == "" || amount <= 0 {
			return panelErrors.Permanent(pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeEventMetadataMissing))
		}
		// ReferenceID 携带会话 ID，数据库唯一约束兜底 redis 去重
		_, err := uc.ledger.RecordPurchase(ctx, userID, amount, session.ID, map[string]string{
			"checkout_session": session.ID,
		})
		return err
	}

	if session.SubscriptionID == "" {
		return panelErrors.Permanent(pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeEventMetadataMissing))
	}
	req, err := BuildProvisioningRequest(ctx, SourceStripeCheckout, session.SubscriptionID, session.AmountTotal, session.Metadata)
	if err != nil {
		return err
	}
	return uc.provisioning.Provision(ctx, req)
}

// handleSubscriptionCreated 订阅创建事件（checkout 回执丢失时的恢复路径）
// 优先从签发该订阅的 checkout 会话找回 metadata，找不到再退回订阅自身的 metadata
func (uc *WebhookUseCase) handleSubscriptionCreated(ctx context.Context, gs *GatewaySubscription) error {
	if gs == nil {
		return panelErrors.Permanent(pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeEventMetadataMissing))
	}

	meta := gs.Metadata
	amount := 0.0
	session, err := uc.gateway.FindCheckoutSessionBySubscription(ctx, gs.ID)
	if err != nil {
		// 网关查询失败按瞬时处理
		return err
	}
	if session != nil {
		meta = session.Metadata
		amount = session.AmountTotal
	} else {
		// 金额未知时保留 0 快照，取消时的周期末估算不依赖它
		uc.log.Warnf("Checkout session not found for subscription, falling back to subscription metadata: external_id=%s", gs.ID)
	}

	req, err := BuildProvisioningRequest(ctx, SourceStripeSubscription, gs.ID, amount, meta)
	if err != nil {
		return err
	}
	return uc.provisioning.Provision(ctx, req)
}
