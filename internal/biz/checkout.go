package biz

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"panel-service/internal/conf"
	"panel-service/internal/constants"
	panelErrors "panel-service/internal/errors"
	"panel-service/internal/metrics"

	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// ResourceCheckoutRequest 资源购买 checkout 请求
type ResourceCheckoutRequest struct {
	UserID       string
	Email        string
	ResourceType string
	Name         string
	Description  string
	Interval     string
	PlanID       string
	MemoryMB     int64
	NestID       int64
	EggID        int64
	Distribution string
}

// CheckoutUseCase 购买入口业务逻辑
// Stripe 路径创建 checkout 会话（开通推迟到 webhook 回执），
// 信用点路径同步完成扣减与开通
type CheckoutUseCase struct {
	gateway       PaymentGateway
	pricing       *PricingResolver
	plans         PlanRepo
	ledger        *CreditLedgerUseCase
	provisioning  *ProvisioningUseCase
	subscriptions SubscriptionRepo
	conf          *BillingConfig
	urls          *CheckoutURLs
	log           *log.Helper
	metrics       *metrics.PanelMetrics
}

// CheckoutURLs checkout 会话跳转地址配置
type CheckoutURLs struct {
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string
}

// NewCheckoutURLs 从配置创建跳转地址
func NewCheckoutURLs(c *conf.Bootstrap) *CheckoutURLs {
	urls := &CheckoutURLs{}
	if c.Stripe != nil {
		urls.SuccessURL = c.Stripe.SuccessURL
		urls.CancelURL = c.Stripe.CancelURL
		urls.PortalReturnURL = c.Stripe.PortalReturnURL
	}
	return urls
}

// NewCheckoutUseCase 创建购买入口 UseCase
func NewCheckoutUseCase(
	gateway PaymentGateway,
	pricing *PricingResolver,
	plans PlanRepo,
	ledger *CreditLedgerUseCase,
	provisioning *ProvisioningUseCase,
	subscriptions SubscriptionRepo,
	conf *BillingConfig,
	urls *CheckoutURLs,
	logger log.Logger,
) *CheckoutUseCase {
	return &CheckoutUseCase{
		gateway:       gateway,
		pricing:       pricing,
		plans:         plans,
		ledger:        ledger,
		provisioning:  provisioning,
		subscriptions: subscriptions,
		conf:          conf,
		urls:          urls,
		log:           log.NewHelper(logger),
		metrics:       metrics.GetMetrics(),
	}
}

// PreviewPrice 价格预览
// 与实际扣款走同一个 Resolver，预览价与成交价不会漂移
func (uc *CheckoutUseCase) PreviewPrice(ctx context.Context, resourceType, planID string, memoryMB int64, interval string) (*PriceQuote, error) {
	if planID != "" {
		plan, err := uc.plans.GetPlan(ctx, planID)
		if err != nil {
			return nil, err
		}
		if plan == nil {
			return nil, pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodePlanNotFound)
		}
		return uc.pricing.PriceForPlan(ctx, plan, interval, true)
	}
	return uc.pricing.PriceForCustom(ctx, resourceType, memoryMB, interval)
}

// CreateResourceCheckout 创建资源购买的 Stripe checkout 会话
// metadata 携带开通所需的全部字段，webhook 回执时据此构造开通请求
func (uc *CheckoutUseCase) CreateResourceCheckout(ctx context.Context, req *ResourceCheckoutRequest) (url string, err error) {
	start := time.Now()
	defer uc.observeCheckout(constants.CheckoutModeSubscription, start, &err)

	quote, err := uc.PreviewPrice(ctx, req.ResourceType, req.PlanID, req.MemoryMB, req.Interval)
	if err != nil {
		return "", err
	}

	customerID, err := uc.gateway.EnsureCustomer(ctx, req.UserID, req.Email)
	if err != nil {
		return "", pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeGatewayUnavailable)
	}

	meta := map[string]string{
		constants.MetaUserID:       req.UserID,
		constants.MetaResourceType: req.ResourceType,
		constants.MetaName:         req.Name,
		constants.MetaDescription:  req.Description,
		constants.MetaInterval:     req.Interval,
	}
	if req.PlanID != "" {
		meta[constants.MetaPlanID] = req.PlanID
	}
	if req.MemoryMB > 0 {
		meta[constants.MetaMemoryMB] = strconv.FormatInt(req.MemoryMB, 10)
	}
	if req.ResourceType == constants.ResourceTypeServer {
		meta[constants.MetaNestID] = strconv.FormatInt(req.NestID, 10)
		meta[constants.MetaEggID] = strconv.FormatInt(req.EggID, 10)
	}
	if req.Distribution != "" {
		meta[constants.MetaDistribution] = req.Distribution
	}

	reply, err := uc.gateway.CreateCheckoutSession(ctx, &CheckoutSessionRequest{
		CustomerID:  customerID,
		Mode:        constants.CheckoutModeSubscription,
		ProductName: req.Name,
		Amount:      quote.FirstCharge,
		Currency:    quote.Currency,
		Interval:    req.Interval,
		SuccessURL:  uc.urls.SuccessURL,
		CancelURL:   uc.urls.CancelURL,
		Metadata:    meta,
	})
	if err != nil {
		return "", pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeCheckoutCreateFailed)
	}
	uc.log.Infof("Resource checkout created: user_id=%s, session_id=%s, amount=%.2f", req.UserID, reply.ID, quote.FirstCharge)
	return reply.URL, nil
}

// CreateCreditsCheckout 创建信用点充值的一次性支付会话
func (uc *CheckoutUseCase) CreateCreditsCheckout(ctx context.Context, userID, email string, amount float64) (url string, err error) {
	start := time.Now()
	defer uc.observeCheckout(constants.CheckoutModePayment, start, &err)

	if amount <= 0 {
		return "", pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeInvalidAmount)
	}

	customerID, err := uc.gateway.EnsureCustomer(ctx, userID, email)
	if err != nil {
		return "", pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeGatewayUnavailable)
	}

	reply, err := uc.gateway.CreateCheckoutSession(ctx, &CheckoutSessionRequest{
		CustomerID:  customerID,
		Mode:        constants.CheckoutModePayment,
		ProductName: "Credits",
		Amount:      amount,
		Currency:    uc.conf.Currency,
		SuccessURL:  uc.urls.SuccessURL,
		CancelURL:   uc.urls.CancelURL,
		Metadata: map[string]string{
			constants.MetaUserID:  userID,
			constants.MetaCredits: fmt.Sprintf("%.2f", amount),
		},
	})
	if err != nil {
		return "", pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeCheckoutCreateFailed)
	}
	uc.log.Infof("Credits checkout created: user_id=%s, session_id=%s, amount=%.2f", userID, reply.ID, amount)
	return reply.URL, nil
}

// PurchaseWithCredits 用信用点余额直接购买资源
// 顺序契约：先落订阅（external_id 为 credits_ 前缀的内部 ID），再扣减并在流水中
// 引用该订阅，最后开通。扣减发生在本层，扣减之后的任何失败都在本层退款并
// 尽力删除半成品订阅，向上抛出的是原始失败原因
func (uc *CheckoutUseCase) PurchaseWithCredits(ctx context.Context, req *ResourceCheckoutRequest) (err error) {
	start := time.Now()
	defer uc.observeCheckout("credits", start, &err)

	quote, err := uc.PreviewPrice(ctx, req.ResourceType, req.PlanID, req.MemoryMB, req.Interval)
	if err != nil {
		return err
	}

	balance, err := uc.ledger.GetBalance(ctx, req.UserID)
	if err != nil {
		return err
	}
	if balance < quote.FirstCharge {
		return pkgErrors.NewBizErrorWithLang(ctx, panelErrors.ErrCodeInsufficientBalance)
	}

	externalID := constants.CreditsSubscriptionPrefix + newCreditsToken()
	preq := &ProvisioningRequest{
		Source:         SourceInternalCredits,
		UserID:         req.UserID,
		ResourceType:   req.ResourceType,
		Name:           req.Name,
		Description:    req.Description,
		ExternalID:     externalID,
		Interval:       req.Interval,
		BillingAmount:  quote.Recurring,
		IsCreditsBased: true,
		PlanID:         req.PlanID,
		MemoryMB:       req.MemoryMB,
		NestID:         req.NestID,
		EggID:          req.EggID,
		Distribution:   req.Distribution,
	}
	if err := preq.Validate(ctx); err != nil {
		return err
	}

	var planID *string
	if req.PlanID != "" {
		planID = &req.PlanID
	}
	next := time.Now().AddDate(0, MonthsIn(req.Interval), 0)
	sub, _, err := uc.subscriptions.EnsureSubscription(ctx, &Subscription{
		UserID:         req.UserID,
		ExternalID:     externalID,
		ExternalStatus: constants.SubscriptionStatusActive,
		PlanID:         planID,
		Interval:       req.Interval,
		BillingAmount:  quote.Recurring,
		IsCreditsBased: true,
		NextBillingAt:  &next,
	})
	if err != nil {
		return pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeSubscriptionCreateFailed)
	}

	// 扣减在订阅之后、开通之前：真正的余额校验在账本的用户级锁内完成，
	// 上面的预检只用于快速拒绝
	if _, err := uc.ledger.RecordDeduction(ctx, req.UserID, quote.FirstCharge, "resource purchase", &sub.ID, map[string]string{
		"external_id": externalID,
	}); err != nil {
		uc.rollbackPurchase(ctx, req.UserID, 0, sub.ID, externalID)
		return err
	}

	if err := uc.provisioning.Provision(ctx, preq); err != nil {
		uc.log.Errorf("Credits purchase provision failed: user_id=%s, external_id=%s, error=%v", req.UserID, externalID, err)
		uc.rollbackPurchase(ctx, req.UserID, quote.FirstCharge, sub.ID, externalID)
		return err
	}
	return nil
}

// rollbackPurchase 信用点购买失败回滚：退还已扣金额，半成品订阅尽力删除
// 回滚自身的失败只记录，不覆盖原始错误
func (uc *CheckoutUseCase) rollbackPurchase(ctx context.Context, userID string, refund float64, subscriptionID, externalID string) {
	if refund > 0 {
		if _, err := uc.ledger.RecordRefund(ctx, userID, refund, "provision failed refund", &subscriptionID, map[string]string{
			"external_id": externalID,
		}); err != nil {
			uc.log.Errorf("Purchase rollback refund failed: user_id=%s, amount=%.2f, subscription_id=%s, error=%v",
				userID, refund, subscriptionID, err)
			uc.recordCompensation("credit_refund", constants.ResultFailed)
		} else {
			uc.recordCompensation("credit_refund", constants.ResultSuccess)
		}
	}
	// 开通编排自身的补偿可能已删除订阅，重复删除是无害的空操作
	if err := uc.subscriptions.DeleteSubscription(ctx, subscriptionID); err != nil {
		uc.log.Errorf("Purchase rollback subscription delete failed: subscription_id=%s, error=%v", subscriptionID, err)
	}
}

func (uc *CheckoutUseCase) recordCompensation(action, result string) {
	if uc.metrics != nil {
		uc.metrics.CompensationTotal.WithLabelValues(action, result).Inc()
	}
}

// CreateBillingPortal 创建账单门户会话
func (uc *CheckoutUseCase) CreateBillingPortal(ctx context.Context, userID, email string) (string, error) {
	customerID, err := uc.gateway.EnsureCustomer(ctx, userID, email)
	if err != nil {
		return "", pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeGatewayUnavailable)
	}
	url, err := uc.gateway.CreateBillingPortalSession(ctx, customerID, uc.urls.PortalReturnURL)
	if err != nil {
		return "", pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodePortalCreateFailed)
	}
	return url, nil
}

// ListInvoices 查询用户账单
func (uc *CheckoutUseCase) ListInvoices(ctx context.Context, userID, email string, limit int) ([]*GatewayInvoice, error) {
	customerID, err := uc.gateway.EnsureCustomer(ctx, userID, email)
	if err != nil {
		return nil, pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeGatewayUnavailable)
	}
	if limit <= 0 {
		limit = 20
	}
	invoices, err := uc.gateway.ListInvoices(ctx, customerID, limit)
	if err != nil {
		return nil, pkgErrors.WrapErrorWithLang(ctx, err, panelErrors.ErrCodeInvoiceListFailed)
	}
	return invoices, nil
}

func (uc *CheckoutUseCase) observeCheckout(mode string, start time.Time, err *error) {
	if uc.metrics == nil {
		return
	}
	result := constants.ResultSuccess
	if *err != nil {
		result = constants.ResultFailed
	}
	uc.metrics.CheckoutTotal.WithLabelValues(mode, result).Inc()
	uc.metrics.CheckoutDuration.Observe(time.Since(start).Seconds())
}

// newCreditsToken 生成信用点订阅的内部引用 token
func newCreditsToken() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
