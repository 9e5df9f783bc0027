package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"panel-service/internal/biz"
	"panel-service/internal/conf"
	"panel-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stripe/stripe-go/v76"
	portalsession "github.com/stripe/stripe-go/v76/billingportal/session"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/customer"
	"github.com/stripe/stripe-go/v76/invoice"
	"github.com/stripe/stripe-go/v76/subscription"
	"github.com/stripe/stripe-go/v76/webhook"
)

// redisKeyStripeCustomer 用户到网关 customer 的映射缓存
const redisKeyStripeCustomer = "stripe:customer:"

// stripeGateway 实现 biz.PaymentGateway 接口
// SDK 类型在此处终结，biz 层只见 provider 无关的 DTO
type stripeGateway struct {
	data          *Data
	webhookSecret string
	tolerance     time.Duration
	log           *log.Helper
}

// NewStripeGateway 创建 Stripe 网关客户端
func NewStripeGateway(data *Data, c *conf.Bootstrap, logger log.Logger) biz.PaymentGateway {
	g := &stripeGateway{
		data:      data,
		tolerance: 5 * time.Minute,
		log:       log.NewHelper(logger),
	}
	if c.Stripe != nil {
		stripe.Key = c.Stripe.SecretKey
		g.webhookSecret = c.Stripe.WebhookSecret
		if c.Stripe.Tolerance.AsDuration() > 0 {
			g.tolerance = c.Stripe.Tolerance.AsDuration()
		}
	}
	return g
}

// CreateCheckoutSession 创建 checkout 会话
// 订阅模式下 metadata 同时写到会话与订阅对象：checkout 回执丢失时
// 订阅事件仍能找回开通参数
func (g *stripeGateway) CreateCheckoutSession(ctx context.Context, req *biz.CheckoutSessionRequest) (*biz.CheckoutSessionReply, error) {
	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(req.Currency),
		UnitAmount: stripe.Int64(toCents(req.Amount)),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(req.ProductName),
		},
	}
	if req.Mode == constants.CheckoutModeSubscription {
		interval, count, err := stripeInterval(req.Interval)
		if err != nil {
			return nil, err
		}
		priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval:      stripe.String(interval),
			IntervalCount: stripe.Int64(count),
		}
	}

	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(req.CustomerID),
		Mode:       stripe.String(req.Mode),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: priceData,
				Quantity:  stripe.Int64(1),
			},
		},
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.Mode == constants.CheckoutModeSubscription {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: req.Metadata,
		}
	}
	params.Context = ctx

	s, err := session.New(params)
	if err != nil {
		return nil, err
	}
	return &biz.CheckoutSessionReply{ID: s.ID, URL: s.URL}, nil
}

// RetrieveSubscription 获取网关侧订阅
func (g *stripeGateway) RetrieveSubscription(ctx context.Context, externalID string) (*biz.GatewaySubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	s, err := subscription.Get(externalID, params)
	if err != nil {
		return nil, err
	}
	return subscriptionFromStripe(s), nil
}

// CancelSubscription 立即取消网关侧订阅
func (g *stripeGateway) CancelSubscription(ctx context.Context, externalID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	_, err := subscription.Cancel(externalID, params)
	return err
}

// SetCancelAtPeriodEnd 设置/撤销周期末取消标记
func (g *stripeGateway) SetCancelAtPeriodEnd(ctx context.Context, externalID string, cancel bool) (*biz.GatewaySubscription, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	}
	params.Context = ctx
	s, err := subscription.Update(externalID, params)
	if err != nil {
		return nil, err
	}
	return subscriptionFromStripe(s), nil
}

// FindCheckoutSessionBySubscription 查找签发该订阅的 checkout 会话，找不到时返回 (nil, nil)
func (g *stripeGateway) FindCheckoutSessionBySubscription(ctx context.Context, externalID string) (*biz.GatewayCheckoutSession, error) {
	params := &stripe.CheckoutSessionListParams{
		Subscription: stripe.String(externalID),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := session.List(params)
	for iter.Next() {
		return checkoutSessionFromStripe(iter.CheckoutSession()), nil
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return nil, nil
}

// EnsureCustomer 确保网关侧存在该用户的 customer
// 映射缓存在 redis，未命中时创建新 customer 并回写
func (g *stripeGateway) EnsureCustomer(ctx context.Context, userID, email string) (string, error) {
	key := fmt.Sprintf("%s%s", redisKeyStripeCustomer, userID)
	if cached, err := g.data.rdb.Get(ctx, key).Result(); err == nil && cached != "" {
		return cached, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	params.AddMetadata(constants.MetaUserID, userID)

	c, err := customer.New(params)
	if err != nil {
		return "", err
	}
	if err := g.data.rdb.Set(ctx, key, c.ID, 0).Err(); err != nil {
		g.log.Warnf("failed to cache stripe customer mapping: user_id=%s, error=%v", userID, err)
	}
	return c.ID, nil
}

// CreateBillingPortalSession 创建账单门户会话
func (g *stripeGateway) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	s, err := portalsession.New(params)
	if err != nil {
		return "", err
	}
	return s.URL, nil
}

// ListInvoices 列出 customer 的账单
func (g *stripeGateway) ListInvoices(ctx context.Context, customerID string, limit int) ([]*biz.GatewayInvoice, error) {
	params := &stripe.InvoiceListParams{
		Customer: stripe.String(customerID),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))

	var invoices []*biz.GatewayInvoice
	iter := invoice.List(params)
	for iter.Next() {
		inv := iter.Invoice()
		invoices = append(invoices, &biz.GatewayInvoice{
			ID:         inv.ID,
			Number:     inv.Number,
			Status:     string(inv.Status),
			Currency:   string(inv.Currency),
			AmountDue:  fromCents(inv.AmountDue),
			AmountPaid: fromCents(inv.AmountPaid),
			HostedURL:  inv.HostedInvoiceURL,
			CreatedAt:  time.Unix(inv.Created, 0),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

// VerifyWebhook 校验签名并解析事件信封
func (g *stripeGateway) VerifyWebhook(payload []byte, signature string) (*biz.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithTolerance(payload, signature, g.webhookSecret, g.tolerance)
	if err != nil {
		return nil, err
	}

	result := &biz.WebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}
	switch result.Type {
	case constants.EventCheckoutCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return nil, err
		}
		result.CheckoutSession = checkoutSessionFromStripe(&cs)
	case constants.EventSubscriptionCreated, constants.EventSubscriptionUpdated, constants.EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := sub.UnmarshalJSON(event.Data.Raw); err != nil {
			return nil, err
		}
		result.Subscription = subscriptionFromStripe(&sub)
	case constants.EventInvoiceSucceeded, constants.EventInvoiceFailed:
		var inv stripe.Invoice
		if err := inv.UnmarshalJSON(event.Data.Raw); err != nil {
			return nil, err
		}
		result.Invoice = &biz.GatewayInvoice{
			ID:         inv.ID,
			Number:     inv.Number,
			Status:     string(inv.Status),
			Currency:   string(inv.Currency),
			AmountDue:  fromCents(inv.AmountDue),
			AmountPaid: fromCents(inv.AmountPaid),
			HostedURL:  inv.HostedInvoiceURL,
			CreatedAt:  time.Unix(inv.Created, 0),
		}
	}
	return result, nil
}

// stripeInterval 将本地计费周期映射为网关的 (interval, interval_count)
func stripeInterval(interval string) (string, int64, error) {
	switch interval {
	case constants.IntervalMonth:
		return "month", 1, nil
	case constants.IntervalQuarter:
		return "month", 3, nil
	case constants.IntervalHalfYear:
		return "month", 6, nil
	case constants.IntervalYear:
		return "year", 1, nil
	default:
		return "", 0, fmt.Errorf("unsupported billing interval: %s", interval)
	}
}

func subscriptionFromStripe(s *stripe.Subscription) *biz.GatewaySubscription {
	gs := &biz.GatewaySubscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		Metadata:          s.Metadata,
	}
	if s.Customer != nil {
		gs.CustomerID = s.Customer.ID
	}
	if s.CurrentPeriodEnd > 0 {
		gs.CurrentPeriodEnd = time.Unix(s.CurrentPeriodEnd, 0)
	}
	return gs
}

func checkoutSessionFromStripe(cs *stripe.CheckoutSession) *biz.GatewayCheckoutSession {
	result := &biz.GatewayCheckoutSession{
		ID:          cs.ID,
		Mode:        string(cs.Mode),
		AmountTotal: fromCents(cs.AmountTotal),
		Currency:    string(cs.Currency),
		Metadata:    cs.Metadata,
	}
	if cs.Subscription != nil {
		result.SubscriptionID = cs.Subscription.ID
	}
	if cs.Customer != nil {
		result.CustomerID = cs.Customer.ID
	}
	return result
}

// toCents 金额转网关的最小货币单位
func toCents(amount float64) int64 {
	return int64(amount*100 + 0.5)
}

// fromCents 最小货币单位转金额
func fromCents(cents int64) float64 {
	return float64(cents) / 100
}
