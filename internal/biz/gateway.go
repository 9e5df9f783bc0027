package biz

import (
	"context"
	"time"
)

// PaymentGateway 支付网关能力接口
// 只暴露本服务需要的操作，网关 SDK 的类型不进入 biz 层
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSessionReply, error)
	RetrieveSubscription(ctx context.Context, externalID string) (*GatewaySubscription, error)
	CancelSubscription(ctx context.Context, externalID string) error
	// SetCancelAtPeriodEnd 设置/撤销周期末取消标记，返回更新后的订阅
	SetCancelAtPeriodEnd(ctx context.Context, externalID string, cancel bool) (*GatewaySubscription, error)
	// FindCheckoutSessionBySubscription 查找签发该订阅的 checkout 会话（最可靠的 metadata 来源），
	// 找不到时返回 (nil, nil)
	FindCheckoutSessionBySubscription(ctx context.Context, externalID string) (*GatewayCheckoutSession, error)
	// EnsureCustomer 确保网关侧存在该用户对应的 customer，返回 customer ID
	EnsureCustomer(ctx context.Context, userID, email string) (string, error)
	CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	ListInvoices(ctx context.Context, customerID string, limit int) ([]*GatewayInvoice, error)
	// VerifyWebhook 校验签名并解析事件信封，签名或解析失败返回错误
	VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// CheckoutSessionRequest 创建 checkout 会话请求
type CheckoutSessionRequest struct {
	CustomerID  string
	Mode        string // payment / subscription
	ProductName string
	Amount      float64
	Currency    string
	// 订阅模式下的计费周期（month/quarter/half-year/year）
	Interval   string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// CheckoutSessionReply 创建 checkout 会话响应
type CheckoutSessionReply struct {
	ID  string
	URL string
}

// GatewaySubscription 网关侧订阅对象
type GatewaySubscription struct {
	ID                string
	Status            string
	CustomerID        string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  time.Time
	Metadata          map[string]string
}

// GatewayCheckoutSession 网关侧 checkout 会话对象
type GatewayCheckoutSession struct {
	ID             string
	Mode           string
	SubscriptionID string
	CustomerID     string
	AmountTotal    float64
	Currency       string
	Metadata       map[string]string
}

// GatewayInvoice 网关侧账单对象
type GatewayInvoice struct {
	ID         string
	Number     string
	Status     string
	Currency   string
	AmountDue  float64
	AmountPaid float64
	HostedURL  string
	CreatedAt  time.Time
}

// WebhookEvent 校验通过后的事件信封
// 按事件类型恰有一个载荷字段非空
type WebhookEvent struct {
	ID              string
	Type            string
	CheckoutSession *GatewayCheckoutSession
	Subscription    *GatewaySubscription
	Invoice         *GatewayInvoice
}
