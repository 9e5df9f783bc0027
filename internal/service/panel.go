package service

import (
	"strconv"
	"time"

	"panel-service/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// PanelService 面向前端的购买/订阅/账本服务
type PanelService struct {
	checkout      *biz.CheckoutUseCase
	subscriptions *biz.SubscriptionUseCase
	ledger        *biz.CreditLedgerUseCase
	log           *log.Helper
}

// NewPanelService 创建 PanelService
func NewPanelService(
	checkout *biz.CheckoutUseCase,
	subscriptions *biz.SubscriptionUseCase,
	ledger *biz.CreditLedgerUseCase,
	logger log.Logger,
) *PanelService {
	return &PanelService{
		checkout:      checkout,
		subscriptions: subscriptions,
		ledger:        ledger,
		log:           log.NewHelper(logger),
	}
}

// CheckoutRequest 资源购买请求
type CheckoutRequest struct {
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	ResourceType string `json:"resource_type"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Interval     string `json:"interval"`
	PlanID       string `json:"plan_id"`
	MemoryMB     int64  `json:"memory_mb"`
	NestID       int64  `json:"nest_id"`
	EggID        int64  `json:"egg_id"`
	Distribution string `json:"distribution"`
}

// CheckoutReply checkout 会话响应
type CheckoutReply struct {
	URL string `json:"url"`
}

// CreditsCheckoutRequest 信用点充值请求
type CreditsCheckoutRequest struct {
	UserID string  `json:"user_id"`
	Email  string  `json:"email"`
	Amount float64 `json:"amount"`
}

// PriceQuoteReply 价格预览响应
type PriceQuoteReply struct {
	FirstCharge float64 `json:"first_charge"`
	Recurring   float64 `json:"recurring"`
	Interval    string  `json:"interval"`
	Currency    string  `json:"currency"`
}

// CancelRequest 取消订阅请求
type CancelRequest struct {
	Immediate bool `json:"immediate"`
}

// SubscriptionReply 订阅操作响应
type SubscriptionReply struct {
	ID             string `json:"id"`
	ExternalStatus string `json:"external_status"`
	EndsAt         string `json:"ends_at,omitempty"`
	// 网关侧同步失败时为 true，本地状态为准，待对账
	PendingSync bool `json:"pending_sync,omitempty"`
}

// BalanceReply 余额响应
type BalanceReply struct {
	UserID  string  `json:"user_id"`
	Balance float64 `json:"balance"`
}

// TransactionReply 流水条目
type TransactionReply struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	Amount        float64 `json:"amount"`
	BalanceBefore float64 `json:"balance_before"`
	BalanceAfter  float64 `json:"balance_after"`
	Description   string  `json:"description"`
	CreatedAt     string  `json:"created_at"`
}

// InvoiceReply 账单条目
type InvoiceReply struct {
	ID         string  `json:"id"`
	Number     string  `json:"number"`
	Status     string  `json:"status"`
	Currency   string  `json:"currency"`
	AmountDue  float64 `json:"amount_due"`
	AmountPaid float64 `json:"amount_paid"`
	HostedURL  string  `json:"hosted_url"`
	CreatedAt  string  `json:"created_at"`
}

// PortalRequest 账单门户请求
type PortalRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// RegisterRoutes 注册 HTTP 路由
func (s *PanelService) RegisterRoutes(srv *khttp.Server) {
	route := srv.Route("/")
	route.POST("/v1/checkout", s.handleCheckout)
	route.POST("/v1/checkout/credits", s.handleCreditsCheckout)
	route.GET("/v1/pricing/preview", s.handlePricingPreview)
	route.POST("/v1/purchases/credits", s.handleCreditsPurchase)
	route.POST("/v1/subscriptions/{id}/cancel", s.handleCancel)
	route.POST("/v1/subscriptions/{id}/resume", s.handleResume)
	route.GET("/v1/credits/balance", s.handleBalance)
	route.GET("/v1/credits/transactions", s.handleTransactions)
	route.GET("/v1/invoices", s.handleInvoices)
	route.POST("/v1/billing/portal", s.handlePortal)
}

func (s *PanelService) handleCheckout(ctx khttp.Context) error {
	var req CheckoutRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}
	url, err := s.checkout.CreateResourceCheckout(ctx, checkoutToBiz(&req))
	if err != nil {
		s.log.Errorf("CreateResourceCheckout failed: user_id=%s, error=%v", req.UserID, err)
		return err
	}
	return ctx.Result(200, &CheckoutReply{URL: url})
}

func (s *PanelService) handleCreditsCheckout(ctx khttp.Context) error {
	var req CreditsCheckoutRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}
	url, err := s.checkout.CreateCreditsCheckout(ctx, req.UserID, req.Email, req.Amount)
	if err != nil {
		s.log.Errorf("CreateCreditsCheckout failed: user_id=%s, error=%v", req.UserID, err)
		return err
	}
	return ctx.Result(200, &CheckoutReply{URL: url})
}

func (s *PanelService) handlePricingPreview(ctx khttp.Context) error {
	query := ctx.Query()
	memoryMB := parseInt64(query.Get("memory_mb"))
	quote, err := s.checkout.PreviewPrice(ctx, query.Get("resource_type"), query.Get("plan_id"), memoryMB, query.Get("interval"))
	if err != nil {
		return err
	}
	return ctx.Result(200, &PriceQuoteReply{
		FirstCharge: quote.FirstCharge,
		Recurring:   quote.Recurring,
		Interval:    quote.Interval,
		Currency:    quote.Currency,
	})
}

func (s *PanelService) handleCreditsPurchase(ctx khttp.Context) error {
	var req CheckoutRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}
	if err := s.checkout.PurchaseWithCredits(ctx, checkoutToBiz(&req)); err != nil {
		s.log.Errorf("PurchaseWithCredits failed: user_id=%s, error=%v", req.UserID, err)
		return err
	}
	return ctx.Result(200, map[string]string{"status": "provisioned"})
}

func (s *PanelService) handleCancel(ctx khttp.Context) error {
	var req CancelRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}
	sub, pendingSync, err := s.subscriptions.Cancel(ctx, ctx.Vars().Get("id"), req.Immediate)
	if err != nil {
		return err
	}
	return ctx.Result(200, subscriptionReply(sub, pendingSync))
}

func (s *PanelService) handleResume(ctx khttp.Context) error {
	sub, pendingSync, err := s.subscriptions.Resume(ctx, ctx.Vars().Get("id"))
	if err != nil {
		return err
	}
	return ctx.Result(200, subscriptionReply(sub, pendingSync))
}

func (s *PanelService) handleBalance(ctx khttp.Context) error {
	userID := ctx.Query().Get("user_id")
	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return err
	}
	return ctx.Result(200, &BalanceReply{UserID: userID, Balance: balance})
}

func (s *PanelService) handleTransactions(ctx khttp.Context) error {
	query := ctx.Query()
	limit := int(parseInt64(query.Get("limit")))
	records, err := s.ledger.ListTransactions(ctx, query.Get("user_id"), limit, query.Get("type"))
	if err != nil {
		return err
	}
	replies := make([]*TransactionReply, 0, len(records))
	for _, record := range records {
		replies = append(replies, &TransactionReply{
			ID:            record.ID,
			Type:          record.Type,
			Amount:        record.Amount,
			BalanceBefore: record.BalanceBefore,
			BalanceAfter:  record.BalanceAfter,
			Description:   record.Description,
			CreatedAt:     record.CreatedAt.Format(time.RFC3339),
		})
	}
	return ctx.Result(200, replies)
}

func (s *PanelService) handleInvoices(ctx khttp.Context) error {
	query := ctx.Query()
	limit := int(parseInt64(query.Get("limit")))
	invoices, err := s.checkout.ListInvoices(ctx, query.Get("user_id"), query.Get("email"), limit)
	if err != nil {
		return err
	}
	replies := make([]*InvoiceReply, 0, len(invoices))
	for _, inv := range invoices {
		replies = append(replies, &InvoiceReply{
			ID:         inv.ID,
			Number:     inv.Number,
			Status:     inv.Status,
			Currency:   inv.Currency,
			AmountDue:  inv.AmountDue,
			AmountPaid: inv.AmountPaid,
			HostedURL:  inv.HostedURL,
			CreatedAt:  inv.CreatedAt.Format(time.RFC3339),
		})
	}
	return ctx.Result(200, replies)
}

func (s *PanelService) handlePortal(ctx khttp.Context) error {
	var req PortalRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}
	url, err := s.checkout.CreateBillingPortal(ctx, req.UserID, req.Email)
	if err != nil {
		return err
	}
	return ctx.Result(200, &CheckoutReply{URL: url})
}

func checkoutToBiz(req *CheckoutRequest) *biz.ResourceCheckoutRequest {
	return &biz.ResourceCheckoutRequest{
		UserID:       req.UserID,
		Email:        req.Email,
		ResourceType: req.ResourceType,
		Name:         req.Name,
		Description:  req.Description,
		Interval:     req.Interval,
		PlanID:       req.PlanID,
		MemoryMB:     req.MemoryMB,
		NestID:       req.NestID,
		EggID:        req.EggID,
		Distribution: req.Distribution,
	}
}

func subscriptionReply(sub *biz.Subscription, pendingSync bool) *SubscriptionReply {
	reply := &SubscriptionReply{
		ID:             sub.ID,
		ExternalStatus: sub.ExternalStatus,
		PendingSync:    pendingSync,
	}
	if sub.EndsAt != nil {
		reply.EndsAt = sub.EndsAt.Format(time.RFC3339)
	}
	return reply
}

func parseInt64(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
