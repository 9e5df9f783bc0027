package service

import (
	"io"
	"net/http"

	"panel-service/internal/biz"
	panelErrors "panel-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// WebhookService 支付网关 webhook 入口
// 签名校验需要原始请求体，不走框架的请求绑定
type WebhookService struct {
	uc  *biz.WebhookUseCase
	log *log.Helper
}

// NewWebhookService 创建 WebhookService
func NewWebhookService(uc *biz.WebhookUseCase, logger log.Logger) *WebhookService {
	return &WebhookService{
		uc:  uc,
		log: log.NewHelper(logger),
	}
}

// RegisterRoutes 注册 webhook 路由
func (s *WebhookService) RegisterRoutes(srv *khttp.Server) {
	srv.HandleFunc("/v1/webhooks/stripe", s.handleStripeWebhook)
}

// handleStripeWebhook 处理签名投递
// 应答只携带接收/重试信号：2xx 表示事件已消化（含重复与永久失败），
// 非 2xx 让支付方按自身策略重投
func (s *WebhookService) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.log.Errorf("Failed to read webhook body: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	accepted, err := s.uc.HandleEvent(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil && !accepted {
		if panelErrors.IsInvalidSignature(err) {
			s.log.Warnf("Webhook signature rejected: error=%v", err)
		} else {
			s.log.Warnf("Webhook not accepted, provider will retry: error=%v", err)
		}
		w.WriteHeader(webhookStatus(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// webhookStatus 将处理失败映射为应答状态码
// 签名校验失败的载荷不可信，4xx 拒绝；其余按瞬时失败 5xx 让支付方重投
func webhookStatus(err error) int {
	if panelErrors.IsInvalidSignature(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
