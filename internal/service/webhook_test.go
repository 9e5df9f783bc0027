package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"panel-service/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
)

// stubGateway 只为入口层状态码测试服务的网关桩
type stubGateway struct {
	event     *biz.WebhookEvent
	verifyErr error
}

func (s *stubGateway) CreateCheckoutSession(ctx context.Context, req *biz.CheckoutSessionRequest) (*biz.CheckoutSessionReply, error) {
	return nil, nil
}

func (s *stubGateway) RetrieveSubscription(ctx context.Context, externalID string) (*biz.GatewaySubscription, error) {
	return nil, nil
}

func (s *stubGateway) CancelSubscription(ctx context.Context, externalID string) error {
	return nil
}

func (s *stubGateway) SetCancelAtPeriodEnd(ctx context.Context, externalID string, cancel bool) (*biz.GatewaySubscription, error) {
	return nil, nil
}

func (s *stubGateway) FindCheckoutSessionBySubscription(ctx context.Context, externalID string) (*biz.GatewayCheckoutSession, error) {
	return nil, nil
}

func (s *stubGateway) EnsureCustomer(ctx context.Context, userID, email string) (string, error) {
	return "", nil
}

func (s *stubGateway) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	return "", nil
}

func (s *stubGateway) ListInvoices(ctx context.Context, customerID string, limit int) ([]*biz.GatewayInvoice, error) {
	return nil, nil
}

func (s *stubGateway) VerifyWebhook(payload []byte, signature string) (*biz.WebhookEvent, error) {
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	return s.event, nil
}

type stubDedup struct {
	markErr error
}

func (s *stubDedup) MarkIfFirst(ctx context.Context, eventID string) (bool, error) {
	if s.markErr != nil {
		return false, s.markErr
	}
	return true, nil
}

func (s *stubDedup) Release(ctx context.Context, eventID string) error {
	return nil
}

func newWebhookTestService(gw *stubGateway, dedup *stubDedup) *WebhookService {
	logger := log.NewStdLogger(io.Discard)
	uc := biz.NewWebhookUseCase(gw, dedup, nil, nil, nil, logger)
	return NewWebhookService(uc, logger)
}

func postWebhook(t *testing.T, s *WebhookService) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "sig")
	w := httptest.NewRecorder()
	s.handleStripeWebhook(w, req)
	return w
}

func TestStripeWebhookStatusCodes(t *testing.T) {
	t.Run("invalid signature is rejected with 400", func(t *testing.T) {
		s := newWebhookTestService(&stubGateway{verifyErr: errors.New("signature mismatch")}, &stubDedup{})
		w := postWebhook(t, s)
		// 伪造/失效的签名不值得重投，4xx 直接终止投递
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("transient failure answers 500 for provider retry", func(t *testing.T) {
		gw := &stubGateway{event: &biz.WebhookEvent{ID: "evt_1", Type: "checkout.session.completed"}}
		s := newWebhookTestService(gw, &stubDedup{markErr: errors.New("redis unavailable")})
		w := postWebhook(t, s)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("unrecognized event is accepted with 200", func(t *testing.T) {
		gw := &stubGateway{event: &biz.WebhookEvent{ID: "evt_1", Type: "charge.refunded"}}
		s := newWebhookTestService(gw, &stubDedup{})
		w := postWebhook(t, s)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("non-post is rejected", func(t *testing.T) {
		s := newWebhookTestService(&stubGateway{}, &stubDedup{})
		req := httptest.NewRequest(http.MethodGet, "/v1/webhooks/stripe", nil)
		w := httptest.NewRecorder()
		s.handleStripeWebhook(w, req)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}
