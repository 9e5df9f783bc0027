package biz

import (
	"context"
	"errors"
	"testing"
	"time"

	"panel-service/internal/constants"
	panelErrors "panel-service/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type webhookFixture struct {
	prov          *provisionFixture
	gw            *fakeGateway
	dedup         *fakeDedup
	subscriptions *SubscriptionUseCase
	uc            *WebhookUseCase
}

func newWebhookFixture() *webhookFixture {
	prov := newProvisionFixture()
	gw := &fakeGateway{}
	dedup := newFakeDedup()
	logger := testLogger()
	subscriptions := NewSubscriptionUseCase(prov.subs, gw, prov.resources, logger)
	return &webhookFixture{
		prov:          prov,
		gw:            gw,
		dedup:         dedup,
		subscriptions: subscriptions,
		uc:            NewWebhookUseCase(gw, dedup, prov.uc, subscriptions, prov.ledger, logger),
	}
}

func (f *webhookFixture) handle(t *testing.T) (bool, error) {
	t.Helper()
	return f.uc.HandleEvent(context.Background(), []byte(`{}`), "sig")
}

func TestHandleEvent_InvalidSignature(t *testing.T) {
	f := newWebhookFixture()
	f.gw.verifyErr = errors.New("signature mismatch")

	accepted, err := f.handle(t)
	assert.False(t, accepted)
	require.Error(t, err)
	// 签名错误携带拒绝标记，入口层据此应答 4xx 而不是触发重投
	assert.True(t, panelErrors.IsInvalidSignature(err))
	assert.Empty(t, f.dedup.seen)
}

func TestHandleEvent_CreditsTopUp(t *testing.T) {
	f := newWebhookFixture()
	f.gw.event = &WebhookEvent{
		ID:   "evt_1",
		Type: constants.EventCheckoutCompleted,
		CheckoutSession: &GatewayCheckoutSession{
			ID:          "cs_1",
			Mode:        constants.CheckoutModePayment,
			AmountTotal: 20.0,
			Metadata: map[string]string{
				constants.MetaUserID: "user-1",
				// 购买的信用点数与支付金额可以不同（促销充值）
				constants.MetaCredits: "25.00",
			},
		},
	}

	accepted, err := f.handle(t)
	require.NoError(t, err)
	assert.True(t, accepted)

	balance, _ := f.prov.ledgerRepo.GetBalance(context.Background(), "user-1")
	assert.InDelta(t, 25.0, balance, 0.001)
}

func TestHandleEvent_DuplicateDelivery(t *testing.T) {
	f := newWebhookFixture()
	f.gw.event = &WebhookEvent{
		ID:   "evt_1",
		Type: constants.EventCheckoutCompleted,
		CheckoutSession: &GatewayCheckoutSession{
			ID:          "cs_1",
			Mode:        constants.CheckoutModePayment,
			AmountTotal: 20.0,
			Metadata:    map[string]string{constants.MetaUserID: "user-1"},
		},
	}

	accepted, err := f.handle(t)
	require.NoError(t, err)
	require.True(t, accepted)
	require.Len(t, f.prov.ledgerRepo.txs, 1)

	// 同一 event_id 重投：直接确认，不重复入账
	accepted, err = f.handle(t)
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Len(t, f.prov.ledgerRepo.txs, 1)
}

func TestHandleEvent_PermanentFailureIsAccepted(t *testing.T) {
	f := newWebhookFixture()
	// metadata 缺 user_id：重投同样的载荷不会补齐
	f.gw.event = &WebhookEvent{
		ID:   "evt_1",
		Type: constants.EventCheckoutCompleted,
		CheckoutSession: &GatewayCheckoutSession{
			ID:          "cs_1",
			Mode:        constants.CheckoutModePayment,
			AmountTotal: 20.0,
			Metadata:    map[string]string{},
		},
	}

	accepted, err := f.handle(t)
	assert.NoError(t, err)
	assert.True(t, accepted)
	// 永久失败不释放去重占位
	assert.Empty(t, f.dedup.released)
	assert.True(t, f.dedup.seen["evt_1"])
}

func TestHandleEvent_TransientFailureReleasesDedup(t *testing.T) {
	f := newWebhookFixture()
	f.gw.event = &WebhookEvent{
		ID:           "evt_1",
		Type:         constants.EventSubscriptionCreated,
		Subscription: &GatewaySubscription{ID: "sub_ext_1"},
	}
	f.gw.findErr = errors.New("gateway timeout")

	accepted, err := f.handle(t)
	assert.False(t, accepted)
	require.Error(t, err)
	// 瞬时失败不带签名拒绝标记，入口层应答 5xx 等待支付方重投
	assert.False(t, panelErrors.IsInvalidSignature(err))
	assert.Contains(t, f.dedup.released, "evt_1")
	assert.False(t, f.dedup.seen["evt_1"])
}

func TestHandleEvent_CheckoutSubscriptionProvisions(t *testing.T) {
	f := newWebhookFixture()
	f.prov.eggs.egg = testEgg()
	f.gw.event = &WebhookEvent{
		ID:   "evt_1",
		Type: constants.EventCheckoutCompleted,
		CheckoutSession: &GatewayCheckoutSession{
			ID:             "cs_1",
			Mode:           constants.CheckoutModeSubscription,
			SubscriptionID: "sub_ext_1",
			AmountTotal:    4.0,
			Metadata:       serverMeta(),
		},
	}

	accepted, err := f.handle(t)
	require.NoError(t, err)
	assert.True(t, accepted)

	sub, _ := f.prov.subs.GetSubscriptionByExternalID(context.Background(), "sub_ext_1")
	require.NotNil(t, sub)
	assert.Equal(t, 1, f.prov.daemon.createCalls)
}

func TestHandleEvent_SubscriptionCreatedRecovery(t *testing.T) {
	f := newWebhookFixture()
	f.prov.eggs.egg = testEgg()
	// checkout 回执丢失：从签发订阅的 checkout 会话找回 metadata
	f.gw.session = &GatewayCheckoutSession{
		ID:          "cs_1",
		Mode:        constants.CheckoutModeSubscription,
		AmountTotal: 4.0,
		Metadata:    serverMeta(),
	}
	f.gw.event = &WebhookEvent{
		ID:           "evt_1",
		Type:         constants.EventSubscriptionCreated,
		Subscription: &GatewaySubscription{ID: "sub_ext_1"},
	}

	accepted, err := f.handle(t)
	require.NoError(t, err)
	assert.True(t, accepted)

	sub, _ := f.prov.subs.GetSubscriptionByExternalID(context.Background(), "sub_ext_1")
	require.NotNil(t, sub)
	assert.Equal(t, 1, f.prov.daemon.createCalls)
}

func TestHandleEvent_SubscriptionStatusSync(t *testing.T) {
	f := newWebhookFixture()
	sub := f.prov.subs.add(&Subscription{
		UserID:         "user-1",
		ExternalID:     "sub_ext_1",
		ExternalStatus: constants.SubscriptionStatusActive,
		Interval:       constants.IntervalMonth,
	})
	periodEnd := time.Now().AddDate(0, 1, 0).Truncate(time.Second)
	f.gw.event = &WebhookEvent{
		ID:   "evt_1",
		Type: constants.EventSubscriptionUpdated,
		Subscription: &GatewaySubscription{
			ID:                "sub_ext_1",
			Status:            constants.SubscriptionStatusPastDue,
			CancelAtPeriodEnd: true,
			CurrentPeriodEnd:  periodEnd,
		},
	}

	accepted, err := f.handle(t)
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Equal(t, constants.SubscriptionStatusPastDue, sub.ExternalStatus)
	require.NotNil(t, sub.EndsAt)
	assert.True(t, sub.EndsAt.Equal(periodEnd))
	// 状态同步绝不触碰资源
	assert.Equal(t, 0, f.prov.daemon.createCalls)
	assert.Equal(t, 0, f.prov.daemon.deleteCalls)
}

func TestHandleEvent_UnknownEventsIgnored(t *testing.T) {
	f := newWebhookFixture()
	f.gw.event = &WebhookEvent{ID: "evt_1", Type: "charge.refunded"}

	accepted, err := f.handle(t)
	assert.NoError(t, err)
	assert.True(t, accepted)
}
