package biz

import (
	"context"
	"errors"
	"testing"
	"time"

	"panel-service/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type subscriptionFixture struct {
	prov *provisionFixture
	gw   *fakeGateway
	uc   *SubscriptionUseCase
}

func newSubscriptionFixture() *subscriptionFixture {
	prov := newProvisionFixture()
	gw := &fakeGateway{}
	return &subscriptionFixture{
		prov: prov,
		gw:   gw,
		uc:   NewSubscriptionUseCase(prov.subs, gw, prov.resources, testLogger()),
	}
}

func (f *subscriptionFixture) addActiveSub(externalID string, creditsBased bool) *Subscription {
	return f.prov.subs.add(&Subscription{
		UserID:         "user-1",
		ExternalID:     externalID,
		ExternalStatus: constants.SubscriptionStatusActive,
		Interval:       constants.IntervalMonth,
		IsCreditsBased: creditsBased,
		CreatedAt:      time.Now(),
	})
}

func (f *subscriptionFixture) linkServer(t *testing.T, sub *Subscription) *GameServer {
	t.Helper()
	s := &GameServer{ID: "srv-1", ExternalID: "ext-srv-1", UserID: sub.UserID, Name: "mc"}
	require.NoError(t, f.prov.servers.CreateGameServer(context.Background(), s))
	require.NoError(t, f.prov.servers.LinkSubscription(context.Background(), s.ID, sub.ID))
	return s
}

func TestCancel_Validation(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown subscription", func(t *testing.T) {
		f := newSubscriptionFixture()
		_, _, err := f.uc.Cancel(ctx, "missing", false)
		assert.Error(t, err)
	})

	t.Run("already canceled", func(t *testing.T) {
		f := newSubscriptionFixture()
		sub := f.addActiveSub("sub_ext_1", false)
		sub.ExternalStatus = constants.SubscriptionStatusCanceled
		_, _, err := f.uc.Cancel(ctx, sub.ID, false)
		assert.Error(t, err)
	})
}

func TestCancel_Immediate(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes resources and cancels at gateway", func(t *testing.T) {
		f := newSubscriptionFixture()
		sub := f.addActiveSub("sub_ext_1", false)
		f.linkServer(t, sub)

		result, pendingSync, err := f.uc.Cancel(ctx, sub.ID, true)
		require.NoError(t, err)
		assert.False(t, pendingSync)
		assert.Equal(t, constants.SubscriptionStatusCanceled, result.ExternalStatus)
		require.NotNil(t, result.EndsAt)
		assert.Equal(t, 1, f.prov.daemon.deleteCalls)
		assert.Equal(t, 1, f.gw.cancelCalls)
		assert.Empty(t, f.prov.servers.servers)
	})

	t.Run("gateway failure is pending sync, local state wins", func(t *testing.T) {
		f := newSubscriptionFixture()
		sub := f.addActiveSub("sub_ext_1", false)
		f.gw.cancelErr = errors.New("gateway timeout")

		result, pendingSync, err := f.uc.Cancel(ctx, sub.ID, true)
		require.NoError(t, err)
		assert.True(t, pendingSync)
		assert.Equal(t, constants.SubscriptionStatusCanceled, result.ExternalStatus)
	})

	t.Run("credits subscription skips gateway", func(t *testing.T) {
		f := newSubscriptionFixture()
		sub := f.addActiveSub("credits_abc", true)

		_, pendingSync, err := f.uc.Cancel(ctx, sub.ID, true)
		require.NoError(t, err)
		assert.False(t, pendingSync)
		assert.Equal(t, 0, f.gw.cancelCalls)
	})
}

func TestCancel_AtPeriodEnd(t *testing.T) {
	ctx := context.Background()

	t.Run("uses gateway period end", func(t *testing.T) {
		f := newSubscriptionFixture()
		sub := f.addActiveSub("sub_ext_1", false)
		f.linkServer(t, sub)
		periodEnd := time.Now().AddDate(0, 1, 0).Truncate(time.Second)
		f.gw.periodEndSub = &GatewaySubscription{
			ID:                "sub_ext_1",
			CancelAtPeriodEnd: true,
			CurrentPeriodEnd:  periodEnd,
		}

		result, pendingSync, err := f.uc.Cancel(ctx, sub.ID, false)
		require.NoError(t, err)
		assert.False(t, pendingSync)
		require.NotNil(t, result.EndsAt)
		assert.True(t, result.EndsAt.Equal(periodEnd))
		// 周期末取消不动资源，回收交给定时任务
		assert.Equal(t, 0, f.prov.daemon.deleteCalls)
	})

	t.Run("gateway failure falls back to local estimate", func(t *testing.T) {
		f := newSubscriptionFixture()
		sub := f.addActiveSub("sub_ext_1", false)
		f.gw.setCancelErr = errors.New("gateway timeout")

		result, pendingSync, err := f.uc.Cancel(ctx, sub.ID, false)
		require.NoError(t, err)
		assert.True(t, pendingSync)
		require.NotNil(t, result.EndsAt)
		expected := sub.CreatedAt.AddDate(0, 1, 0)
		assert.WithinDuration(t, expected, *result.EndsAt, time.Second)
	})

	t.Run("local estimate rolls forward for old subscriptions", func(t *testing.T) {
		f := newSubscriptionFixture()
		sub := f.addActiveSub("sub_ext_1", false)
		// 订阅已走过三个多周期，估算必须落在未来而不是过去的周期末
		sub.CreatedAt = time.Now().AddDate(0, -3, 0).Add(-time.Hour)
		f.gw.setCancelErr = errors.New("gateway timeout")

		result, pendingSync, err := f.uc.Cancel(ctx, sub.ID, false)
		require.NoError(t, err)
		assert.True(t, pendingSync)
		require.NotNil(t, result.EndsAt)
		assert.True(t, result.EndsAt.After(time.Now()))
		// 最多向前滚动一个完整周期
		assert.True(t, result.EndsAt.Before(time.Now().AddDate(0, 1, 1)))
	})

	t.Run("credits subscription ends at next billing", func(t *testing.T) {
		f := newSubscriptionFixture()
		sub := f.addActiveSub("credits_abc", true)
		next := time.Now().AddDate(0, 1, 0).Truncate(time.Second)
		sub.NextBillingAt = &next
		// 如果走了网关，这里会变成 pendingSync
		f.gw.setCancelErr = errors.New("must not be called")

		result, pendingSync, err := f.uc.Cancel(ctx, sub.ID, false)
		require.NoError(t, err)
		assert.False(t, pendingSync)
		require.NotNil(t, result.EndsAt)
		assert.True(t, result.EndsAt.Equal(next))
	})
}

func TestResume(t *testing.T) {
	ctx := context.Background()

	t.Run("within window", func(t *testing.T) {
		f := newSubscriptionFixture()
		sub := f.addActiveSub("sub_ext_1", false)
		sub.ExternalStatus = constants.SubscriptionStatusCanceled
		endsAt := time.Now().AddDate(0, 1, 0)
		sub.EndsAt = &endsAt

		result, pendingSync, err := f.uc.Resume(ctx, sub.ID)
		require.NoError(t, err)
		assert.False(t, pendingSync)
		assert.Equal(t, constants.SubscriptionStatusActive, result.ExternalStatus)
		assert.Nil(t, result.EndsAt)
	})

	t.Run("window expired", func(t *testing.T) {
		f := newSubscriptionFixture()
		sub := f.addActiveSub("sub_ext_1", false)
		sub.ExternalStatus = constants.SubscriptionStatusCanceled
		endsAt := time.Now().Add(-time.Hour)
		sub.EndsAt = &endsAt

		_, _, err := f.uc.Resume(ctx, sub.ID)
		assert.Error(t, err)
	})

	t.Run("not canceled", func(t *testing.T) {
		f := newSubscriptionFixture()
		sub := f.addActiveSub("sub_ext_1", false)
		_, _, err := f.uc.Resume(ctx, sub.ID)
		assert.Error(t, err)
	})

	t.Run("gateway failure is pending sync", func(t *testing.T) {
		f := newSubscriptionFixture()
		sub := f.addActiveSub("sub_ext_1", false)
		sub.ExternalStatus = constants.SubscriptionStatusCanceled
		endsAt := time.Now().AddDate(0, 1, 0)
		sub.EndsAt = &endsAt
		f.gw.setCancelErr = errors.New("gateway timeout")

		result, pendingSync, err := f.uc.Resume(ctx, sub.ID)
		require.NoError(t, err)
		assert.True(t, pendingSync)
		assert.Equal(t, constants.SubscriptionStatusActive, result.ExternalStatus)
	})
}

func TestSyncExternalStatus_UnknownSubscriptionIgnored(t *testing.T) {
	f := newSubscriptionFixture()
	err := f.uc.SyncExternalStatus(context.Background(), &GatewaySubscription{
		ID:     "sub_never_seen",
		Status: constants.SubscriptionStatusCanceled,
	})
	assert.NoError(t, err)
}
