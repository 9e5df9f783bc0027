package biz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"panel-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
)

func testLogger() log.Logger {
	return log.NewStdLogger(io.Discard)
}

// ---- subscription repo ----

type fakeSubscriptionRepo struct {
	seq        int
	byID       map[string]*Subscription
	byExternal map[string]*Subscription
	deleted    []string
	ensureErr  error
	updateErr  error
	deleteErr  error
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{
		byID:       make(map[string]*Subscription),
		byExternal: make(map[string]*Subscription),
	}
}

func (f *fakeSubscriptionRepo) add(sub *Subscription) *Subscription {
	if sub.ID == "" {
		f.seq++
		sub.ID = fmt.Sprintf("sub-%d", f.seq)
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	f.byID[sub.ID] = sub
	f.byExternal[sub.ExternalID] = sub
	return sub
}

func (f *fakeSubscriptionRepo) EnsureSubscription(ctx context.Context, sub *Subscription) (*Subscription, bool, error) {
	if f.ensureErr != nil {
		return nil, false, f.ensureErr
	}
	if existing, ok := f.byExternal[sub.ExternalID]; ok {
		return existing, false, nil
	}
	return f.add(sub), true, nil
}

func (f *fakeSubscriptionRepo) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	return f.byID[subscriptionID], nil
}

func (f *fakeSubscriptionRepo) GetSubscriptionByExternalID(ctx context.Context, externalID string) (*Subscription, error) {
	return f.byExternal[externalID], nil
}

func (f *fakeSubscriptionRepo) UpdateStatus(ctx context.Context, subscriptionID, status string, endsAt *time.Time) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if sub, ok := f.byID[subscriptionID]; ok {
		sub.ExternalStatus = status
		sub.EndsAt = endsAt
	}
	return nil
}

func (f *fakeSubscriptionRepo) SetNextBillingAt(ctx context.Context, subscriptionID string, next *time.Time) error {
	if sub, ok := f.byID[subscriptionID]; ok {
		sub.NextBillingAt = next
	}
	return nil
}

func (f *fakeSubscriptionRepo) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if sub, ok := f.byID[subscriptionID]; ok {
		delete(f.byExternal, sub.ExternalID)
		delete(f.byID, subscriptionID)
	}
	f.deleted = append(f.deleted, subscriptionID)
	return nil
}

func (f *fakeSubscriptionRepo) ListDueCreditRenewals(ctx context.Context, before time.Time, limit int) ([]*Subscription, error) {
	var due []*Subscription
	for _, sub := range f.byID {
		if sub.IsCreditsBased && sub.NextBillingAt != nil && !sub.NextBillingAt.After(before) {
			due = append(due, sub)
		}
	}
	return due, nil
}

func (f *fakeSubscriptionRepo) ListExpiredCancellations(ctx context.Context, now time.Time, limit int) ([]*Subscription, error) {
	var expired []*Subscription
	for _, sub := range f.byID {
		if sub.ExternalStatus == constants.SubscriptionStatusCanceled && sub.EndsAt != nil && !sub.EndsAt.After(now) {
			expired = append(expired, sub)
		}
	}
	return expired, nil
}

// ---- plan / egg repo ----

type fakePlanRepo struct {
	plans map[string]*Plan
}

func (f *fakePlanRepo) GetPlan(ctx context.Context, planID string) (*Plan, error) {
	return f.plans[planID], nil
}

type fakeEggRepo struct {
	egg *Egg
	err error
}

func (f *fakeEggRepo) GetEgg(ctx context.Context, nestID, eggID int64) (*Egg, error) {
	return f.egg, f.err
}

// ---- resource repos ----

type fakeGameServerRepo struct {
	seq     int
	servers map[string]*GameServer
	listErr error
}

func newFakeGameServerRepo() *fakeGameServerRepo {
	return &fakeGameServerRepo{servers: make(map[string]*GameServer)}
}

func (f *fakeGameServerRepo) CreateGameServer(ctx context.Context, s *GameServer) error {
	f.seq++
	f.servers[s.ID] = s
	return nil
}

func (f *fakeGameServerRepo) GetGameServerByExternalID(ctx context.Context, externalID string) (*GameServer, error) {
	for _, s := range f.servers {
		if s.ExternalID == externalID {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeGameServerRepo) LinkSubscription(ctx context.Context, serverID, subscriptionID string) error {
	if s, ok := f.servers[serverID]; ok {
		s.SubscriptionID = &subscriptionID
	}
	return nil
}

func (f *fakeGameServerRepo) UpdateGameServerStatus(ctx context.Context, serverID, status string) error {
	if s, ok := f.servers[serverID]; ok {
		s.Status = status
	}
	return nil
}

func (f *fakeGameServerRepo) ListGameServersBySubscription(ctx context.Context, subscriptionID string) ([]*GameServer, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*GameServer
	for _, s := range f.servers {
		if s.SubscriptionID != nil && *s.SubscriptionID == subscriptionID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeGameServerRepo) DeleteGameServer(ctx context.Context, serverID string) error {
	delete(f.servers, serverID)
	return nil
}

type fakeVpsRepo struct {
	instances map[string]*Vps
}

func newFakeVpsRepo() *fakeVpsRepo {
	return &fakeVpsRepo{instances: make(map[string]*Vps)}
}

func (f *fakeVpsRepo) CreateVps(ctx context.Context, v *Vps) error {
	f.instances[v.ID] = v
	return nil
}

func (f *fakeVpsRepo) GetVps(ctx context.Context, vpsID string) (*Vps, error) {
	return f.instances[vpsID], nil
}

func (f *fakeVpsRepo) LinkSubscription(ctx context.Context, vpsID, subscriptionID string) error {
	if v, ok := f.instances[vpsID]; ok {
		v.SubscriptionID = &subscriptionID
	}
	return nil
}

func (f *fakeVpsRepo) UpdateVpsStatus(ctx context.Context, vpsID, status string) error {
	if v, ok := f.instances[vpsID]; ok {
		v.Status = status
	}
	return nil
}

func (f *fakeVpsRepo) ListVpsBySubscription(ctx context.Context, subscriptionID string) ([]*Vps, error) {
	var out []*Vps
	for _, v := range f.instances {
		if v.SubscriptionID != nil && *v.SubscriptionID == subscriptionID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeVpsRepo) DeleteVps(ctx context.Context, vpsID string) error {
	delete(f.instances, vpsID)
	return nil
}

func (f *fakeVpsRepo) MaxVmid(ctx context.Context) (int64, error) {
	var max int64
	for _, v := range f.instances {
		if v.Vmid > max {
			max = v.Vmid
		}
	}
	return max, nil
}

// ---- infra ----

type fakeDaemon struct {
	createErr   error
	deleteErr   error
	createCalls int
	deleteCalls int
}

func (f *fakeDaemon) CreateServer(ctx context.Context, s *GameServer) error {
	f.createCalls++
	return f.createErr
}

func (f *fakeDaemon) DeleteServer(ctx context.Context, externalID string) error {
	f.deleteCalls++
	return f.deleteErr
}

type fakeHypervisor struct {
	createErr   error
	startErr    error
	deleteErr   error
	createCalls int
	startCalls  int
	deleteCalls int
}

func (f *fakeHypervisor) CreateVM(ctx context.Context, v *Vps) error {
	f.createCalls++
	return f.createErr
}

func (f *fakeHypervisor) StartVM(ctx context.Context, node string, vmid int64) error {
	f.startCalls++
	return f.startErr
}

func (f *fakeHypervisor) DeleteVM(ctx context.Context, node string, vmid int64) error {
	f.deleteCalls++
	return f.deleteErr
}

// ---- credit ledger repo ----

var errFakeInsufficient = errors.New("insufficient balance")

type fakeLedgerRepo struct {
	balances   map[string]float64
	txs        []*CreditTransaction
	applyErr   error
	lastLimit  int
	lastFilter string
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{balances: make(map[string]float64)}
}

func (f *fakeLedgerRepo) GetBalance(ctx context.Context, userID string) (float64, error) {
	return f.balances[userID], nil
}

func (f *fakeLedgerRepo) ApplyMutation(ctx context.Context, m *CreditMutation) (*CreditTransaction, error) {
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	delta := m.Amount
	switch m.Type {
	case constants.CreditTypeDeduction, constants.CreditTypeRenewal:
		delta = -m.Amount
	case constants.CreditTypeAdjustment:
		delta = m.Amount
	}
	before := f.balances[m.UserID]
	after := before + delta
	if after < 0 {
		return nil, errFakeInsufficient
	}
	f.balances[m.UserID] = after
	tx := &CreditTransaction{
		ID:             fmt.Sprintf("tx-%d", len(f.txs)+1),
		UserID:         m.UserID,
		Type:           m.Type,
		Amount:         m.Amount,
		BalanceBefore:  before,
		BalanceAfter:   after,
		Description:    m.Description,
		SubscriptionID: m.SubscriptionID,
		ReferenceID:    m.ReferenceID,
		Metadata:       m.Metadata,
		CreatedAt:      time.Now(),
	}
	f.txs = append(f.txs, tx)
	return tx, nil
}

func (f *fakeLedgerRepo) ListTransactions(ctx context.Context, userID string, limit int, typeFilter string) ([]*CreditTransaction, error) {
	f.lastLimit = limit
	f.lastFilter = typeFilter
	var out []*CreditTransaction
	for _, tx := range f.txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeLedgerRepo) countByType(txType string) int {
	n := 0
	for _, tx := range f.txs {
		if tx.Type == txType {
			n++
		}
	}
	return n
}

// ---- payment gateway ----

type fakeGateway struct {
	event     *WebhookEvent
	verifyErr error

	session *GatewayCheckoutSession
	findErr error

	checkoutReply *CheckoutSessionReply
	checkoutErr   error
	lastCheckout  *CheckoutSessionRequest

	periodEndSub *GatewaySubscription
	setCancelErr error
	cancelErr    error
	cancelCalls  int

	customerID  string
	customerErr error
}

func (f *fakeGateway) CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSessionReply, error) {
	f.lastCheckout = req
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	if f.checkoutReply != nil {
		return f.checkoutReply, nil
	}
	return &CheckoutSessionReply{ID: "cs_test", URL: "https://checkout.example.com/cs_test"}, nil
}

func (f *fakeGateway) RetrieveSubscription(ctx context.Context, externalID string) (*GatewaySubscription, error) {
	return f.periodEndSub, nil
}

func (f *fakeGateway) CancelSubscription(ctx context.Context, externalID string) error {
	f.cancelCalls++
	return f.cancelErr
}

func (f *fakeGateway) SetCancelAtPeriodEnd(ctx context.Context, externalID string, cancel bool) (*GatewaySubscription, error) {
	if f.setCancelErr != nil {
		return nil, f.setCancelErr
	}
	if f.periodEndSub != nil {
		return f.periodEndSub, nil
	}
	return &GatewaySubscription{ID: externalID}, nil
}

func (f *fakeGateway) FindCheckoutSessionBySubscription(ctx context.Context, externalID string) (*GatewayCheckoutSession, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.session, nil
}

func (f *fakeGateway) EnsureCustomer(ctx context.Context, userID, email string) (string, error) {
	if f.customerErr != nil {
		return "", f.customerErr
	}
	if f.customerID != "" {
		return f.customerID, nil
	}
	return "cus_test", nil
}

func (f *fakeGateway) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	return "https://billing.example.com/portal", nil
}

func (f *fakeGateway) ListInvoices(ctx context.Context, customerID string, limit int) ([]*GatewayInvoice, error) {
	return nil, nil
}

func (f *fakeGateway) VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.event, nil
}

// ---- webhook dedup ----

type fakeDedup struct {
	seen     map[string]bool
	markErr  error
	released []string
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{seen: make(map[string]bool)}
}

func (f *fakeDedup) MarkIfFirst(ctx context.Context, eventID string) (bool, error) {
	if f.markErr != nil {
		return false, f.markErr
	}
	if f.seen[eventID] {
		return false, nil
	}
	f.seen[eventID] = true
	return true, nil
}

func (f *fakeDedup) Release(ctx context.Context, eventID string) error {
	delete(f.seen, eventID)
	f.released = append(f.released, eventID)
	return nil
}

// ---- renewal publisher ----

type fakePublisher struct {
	enabled bool
	err     error
	events  []*RenewalEvent
}

func (f *fakePublisher) PublishRenewal(ctx context.Context, event *RenewalEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) Enabled() bool {
	return f.enabled
}

// ---- assembled fixtures ----

type provisionFixture struct {
	subs       *fakeSubscriptionRepo
	plans      *fakePlanRepo
	eggs       *fakeEggRepo
	servers    *fakeGameServerRepo
	vps        *fakeVpsRepo
	daemon     *fakeDaemon
	hypervisor *fakeHypervisor
	ledgerRepo *fakeLedgerRepo
	conf       *BillingConfig
	resources  *ResourceUseCase
	ledger     *CreditLedgerUseCase
	uc         *ProvisioningUseCase
}

func newProvisionFixture() *provisionFixture {
	f := &provisionFixture{
		subs:       newFakeSubscriptionRepo(),
		plans:      &fakePlanRepo{plans: make(map[string]*Plan)},
		eggs:       &fakeEggRepo{},
		servers:    newFakeGameServerRepo(),
		vps:        newFakeVpsRepo(),
		daemon:     &fakeDaemon{},
		hypervisor: &fakeHypervisor{},
		ledgerRepo: newFakeLedgerRepo(),
		conf: &BillingConfig{
			Currency:             "eur",
			CustomRatePerGB:      2.0,
			CustomDiskMultiplier: 3.0,
			IntervalDiscounts:    map[string]map[string]float64{},
			BalanceLowThreshold:  5.0,
			RenewalBatchSize:     100,
		},
	}
	logger := testLogger()
	placement := &HypervisorPlacement{Node: "pve", StoragePool: "local-lvm", VmidMin: 100, VmidMax: 999}
	f.resources = NewResourceUseCase(f.servers, f.vps, f.daemon, f.hypervisor, placement, logger)
	f.ledger = NewCreditLedgerUseCase(f.ledgerRepo, f.conf, logger)
	f.uc = NewProvisioningUseCase(f.subs, f.plans, f.eggs, f.resources, f.conf, logger)
	return f
}
