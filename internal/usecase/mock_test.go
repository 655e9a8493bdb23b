//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gym-payments/internal/domain"
	"gym-payments/internal/domain/model"
	"gym-payments/internal/domain/ports/adapter"
	"gym-payments/internal/domain/ports/repository"
)

// =============================
// In-memory ledger
// =============================

// memDB backs every Mock*Repo. Unique keys mirror deploy/postgres/init.sql.
type memDB struct {
	mu        sync.Mutex
	plans     map[string]model.SubscriptionPlan
	users     map[string]model.User
	gyms      map[string]model.Gym
	merchants map[string]model.MerchantAccount
	settings  map[string]model.MerchantSettings
	payments  map[string]model.Payment
	routes    map[string]model.RouteTransaction
	subs      map[string]model.UserSubscription
	events    map[string]model.WebhookEvent
	refunds   map[string]model.RefundRequest
}

func newMemDB() *memDB {
	return &memDB{
		plans:     map[string]model.SubscriptionPlan{},
		users:     map[string]model.User{},
		gyms:      map[string]model.Gym{},
		merchants: map[string]model.MerchantAccount{},
		settings:  map[string]model.MerchantSettings{},
		payments:  map[string]model.Payment{},
		routes:    map[string]model.RouteTransaction{},
		subs:      map[string]model.UserSubscription{},
		events:    map[string]model.WebhookEvent{},
		refunds:   map[string]model.RefundRequest{},
	}
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (db *memDB) snapshot() *memDB {
	db.mu.Lock()
	defer db.mu.Unlock()
	return &memDB{
		plans:     cloneMap(db.plans),
		users:     cloneMap(db.users),
		gyms:      cloneMap(db.gyms),
		merchants: cloneMap(db.merchants),
		settings:  cloneMap(db.settings),
		payments:  cloneMap(db.payments),
		routes:    cloneMap(db.routes),
		subs:      cloneMap(db.subs),
		events:    cloneMap(db.events),
		refunds:   cloneMap(db.refunds),
	}
}

func (db *memDB) restore(s *memDB) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.plans, db.users, db.gyms = s.plans, s.users, s.gyms
	db.merchants, db.settings = s.merchants, s.settings
	db.payments, db.routes, db.subs = s.payments, s.routes, s.subs
	db.events, db.refunds = s.events, s.refunds
}

func (db *memDB) countPayments() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.payments)
}

func (db *memDB) countRoutes() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.routes)
}

func (db *memDB) countSubs() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.subs)
}

// ---- MockTxManager ----

// MockTxManager serializes transactions and restores a snapshot on error,
// which is enough to observe atomicity in unit tests.
type MockTxManager struct {
	db   *memDB
	txMu sync.Mutex

	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error

	Commits   atomic.Int32
	Rollbacks atomic.Int32
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager(db *memDB) *MockTxManager { return &MockTxManager{db: db} }

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()
	snap := m.db.snapshot()
	if err := fn(ctx, "memtx"); err != nil {
		m.db.restore(snap)
		m.Rollbacks.Add(1)
		return err
	}
	m.Commits.Add(1)
	return nil
}

// =============================
// Repositories
// =============================

// ---- Plans ----

type MockPlanRepo struct{ db *memDB }

var _ repository.SubscriptionPlanRepository = (*MockPlanRepo)(nil)

func (r *MockPlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.SubscriptionPlan) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.plans[p.ID] = *p
	return nil
}

func (r *MockPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *MockPlanRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.SubscriptionPlan
	for _, p := range r.db.plans {
		if p.IsActive {
			cp := p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- Users and gyms ----

type MockUserRepo struct{ db *memDB }

var _ repository.UserRepository = (*MockUserRepo)(nil)

func (r *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.users[u.ID] = *u
	return nil
}

func (r *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

type MockGymRepo struct{ db *memDB }

var _ repository.GymRepository = (*MockGymRepo)(nil)

func (r *MockGymRepo) Save(ctx context.Context, tx repository.Tx, g *model.Gym) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.gyms[g.ID] = *g
	return nil
}

func (r *MockGymRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Gym, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	g, ok := r.db.gyms[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &g, nil
}

// ---- Merchants ----

type MockMerchantRepo struct {
	db *memDB

	FindByExternalIDFunc func(ctx context.Context, tx repository.Tx, externalAccountID string) (*model.MerchantAccount, error)
	UpsertOnboardingFunc func(ctx context.Context, tx repository.Tx, m *model.MerchantAccount) error
}

var _ repository.MerchantAccountRepository = (*MockMerchantRepo)(nil)

func (r *MockMerchantRepo) UpsertOnboarding(ctx context.Context, tx repository.Tx, m *model.MerchantAccount) error {
	if r.UpsertOnboardingFunc != nil {
		return r.UpsertOnboardingFunc(ctx, tx, m)
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, cur := range r.db.merchants {
		if cur.UserID == m.UserID {
			cur.ExternalAccountID = m.ExternalAccountID
			cur.AccountStatus = m.AccountStatus
			cur.OnboardingCompleted = cur.OnboardingCompleted || m.OnboardingCompleted
			cur.BusinessName, cur.BusinessType = m.BusinessName, m.BusinessType
			cur.ContactName, cur.Email, cur.Phone = m.ContactName, m.Email, m.Phone
			cur.UpdatedAt = m.UpdatedAt
			r.db.merchants[id] = cur
			m.ID = id
			m.CommissionPercentage = cur.CommissionPercentage
			return nil
		}
	}
	r.db.merchants[m.ID] = *m
	return nil
}

func (r *MockMerchantRepo) find(pred func(model.MerchantAccount) bool) (*model.MerchantAccount, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, m := range r.db.merchants {
		if pred(m) {
			cp := m
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockMerchantRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.MerchantAccount, error) {
	return r.find(func(m model.MerchantAccount) bool { return m.ID == id })
}

func (r *MockMerchantRepo) FindByUserID(ctx context.Context, tx repository.Tx, userID string) (*model.MerchantAccount, error) {
	return r.find(func(m model.MerchantAccount) bool { return m.UserID == userID })
}

func (r *MockMerchantRepo) FindByGymID(ctx context.Context, tx repository.Tx, gymID string) (*model.MerchantAccount, error) {
	r.db.mu.Lock()
	g, ok := r.db.gyms[gymID]
	r.db.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.FindByUserID(ctx, tx, g.OwnerID)
}

func (r *MockMerchantRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalAccountID string) (*model.MerchantAccount, error) {
	if r.FindByExternalIDFunc != nil {
		return r.FindByExternalIDFunc(ctx, tx, externalAccountID)
	}
	return r.find(func(m model.MerchantAccount) bool { return m.ExternalID() == externalAccountID })
}

func (r *MockMerchantRepo) UpdateStatusByExternalID(ctx context.Context, tx repository.Tx, externalAccountID string, status model.AccountStatus, onboardingCompleted bool) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, m := range r.db.merchants {
		if m.ExternalID() == externalAccountID {
			m.AccountStatus = status
			m.OnboardingCompleted = m.OnboardingCompleted || onboardingCompleted
			m.UpdatedAt = time.Now()
			r.db.merchants[id] = m
			return true, nil
		}
	}
	return false, nil
}

func (r *MockMerchantRepo) EnsureSettings(ctx context.Context, tx repository.Tx, s *model.MerchantSettings) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.settings[s.MerchantAccountID]; !ok {
		r.db.settings[s.MerchantAccountID] = *s
	}
	return nil
}

// ---- Payments ----

type MockPaymentRepo struct {
	db *memDB

	InsertFunc func(ctx context.Context, tx repository.Tx, p *model.Payment) (bool, error)
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func (r *MockPaymentRepo) Insert(ctx context.Context, tx repository.Tx, p *model.Payment) (bool, error) {
	if r.InsertFunc != nil {
		return r.InsertFunc(ctx, tx, p)
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, cur := range r.db.payments {
		if cur.ExternalPaymentID == p.ExternalPaymentID {
			return false, nil
		}
	}
	r.db.payments[p.ID] = *p
	return true, nil
}

func (r *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *MockPaymentRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalPaymentID string) (*model.Payment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, p := range r.db.payments {
		if p.ExternalPaymentID == externalPaymentID {
			cp := p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) MarkFailedByExternalID(ctx context.Context, tx repository.Tx, externalPaymentID, reason string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, p := range r.db.payments {
		if p.ExternalPaymentID == externalPaymentID && p.Status != model.PaymentStatusFailed {
			p.Status = model.PaymentStatusFailed
			p.FailureReason = reason
			r.db.payments[id] = p
			return true, nil
		}
	}
	return false, nil
}

func (r *MockPaymentRepo) MarkSucceededByExternalID(ctx context.Context, tx repository.Tx, paid *model.Payment) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, p := range r.db.payments {
		if p.ExternalPaymentID == paid.ExternalPaymentID && p.Status == model.PaymentStatusFailed {
			p.Status = model.PaymentStatusSuccess
			p.FailureReason = ""
			p.Amount, p.Currency, p.Method = paid.Amount, paid.Currency, paid.Method
			p.PaymentDate, p.UpdatedAt = paid.PaymentDate, paid.UpdatedAt
			if paid.Signature != "" {
				p.Signature = paid.Signature
			}
			r.db.payments[id] = p
			return true, nil
		}
	}
	return false, nil
}

func (r *MockPaymentRepo) ListWithoutSubscription(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	withSub := map[string]bool{}
	for _, s := range r.db.subs {
		withSub[s.PaymentID] = true
	}
	var out []*model.Payment
	for _, p := range r.db.payments {
		if p.Status == model.PaymentStatusSuccess && !withSub[p.ID] && p.CreatedAt.Before(olderThan) {
			cp := p
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ---- Route transactions ----

type MockRouteRepo struct{ db *memDB }

var _ repository.RouteTransactionRepository = (*MockRouteRepo)(nil)

func (r *MockRouteRepo) Insert(ctx context.Context, tx repository.Tx, rt *model.RouteTransaction) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, cur := range r.db.routes {
		if cur.PaymentID == rt.PaymentID {
			return fmt.Errorf("%w: route for payment %s", domain.ErrAlreadyExists, rt.PaymentID)
		}
	}
	r.db.routes[rt.ID] = *rt
	return nil
}

func (r *MockRouteRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.RouteTransaction, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, rt := range r.db.routes {
		if rt.PaymentID == paymentID {
			cp := rt
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockRouteRepo) FindByTransferID(ctx context.Context, tx repository.Tx, externalTransferID string) (*model.RouteTransaction, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, rt := range r.db.routes {
		if rt.ExternalTransferID == externalTransferID {
			cp := rt
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockRouteRepo) UpdateTransferStatus(ctx context.Context, tx repository.Tx, externalTransferID string, status model.TransferStatus, failureReason string, at time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, rt := range r.db.routes {
		if rt.ExternalTransferID != externalTransferID {
			continue
		}
		if rt.TransferStatus.Terminal() && rt.TransferStatus != status {
			return false, nil
		}
		rt.TransferStatus = status
		if failureReason != "" {
			rt.FailureReason = failureReason
		}
		if status == model.TransferStatusTransferred && rt.TransferredAt == nil {
			t := at
			rt.TransferredAt = &t
		}
		rt.UpdatedAt = at
		r.db.routes[id] = rt
		return true, nil
	}
	return false, nil
}

// ---- Subscriptions ----

type MockSubscriptionRepo struct {
	db *memDB

	SaveFunc func(ctx context.Context, tx repository.Tx, s *model.UserSubscription) error
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func (r *MockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.UserSubscription) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, s)
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, cur := range r.db.subs {
		if cur.PaymentID == s.PaymentID && cur.ID != s.ID {
			return fmt.Errorf("%w: subscription for payment %s", domain.ErrAlreadyExists, s.PaymentID)
		}
	}
	r.db.subs[s.ID] = *s
	return nil
}

func (r *MockSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.UserSubscription, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.subs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (r *MockSubscriptionRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.UserSubscription, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, s := range r.db.subs {
		if s.PaymentID == paymentID {
			cp := s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// ---- Webhook events ----

type MockWebhookEventRepo struct{ db *memDB }

var _ repository.WebhookEventRepository = (*MockWebhookEventRepo)(nil)

func (r *MockWebhookEventRepo) CreateIfNotExists(ctx context.Context, tx repository.Tx, e *model.WebhookEvent) (bool, *model.WebhookEvent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, cur := range r.db.events {
		if cur.EventType == e.EventType && cur.EventID == e.EventID {
			cp := cur
			return false, &cp, nil
		}
	}
	r.db.events[e.ID] = *e
	cp := *e
	return true, &cp, nil
}

func (r *MockWebhookEventRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.WebhookEvent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}

func (r *MockWebhookEventRepo) MarkProcessed(ctx context.Context, tx repository.Tx, id string, at time.Time, note string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.events[id]
	if !ok {
		return domain.ErrNotFound
	}
	t := at
	e.Processed, e.ProcessedAt, e.Note, e.ProcessingError = true, &t, note, ""
	e.Attempts++
	r.db.events[id] = e
	return nil
}

func (r *MockWebhookEventRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string, processingError string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.events[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.ProcessingError = processingError
	e.Attempts++
	r.db.events[id] = e
	return nil
}

func (r *MockWebhookEventRepo) ListUnprocessedOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.WebhookEvent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.WebhookEvent
	for _, e := range r.db.events {
		if !e.Processed && e.CreatedAt.Before(olderThan) {
			cp := e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockWebhookEventRepo) all() []model.WebhookEvent {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]model.WebhookEvent, 0, len(r.db.events))
	for _, e := range r.db.events {
		out = append(out, e)
	}
	return out
}

// ---- Refunds ----

type MockRefundRepo struct{ db *memDB }

var _ repository.RefundRepository = (*MockRefundRepo)(nil)

func (r *MockRefundRepo) Upsert(ctx context.Context, tx repository.Tx, rr *model.RefundRequest) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, cur := range r.db.refunds {
		if cur.ExternalRefundID == rr.ExternalRefundID {
			if cur.Status != model.RefundStatusProcessed {
				cur.Status = rr.Status
			}
			cur.Amount = rr.Amount
			if cur.PaymentID == nil {
				cur.PaymentID = rr.PaymentID
			}
			cur.UpdatedAt = rr.UpdatedAt
			r.db.refunds[id] = cur
			return nil
		}
	}
	r.db.refunds[rr.ID] = *rr
	return nil
}

func (r *MockRefundRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalRefundID string) (*model.RefundRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, rr := range r.db.refunds {
		if rr.ExternalRefundID == externalRefundID {
			cp := rr
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockPaymentGateway struct {
	mu sync.Mutex

	// Payments and Transfers back the default Fetch* behavior.
	Payments  map[string]*adapter.GatewayPayment
	Transfers map[string][]adapter.GatewayTransfer

	CreateOrderFunc         func(ctx context.Context, req adapter.OrderRequest) (*adapter.GatewayOrder, error)
	FetchPaymentFunc        func(ctx context.Context, paymentID string) (*adapter.GatewayPayment, error)
	FetchTransfersFunc      func(ctx context.Context, paymentID string) ([]adapter.GatewayTransfer, error)
	CreateLinkedAccountFunc func(ctx context.Context, req adapter.LinkedAccountRequest) (*adapter.LinkedAccount, error)

	Orders []adapter.OrderRequest
	Calls  struct {
		CreateOrder, FetchPayment, FetchTransfers, CreateLinkedAccount int
	}
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func NewMockPaymentGateway() *MockPaymentGateway {
	return &MockPaymentGateway{
		Payments:  map[string]*adapter.GatewayPayment{},
		Transfers: map[string][]adapter.GatewayTransfer{},
	}
}

func (m *MockPaymentGateway) Name() string { return "mockpay" }

func (m *MockPaymentGateway) CreateOrder(ctx context.Context, req adapter.OrderRequest) (*adapter.GatewayOrder, error) {
	m.mu.Lock()
	m.Calls.CreateOrder++
	m.Orders = append(m.Orders, req)
	m.mu.Unlock()
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, req)
	}
	return &adapter.GatewayOrder{ID: "order_" + uuid.NewString()[:8], Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created"}, nil
}

func (m *MockPaymentGateway) FetchPayment(ctx context.Context, paymentID string) (*adapter.GatewayPayment, error) {
	m.mu.Lock()
	m.Calls.FetchPayment++
	p, ok := m.Payments[paymentID]
	m.mu.Unlock()
	if m.FetchPaymentFunc != nil {
		return m.FetchPaymentFunc(ctx, paymentID)
	}
	if !ok {
		return nil, fmt.Errorf("%w: payment %s not found", domain.ErrGateway, paymentID)
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentGateway) FetchTransfers(ctx context.Context, paymentID string) ([]adapter.GatewayTransfer, error) {
	m.mu.Lock()
	m.Calls.FetchTransfers++
	ts := append([]adapter.GatewayTransfer(nil), m.Transfers[paymentID]...)
	m.mu.Unlock()
	if m.FetchTransfersFunc != nil {
		return m.FetchTransfersFunc(ctx, paymentID)
	}
	return ts, nil
}

func (m *MockPaymentGateway) CreateLinkedAccount(ctx context.Context, req adapter.LinkedAccountRequest) (*adapter.LinkedAccount, error) {
	m.mu.Lock()
	m.Calls.CreateLinkedAccount++
	m.mu.Unlock()
	if m.CreateLinkedAccountFunc != nil {
		return m.CreateLinkedAccountFunc(ctx, req)
	}
	return &adapter.LinkedAccount{ID: "acc_" + req.ReferenceID, Status: "created"}, nil
}

// ---- In-memory Locker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if tok, ok := l.held[key]; ok && tok != "" {
		return "", errors.New("locked")
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		return nil
	}
	return errors.New("unlock token mismatch")
}

func (l *MockLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

// ---- Rate limiter ----

type MockRateLimiter struct {
	AllowFunc func(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

func (m *MockRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, key, limit, window)
	}
	return true, nil
}

// =============================
// Fixtures
// =============================

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

const (
	testKeySecret     = "rzp_test_key_secret"
	testWebhookSecret = "whsec_test"
	testCurrency      = "INR"
)

var testNow = time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

// testEnv wires every mock around one memDB.
type testEnv struct {
	db        *memDB
	tm        *MockTxManager
	plans     *MockPlanRepo
	users     *MockUserRepo
	gyms      *MockGymRepo
	merchants *MockMerchantRepo
	payments  *MockPaymentRepo
	routes    *MockRouteRepo
	subs      *MockSubscriptionRepo
	events    *MockWebhookEventRepo
	refunds   *MockRefundRepo
	gateway   *MockPaymentGateway
}

func newTestEnv() *testEnv {
	db := newMemDB()
	return &testEnv{
		db:        db,
		tm:        NewMockTxManager(db),
		plans:     &MockPlanRepo{db: db},
		users:     &MockUserRepo{db: db},
		gyms:      &MockGymRepo{db: db},
		merchants: &MockMerchantRepo{db: db},
		payments:  &MockPaymentRepo{db: db},
		routes:    &MockRouteRepo{db: db},
		subs:      &MockSubscriptionRepo{db: db},
		events:    &MockWebhookEventRepo{db: db},
		refunds:   &MockRefundRepo{db: db},
		gateway:   NewMockPaymentGateway(),
	}
}

func strPtr(s string) *string { return &s }

// seedPlatformPlan stores a 499.00 / 30 day plan with no gym and a member user.
func (e *testEnv) seedPlatformPlan() (*model.SubscriptionPlan, *model.User) {
	ctx := context.Background()
	plan := &model.SubscriptionPlan{ID: "plan-platform", Name: "Monthly", Price: decimal.RequireFromString("499.00"), DurationDays: 30, IsActive: true}
	user := &model.User{ID: "user-1", Role: model.RoleMember}
	_ = e.plans.Save(ctx, nil, plan)
	_ = e.users.Save(ctx, nil, user)
	return plan, user
}

// seedGym stores a gym, its owner, an activated merchant (10% commission),
// a merchant-owned 499.00 plan and a member of that gym.
func (e *testEnv) seedGym(status model.AccountStatus) (*model.SubscriptionPlan, *model.User, *model.MerchantAccount) {
	ctx := context.Background()
	gymID := "gym-1"
	owner := &model.User{ID: "owner-1", Role: model.RoleGymOwner, GymID: strPtr(gymID)}
	member := &model.User{ID: "member-1", Role: model.RoleMember, GymID: strPtr(gymID)}
	_ = e.users.Save(ctx, nil, owner)
	_ = e.users.Save(ctx, nil, member)
	_ = e.gyms.Save(ctx, nil, &model.Gym{ID: gymID, Name: "Iron Temple", OwnerID: owner.ID})

	merchant := &model.MerchantAccount{
		ID:                   "merchant-1",
		UserID:               owner.ID,
		ExternalAccountID:    strPtr("acc_gym1"),
		AccountStatus:        status,
		CommissionPercentage: decimal.NewFromInt(10),
		IsActive:             true,
		OnboardingCompleted:  status == model.AccountStatusActivated,
		BusinessName:         "Iron Temple LLP",
	}
	_ = e.merchants.UpsertOnboarding(ctx, nil, merchant)

	plan := &model.SubscriptionPlan{ID: "plan-gym", GymID: strPtr(gymID), Name: "Iron Monthly", Price: decimal.RequireFromString("499.00"), DurationDays: 30, IsActive: true}
	_ = e.plans.Save(ctx, nil, plan)
	return plan, member, merchant
}

// capture registers a captured payment at the mock gateway.
func (e *testEnv) capture(paymentID, orderID string, amount int64, notes map[string]string) {
	e.gateway.mu.Lock()
	defer e.gateway.mu.Unlock()
	e.gateway.Payments[paymentID] = &adapter.GatewayPayment{
		ID: paymentID, OrderID: orderID, Amount: amount, Currency: testCurrency,
		Status: "captured", Captured: true, Method: "upi", Notes: notes, CreatedAt: testNow,
	}
}

func (e *testEnv) transfer(paymentID, transferID, recipient string, amount int64, status string) {
	e.gateway.mu.Lock()
	defer e.gateway.mu.Unlock()
	e.gateway.Transfers[paymentID] = append(e.gateway.Transfers[paymentID], adapter.GatewayTransfer{
		ID: transferID, Source: paymentID, Recipient: recipient, Amount: amount, Currency: testCurrency, Status: status,
	})
}
