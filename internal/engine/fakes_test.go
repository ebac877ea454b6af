package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bellzar7/Codecan-EX-sub000/internal/domain"
)

// fakeBanStore keeps the ban window in memory.
type fakeBanStore struct {
	mu      sync.Mutex
	until   int64
	saves   int
	loadErr error
	saveErr error
}

func (f *fakeBanStore) Load(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.until, f.loadErr
}

func (f *fakeBanStore) Save(ctx context.Context, until int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.until = until
	f.saves++
	return nil
}

// fakeBroadcaster records published payloads keyed by route and user.
type fakeBroadcaster struct {
	mu       sync.Mutex
	payloads []published
	err      error
}

type published struct {
	route   string
	userID  string
	payload []byte
}

func (f *fakeBroadcaster) Publish(ctx context.Context, route, userID string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, published{route: route, userID: userID, payload: payload})
	return nil
}

func (f *fakeBroadcaster) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeBroadcaster) published() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]published, len(f.payloads))
	copy(out, f.payloads)
	return out
}

// fakeExchange serves scripted responses per symbol and per order id.
type fakeExchange struct {
	mu          sync.Mutex
	open        map[string][]domain.RawOrder
	openErr     error
	symbolErr   map[string]error
	orders      map[string]domain.RawOrder
	orderErr    map[string]error
	openCalls   int
	orderCalls  int
	symbolCalls map[string]int
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		open:        make(map[string][]domain.RawOrder),
		symbolErr:   make(map[string]error),
		orders:      make(map[string]domain.RawOrder),
		orderErr:    make(map[string]error),
		symbolCalls: make(map[string]int),
	}
}

func (f *fakeExchange) FetchOpenOrders(ctx context.Context, symbol string) ([]domain.RawOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openCalls++
	f.symbolCalls[symbol]++
	if f.openErr != nil {
		return nil, f.openErr
	}
	if err := f.symbolErr[symbol]; err != nil {
		return nil, err
	}
	return f.open[symbol], nil
}

func (f *fakeExchange) FetchOrder(ctx context.Context, id, symbol string) (domain.RawOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderCalls++
	if err, ok := f.orderErr[id]; ok {
		return domain.RawOrder{}, err
	}
	if o, ok := f.orders[id]; ok {
		return o, nil
	}
	return domain.RawOrder{}, fmt.Errorf("venue: order not found")
}

// fakeCanceller records venue cancellations.
type fakeCanceller struct {
	mu        sync.Mutex
	cancelled []string
	err       error
}

func (f *fakeCanceller) CancelOrder(ctx context.Context, id, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

// stubResolver returns fixed rates and applies the generic normalization
// without provider quirks.
type stubResolver struct {
	rates domain.FeeRates
	err   error
}

func (s *stubResolver) Resolve(ctx context.Context, symbol string) (domain.FeeRates, error) {
	if s.err != nil {
		return domain.FeeRates{}, s.err
	}
	return s.rates, nil
}

func (s *stubResolver) Normalize(raw domain.RawOrder, feeRate float64) domain.AdjustedOrder {
	return domain.AdjustedOrder{
		ID:        raw.ID,
		Side:      domain.OrderSide(raw.Side),
		Status:    domain.OrderStatus(raw.Status),
		Symbol:    raw.Symbol,
		Price:     raw.Price,
		Amount:    raw.Amount,
		Cost:      raw.Cost,
		Filled:    raw.Filled,
		Remaining: raw.Remaining,
		Timestamp: raw.Timestamp,
		Fee:       raw.Amount * feeRate / 100,
		Average:   raw.Average,
	}
}

// fakeOrderStore is a map-backed domain.OrderStore.
type fakeOrderStore struct {
	mu      sync.Mutex
	byID    map[string]domain.UserOrder
	patches map[string]domain.OrderPatch
	deleted []string
	findErr error
}

func newFakeOrderStore(orders ...domain.UserOrder) *fakeOrderStore {
	s := &fakeOrderStore{
		byID:    make(map[string]domain.UserOrder),
		patches: make(map[string]domain.OrderPatch),
	}
	for _, o := range orders {
		s.byID[o.ID] = o
	}
	return s
}

func (f *fakeOrderStore) Create(ctx context.Context, o domain.UserOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[o.ID] = o
	return nil
}

func (f *fakeOrderStore) GetByID(ctx context.Context, id string) (domain.UserOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byID[id]
	if !ok {
		return domain.UserOrder{}, domain.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrderStore) GetByReferenceID(ctx context.Context, referenceID string) (domain.UserOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.byID {
		if o.ReferenceID == referenceID {
			return o, nil
		}
	}
	return domain.UserOrder{}, domain.ErrNotFound
}

func (f *fakeOrderStore) FindOpenByUser(ctx context.Context, userID string) ([]domain.UserOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []domain.UserOrder
	for _, o := range f.byID {
		if o.UserID == userID && o.Status == domain.OrderStatusOpen {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) UpdateByReferenceID(ctx context.Context, referenceID string, patch domain.OrderPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, o := range f.byID {
		if o.ReferenceID == referenceID {
			o.Status = patch.Status
			f.byID[id] = o
			f.patches[referenceID] = patch
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeOrderStore) DeleteByReferenceID(ctx context.Context, referenceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, o := range f.byID {
		if o.ReferenceID == referenceID {
			delete(f.byID, id)
			f.deleted = append(f.deleted, referenceID)
			return nil
		}
	}
	return domain.ErrNotFound
}

// fakeWalletStore records credits and can be made to fail.
type fakeWalletStore struct {
	mu      sync.Mutex
	credits []credit
	err     error
}

type credit struct {
	userID     string
	currency   string
	amount     float64
	walletType string
}

func (f *fakeWalletStore) Credit(ctx context.Context, userID, currency string, amount float64, walletType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.credits = append(f.credits, credit{userID: userID, currency: currency, amount: amount, walletType: walletType})
	return nil
}

func (f *fakeWalletStore) Balance(ctx context.Context, userID, currency, walletType string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total float64
	for _, c := range f.credits {
		if c.userID == userID && c.currency == currency && c.walletType == walletType {
			total += c.amount
		}
	}
	return total, nil
}

// fakeAuditStore records audit events in memory.
type fakeAuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (f *fakeAuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, domain.AuditEntry{Event: event, Detail: detail, CreatedAt: time.Now()})
	return nil
}

func (f *fakeAuditStore) ListByEvent(ctx context.Context, event string, limit int) ([]domain.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range f.entries {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out, nil
}

// noSleep is a sleep hook that returns immediately.
func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}
