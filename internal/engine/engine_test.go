package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bellzar7/Codecan-EX-sub000/internal/domain"
)

type engineFixture struct {
	eng    *Engine
	orders *fakeOrderStore
	wallet *fakeWalletStore
	audit  *fakeAuditStore
	bans   *fakeBanStore
	ex     *fakeExchange
	venue  *fakeCanceller
	bus    *fakeBroadcaster
	cancel context.CancelFunc
}

func newEngineFixture(t *testing.T, orders ...domain.UserOrder) *engineFixture {
	t.Helper()

	fx := &engineFixture{
		orders: newFakeOrderStore(orders...),
		wallet: &fakeWalletStore{},
		audit:  &fakeAuditStore{},
		bans:   &fakeBanStore{},
		ex:     newFakeExchange(),
		venue:  &fakeCanceller{},
		bus:    &fakeBroadcaster{},
	}

	fx.eng = New(Deps{
		Orders:    fx.orders,
		Wallet:    fx.wallet,
		Audit:     fx.audit,
		Bans:      fx.bans,
		Exchange:  fx.ex,
		Canceller: fx.venue,
		Resolver:  &stubResolver{rates: domain.FeeRates{Taker: 0.1}},
		Bus:       fx.bus,
	}, Params{
		PollInterval:  5 * time.Second,
		FlushInterval: time.Hour, // ticks driven manually in tests
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
		BanMaxSleep:   time.Minute,
		DefaultBan:    time.Minute,
		WalletType:    "spot",
		StreamRoute:   "orders-stream",
	}, testLogger())

	fx.eng.sleep = noSleep
	fx.eng.poller.sleep = noSleep
	fx.eng.gate.sleep = noSleep

	ctx, cancel := context.WithCancel(context.Background())
	fx.cancel = cancel
	t.Cleanup(cancel)
	if err := fx.eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return fx
}

func openOrder(id, user, ref, symbol string) domain.UserOrder {
	return domain.UserOrder{
		ID: id, UserID: user, ReferenceID: ref, Symbol: symbol,
		Status: domain.OrderStatusOpen, CreatedAt: time.UnixMilli(1),
	}
}

func TestReconcileClosedOrderSettlesExactlyOnce(t *testing.T) {
	fx := newEngineFixture(t, openOrder("o1", "u1", "r1", "BTC/USDT"))
	fx.eng.watch.Add("u1")
	set := newWorkingSet([]domain.UserOrder{openOrder("o1", "u1", "r1", "BTC/USDT")})

	// Not in the open-orders batch anymore; the individual fetch reports
	// the close.
	fx.ex.orders["r1"] = domain.RawOrder{
		ID: "r1", Side: "buy", Status: "CLOSED", Symbol: "BTC/USDT",
		Price: 100, Amount: 2, Cost: 200, Filled: 2, Timestamp: 5,
	}

	if err := fx.eng.reconcileSymbol(context.Background(), "u1", "BTC/USDT", set); err != nil {
		t.Fatalf("reconcileSymbol: %v", err)
	}

	if len(fx.wallet.credits) != 1 {
		t.Fatalf("credited %d times, want 1", len(fx.wallet.credits))
	}
	c := fx.wallet.credits[0]
	if c.userID != "u1" || c.currency != "BTC" || c.walletType != "spot" {
		t.Fatalf("credit = %+v, want u1/BTC/spot", c)
	}
	// filled 2 minus taker fee 2*0.1% = 0.002
	if c.amount != 1.998 {
		t.Fatalf("credited %v BTC, want 1.998", c.amount)
	}

	patch, ok := fx.orders.patches["r1"]
	if !ok || patch.Status != domain.OrderStatusClosed {
		t.Fatalf("store patch = %+v, want CLOSED", patch)
	}
	if set.has("BTC/USDT", "r1") {
		t.Fatalf("closed order still in working set")
	}

	// A second cycle over the same state must not settle again.
	if err := fx.eng.reconcileSymbol(context.Background(), "u1", "BTC/USDT", set); err != nil {
		t.Fatalf("second reconcileSymbol: %v", err)
	}
	if len(fx.wallet.credits) != 1 {
		t.Fatalf("settled again on second cycle: %d credits", len(fx.wallet.credits))
	}
}

func TestReconcileSellCloseCreditsQuoteCurrency(t *testing.T) {
	fx := newEngineFixture(t, openOrder("o1", "u1", "r1", "BTC/USDT"))
	fx.eng.watch.Add("u1")
	set := newWorkingSet([]domain.UserOrder{openOrder("o1", "u1", "r1", "BTC/USDT")})

	fx.ex.orders["r1"] = domain.RawOrder{
		ID: "r1", Side: "sell", Status: "CLOSED", Symbol: "BTC/USDT",
		Price: 100, Amount: 2, Cost: 200, Filled: 2, Timestamp: 5,
	}

	if err := fx.eng.reconcileSymbol(context.Background(), "u1", "BTC/USDT", set); err != nil {
		t.Fatalf("reconcileSymbol: %v", err)
	}

	if len(fx.wallet.credits) != 1 {
		t.Fatalf("credited %d times, want 1", len(fx.wallet.credits))
	}
	c := fx.wallet.credits[0]
	if c.currency != "USDT" {
		t.Fatalf("sell close credited %s, want the quote currency USDT", c.currency)
	}
	if c.amount != 199.998 {
		t.Fatalf("credited %v USDT, want cost 200 minus fee 0.002", c.amount)
	}
}

func TestReconcileUnchangedStatusIsNoOp(t *testing.T) {
	fx := newEngineFixture(t, openOrder("o1", "u1", "r1", "BTC/USDT"))
	fx.eng.watch.Add("u1")
	set := newWorkingSet([]domain.UserOrder{openOrder("o1", "u1", "r1", "BTC/USDT")})

	fx.ex.open["BTC/USDT"] = []domain.RawOrder{{
		ID: "r1", Side: "buy", Status: "OPEN", Symbol: "BTC/USDT",
		Price: 100, Amount: 2, Timestamp: 5,
	}}

	if err := fx.eng.reconcileSymbol(context.Background(), "u1", "BTC/USDT", set); err != nil {
		t.Fatalf("reconcileSymbol: %v", err)
	}

	if len(fx.orders.patches) != 0 {
		t.Fatalf("store patched on an unchanged status: %v", fx.orders.patches)
	}
	if fx.eng.watch.Pending() {
		t.Fatalf("entry staged on an unchanged status")
	}
	if len(fx.wallet.credits) != 0 {
		t.Fatalf("settlement fired without a close")
	}
}

func TestReconcileNonTerminalDiffKeepsOrderInSet(t *testing.T) {
	fx := newEngineFixture(t, openOrder("o1", "u1", "r1", "BTC/USDT"))
	fx.eng.watch.Add("u1")
	set := newWorkingSet([]domain.UserOrder{openOrder("o1", "u1", "r1", "BTC/USDT")})

	fx.ex.open["BTC/USDT"] = []domain.RawOrder{{
		ID: "r1", Side: "buy", Status: "CANCELED", Symbol: "BTC/USDT",
		Price: 100, Amount: 2, Timestamp: 5,
	}}

	if err := fx.eng.reconcileSymbol(context.Background(), "u1", "BTC/USDT", set); err != nil {
		t.Fatalf("reconcileSymbol: %v", err)
	}

	patch, ok := fx.orders.patches["r1"]
	if !ok || patch.Status != domain.OrderStatusCancelled {
		t.Fatalf("store patch = %+v, want CANCELED", patch)
	}
	if !set.has("BTC/USDT", "r1") {
		t.Fatalf("non-closed diff removed the order from the working set")
	}
	if len(fx.wallet.credits) != 0 {
		t.Fatalf("settlement fired on a cancel diff")
	}
	if !fx.eng.watch.Pending() {
		t.Fatalf("cancel diff was not staged for notification")
	}
}

func TestReconcileAdoptsFirstSightedOrders(t *testing.T) {
	// o2 was placed after watch-start: it has a backing record but is not
	// in the working set yet.
	fx := newEngineFixture(t,
		openOrder("o1", "u1", "r1", "BTC/USDT"),
		openOrder("o2", "u1", "r2", "BTC/USDT"),
	)
	fx.eng.watch.Add("u1")
	set := newWorkingSet([]domain.UserOrder{openOrder("o1", "u1", "r1", "BTC/USDT")})

	fx.ex.open["BTC/USDT"] = []domain.RawOrder{
		{ID: "r1", Side: "buy", Status: "OPEN", Symbol: "BTC/USDT", Price: 100, Amount: 2, Timestamp: 5},
		{ID: "r2", Side: "sell", Status: "OPEN", Symbol: "BTC/USDT", Price: 110, Amount: 1, Timestamp: 6},
	}

	if err := fx.eng.reconcileSymbol(context.Background(), "u1", "BTC/USDT", set); err != nil {
		t.Fatalf("reconcileSymbol: %v", err)
	}

	if !set.has("BTC/USDT", "r2") {
		t.Fatalf("first-sighted order not adopted into the working set")
	}
	if !fx.eng.watch.Pending() {
		t.Fatalf("first sighting was not staged for notification")
	}
}

func TestReconcileDeletesVanishedOrder(t *testing.T) {
	fx := newEngineFixture(t, openOrder("o1", "u1", "r1", "BTC/USDT"))
	fx.eng.watch.Add("u1")
	set := newWorkingSet([]domain.UserOrder{openOrder("o1", "u1", "r1", "BTC/USDT")})

	// Not in the batch, and the individual fetch reports it unknown.
	// fakeExchange's default FetchOrder error carries a not-found marker.

	if err := fx.eng.reconcileSymbol(context.Background(), "u1", "BTC/USDT", set); err != nil {
		t.Fatalf("reconcileSymbol: %v", err)
	}

	if len(fx.orders.deleted) != 1 || fx.orders.deleted[0] != "r1" {
		t.Fatalf("deleted = %v, want [r1]", fx.orders.deleted)
	}
	if set.has("BTC/USDT", "r1") {
		t.Fatalf("vanished order still in working set")
	}
}

func TestSettlementFailureIsAuditedNotRetried(t *testing.T) {
	fx := newEngineFixture(t, openOrder("o1", "u1", "r1", "BTC/USDT"))
	fx.eng.watch.Add("u1")
	fx.wallet.err = errors.New("wallet service unavailable")
	set := newWorkingSet([]domain.UserOrder{openOrder("o1", "u1", "r1", "BTC/USDT")})

	fx.ex.orders["r1"] = domain.RawOrder{
		ID: "r1", Side: "buy", Status: "CLOSED", Symbol: "BTC/USDT",
		Price: 100, Amount: 2, Cost: 200, Filled: 2, Timestamp: 5,
	}

	if err := fx.eng.reconcileSymbol(context.Background(), "u1", "BTC/USDT", set); err != nil {
		t.Fatalf("reconcileSymbol: %v", err)
	}

	entries, _ := fx.audit.ListByEvent(context.Background(), "settlement_failed", 10)
	if len(entries) != 1 {
		t.Fatalf("audited %d settlement failures, want 1", len(entries))
	}
	if entries[0].Detail["order_id"] != "r1" {
		t.Fatalf("audit detail = %v, want order_id r1", entries[0].Detail)
	}

	// The order record stays CLOSED; the failure does not unwind the diff.
	patch := fx.orders.patches["r1"]
	if patch.Status != domain.OrderStatusClosed {
		t.Fatalf("order status = %v after failed settlement, want CLOSED", patch.Status)
	}
}

func TestSettlementAmountTruncatesToEightDecimals(t *testing.T) {
	tests := []struct {
		name         string
		adj          domain.AdjustedOrder
		wantCurrency string
		wantAmount   float64
	}{
		{
			name: "buy credits base net of fee",
			adj: domain.AdjustedOrder{
				Symbol: "ETH/USDT", Side: domain.OrderSideBuy,
				Filled: 1.5, Cost: 3000, Fee: 0.0015,
			},
			wantCurrency: "ETH",
			wantAmount:   1.4985,
		},
		{
			name: "sell credits quote net of fee",
			adj: domain.AdjustedOrder{
				Symbol: "ETH/USDT", Side: domain.OrderSideSell,
				Filled: 1.5, Cost: 3000, Fee: 3,
			},
			wantCurrency: "USDT",
			wantAmount:   2997,
		},
		{
			name: "sub-satoshi remainder truncated",
			adj: domain.AdjustedOrder{
				Symbol: "BTC/USDT", Side: domain.OrderSideBuy,
				Filled: 0.123456789, Fee: 0,
			},
			wantCurrency: "BTC",
			wantAmount:   0.12345678,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			currency, amount := SettlementAmount(tt.adj)
			if currency != tt.wantCurrency {
				t.Fatalf("currency = %s, want %s", currency, tt.wantCurrency)
			}
			if amount != tt.wantAmount {
				t.Fatalf("amount = %v, want %v", amount, tt.wantAmount)
			}
		})
	}
}

func TestCancelRejectsForeignUser(t *testing.T) {
	fx := newEngineFixture(t, openOrder("o1", "u1", "r1", "BTC/USDT"))

	err := fx.eng.Cancel(context.Background(), "o1", "intruder")
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if len(fx.venue.cancelled) != 0 {
		t.Fatalf("venue cancel reached for a foreign user")
	}
}

func TestCancelRejectsTerminalOrder(t *testing.T) {
	o := openOrder("o1", "u1", "r1", "BTC/USDT")
	o.Status = domain.OrderStatusClosed
	fx := newEngineFixture(t, o)

	err := fx.eng.Cancel(context.Background(), "o1", "u1")
	if !errors.Is(err, domain.ErrOrderTerminal) {
		t.Fatalf("err = %v, want ErrOrderTerminal", err)
	}
}

func TestCancelUnknownOrder(t *testing.T) {
	fx := newEngineFixture(t)

	err := fx.eng.Cancel(context.Background(), "ghost", "u1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCancelPurgesRecordAndBuffer(t *testing.T) {
	fx := newEngineFixture(t, openOrder("o1", "u1", "r1", "BTC/USDT"))
	fx.eng.watch.Add("u1")
	fx.eng.watch.Stage("u1", tracked("o1"))

	set := newWorkingSet([]domain.UserOrder{openOrder("o1", "u1", "r1", "BTC/USDT")})
	fx.eng.mu.Lock()
	fx.eng.loops["u1"] = set
	fx.eng.mu.Unlock()

	if err := fx.eng.Cancel(context.Background(), "o1", "u1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if len(fx.venue.cancelled) != 1 || fx.venue.cancelled[0] != "r1" {
		t.Fatalf("venue cancelled %v, want [r1]", fx.venue.cancelled)
	}
	if len(fx.orders.deleted) != 1 || fx.orders.deleted[0] != "r1" {
		t.Fatalf("deleted %v, want [r1]", fx.orders.deleted)
	}
	if set.has("BTC/USDT", "r1") {
		t.Fatalf("cancelled order still in working set")
	}
	if fx.eng.watch.Pending() {
		t.Fatalf("cancelled order still staged for flush")
	}

	entries, _ := fx.audit.ListByEvent(context.Background(), "order_cancelled", 10)
	if len(entries) != 1 {
		t.Fatalf("audited %d cancellations, want 1", len(entries))
	}
}

func TestCancelVenueFailureKeepsRecord(t *testing.T) {
	fx := newEngineFixture(t, openOrder("o1", "u1", "r1", "BTC/USDT"))
	fx.venue.err = errors.New("venue unavailable")

	if err := fx.eng.Cancel(context.Background(), "o1", "u1"); err == nil {
		t.Fatalf("expected venue failure to propagate")
	}
	if len(fx.orders.deleted) != 0 {
		t.Fatalf("record deleted despite venue failure")
	}
}

func TestOnUserSubscribeNothingOpen(t *testing.T) {
	fx := newEngineFixture(t)

	if err := fx.eng.OnUserSubscribe(context.Background(), "u1"); err != nil {
		t.Fatalf("OnUserSubscribe: %v", err)
	}
	if fx.eng.Watching("u1") {
		t.Fatalf("user with nothing open stayed on the watchlist")
	}
}

func TestOnUserSubscribeEmptyID(t *testing.T) {
	fx := newEngineFixture(t)

	if err := fx.eng.OnUserSubscribe(context.Background(), ""); err == nil {
		t.Fatalf("expected an error for an empty user id")
	}
}

func TestOnUserSubscribeLoadFailureUnwatches(t *testing.T) {
	fx := newEngineFixture(t)
	fx.orders.findErr = errors.New("db down")

	if err := fx.eng.OnUserSubscribe(context.Background(), "u1"); err == nil {
		t.Fatalf("expected the load failure to propagate")
	}
	if fx.eng.Watching("u1") {
		t.Fatalf("user stayed watched after a failed load")
	}
}

func TestOnUserSubscribeIdempotentWhileWatched(t *testing.T) {
	fx := newEngineFixture(t, openOrder("o1", "u1", "r1", "BTC/USDT"))
	fx.ex.open["BTC/USDT"] = []domain.RawOrder{{
		ID: "r1", Side: "buy", Status: "OPEN", Symbol: "BTC/USDT",
		Price: 100, Amount: 2, Timestamp: 5,
	}}

	// Park the loop in its cadence sleep so it stays alive while the
	// watchlist is inspected.
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	fx.eng.sleep = func(ctx context.Context, d time.Duration) error {
		select {
		case <-release:
			return context.Canceled
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := fx.eng.OnUserSubscribe(context.Background(), "u1"); err != nil {
		t.Fatalf("first subscribe: %v", err)
	}
	if !fx.eng.Watching("u1") {
		t.Fatalf("user not watched after subscribe")
	}
	if err := fx.eng.OnUserSubscribe(context.Background(), "u1"); err != nil {
		t.Fatalf("repeat subscribe: %v", err)
	}

	fx.eng.OnUserUnsubscribe("u1")
	if fx.eng.Watching("u1") {
		t.Fatalf("user still watched after unsubscribe")
	}
}
