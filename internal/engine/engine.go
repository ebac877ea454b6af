// Package engine implements the live order reconciliation and settlement
// engine: per-user polling against the execution venue under a shared rate
// limit, status diffing, wallet settlement on close, and batched
// notification flushing.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bellzar7/Codecan-EX-sub000/internal/domain"
	"github.com/bellzar7/Codecan-EX-sub000/internal/notify"
)

// Deps bundles the collaborators the engine operates against.
type Deps struct {
	Orders    domain.OrderStore
	Wallet    domain.WalletStore
	Audit     domain.AuditStore
	Bans      domain.BanStore
	Exchange  domain.ExchangeClient
	Canceller domain.OrderCanceller
	Resolver  domain.MarketFeeResolver
	Bus       domain.Broadcaster
	Notifier  *notify.Notifier
}

// Params holds the engine's timing and routing parameters.
type Params struct {
	PollInterval  time.Duration
	FlushInterval time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	BanMaxSleep   time.Duration
	DefaultBan    time.Duration
	WalletType    string
	StreamRoute   string
}

// Engine is the single entry point for watching users and reconciling
// their open orders. Construct one at process start and share it; all
// state (watchlist, buffers, ban window handle) lives on the struct.
type Engine struct {
	orders    domain.OrderStore
	wallet    domain.WalletStore
	audit     domain.AuditStore
	exchange  domain.ExchangeClient
	canceller domain.OrderCanceller
	notifier  *notify.Notifier

	gate    *Gate
	poller  *Poller
	watch   *Watchlist
	flusher *Flusher

	pollInterval time.Duration
	walletType   string
	logger       *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	runCtx context.Context
	loops  map[string]*workingSet
}

// New creates an Engine. Call Start before subscribing users.
func New(deps Deps, p Params, logger *slog.Logger) *Engine {
	logger = logger.With(slog.String("component", "engine"))

	gate := NewGate(deps.Bans, p.BanMaxSleep, logger)
	watch := NewWatchlist()

	return &Engine{
		orders:       deps.Orders,
		wallet:       deps.Wallet,
		audit:        deps.Audit,
		exchange:     deps.Exchange,
		canceller:    deps.Canceller,
		notifier:     deps.Notifier,
		gate:         gate,
		poller:       NewPoller(gate, deps.Orders, deps.Resolver, p.RetryAttempts, p.RetryDelay, p.DefaultBan, logger),
		watch:        watch,
		flusher:      NewFlusher(watch, deps.Bus, p.StreamRoute, p.FlushInterval, logger),
		pollInterval: p.PollInterval,
		walletType:   p.WalletType,
		logger:       logger,
		now:          time.Now,
		sleep:        sleepCtx,
		loops:        make(map[string]*workingSet),
	}
}

// Start binds the engine to its lifecycle context and primes the shared
// ban window from the external store. Reconciliation loops and the flush
// scheduler are scoped to this context.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	e.runCtx = ctx
	e.mu.Unlock()

	if _, err := e.gate.Reload(ctx); err != nil {
		return fmt.Errorf("engine: load ban window: %w", err)
	}
	return nil
}

func (e *Engine) runContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runCtx != nil {
		return e.runCtx
	}
	return context.Background()
}

// OnUserSubscribe starts watching a user: loads their open orders and, if
// any exist, launches a reconciliation loop. A no-op for already-watched
// users; users with nothing open are immediately unwatched again.
func (e *Engine) OnUserSubscribe(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("engine: subscribe: empty user id")
	}
	if !e.watch.Add(userID) {
		return nil
	}

	orders, err := e.orders.FindOpenByUser(ctx, userID)
	if err != nil {
		e.watch.Remove(userID)
		return fmt.Errorf("engine: load open orders for %s: %w", userID, err)
	}
	if len(orders) == 0 {
		e.watch.Remove(userID)
		return nil
	}

	set := newWorkingSet(orders)
	e.mu.Lock()
	e.loops[userID] = set
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "watching user",
		slog.String("user_id", userID),
		slog.Int("open_orders", len(orders)),
	)

	go e.runLoop(e.runContext(), userID, set)
	return nil
}

// OnUserUnsubscribe stops watching a user. Best effort: the loop observes
// the removal within one iteration.
func (e *Engine) OnUserUnsubscribe(userID string) {
	e.watch.Remove(userID)
}

// Watching reports whether the user is currently on the watchlist.
func (e *Engine) Watching(userID string) bool {
	return e.watch.Contains(userID)
}

// Cancel is the authoritative cancellation path. It validates ownership
// and non-terminal status, cancels at the venue, deletes the backing
// record, and purges the order from the user's working set and outbound
// buffer immediately so the next flush cannot show stale state.
func (e *Engine) Cancel(ctx context.Context, orderID, userID string) error {
	o, err := e.orders.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("engine: cancel %s: %w", orderID, err)
	}
	if o.UserID != userID {
		return domain.ErrUnauthorized
	}
	if o.Status.Terminal() {
		return domain.ErrOrderTerminal
	}

	if err := e.canceller.CancelOrder(ctx, o.ReferenceID, o.Symbol); err != nil {
		return fmt.Errorf("engine: cancel %s at venue: %w", orderID, err)
	}

	if err := e.orders.DeleteByReferenceID(ctx, o.ReferenceID); err != nil && err != domain.ErrNotFound {
		return fmt.Errorf("engine: delete cancelled order %s: %w", orderID, err)
	}

	e.mu.Lock()
	set := e.loops[userID]
	e.mu.Unlock()
	if set != nil {
		set.remove(o.Symbol, o.ReferenceID)
	}
	e.watch.DropOrder(userID, orderID)

	if e.audit != nil {
		if auditErr := e.audit.Log(ctx, "order_cancelled", map[string]any{
			"user_id":  userID,
			"order_id": orderID,
			"symbol":   o.Symbol,
		}); auditErr != nil {
			e.logger.WarnContext(ctx, "cancel audit write failed",
				slog.String("order_id", orderID),
				slog.String("error", auditErr.Error()),
			)
		}
	}

	e.logger.InfoContext(ctx, "order cancelled",
		slog.String("user_id", userID),
		slog.String("order_id", orderID),
		slog.String("symbol", o.Symbol),
	)
	return nil
}
