package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bellzar7/Codecan-EX-sub000/internal/domain"
)

// workingSet is the in-memory collection of a user's currently-open orders
// being actively reconciled, grouped by symbol. It has its own lock so the
// cancel path can mutate it from outside the loop goroutine.
type workingSet struct {
	mu sync.Mutex
	// symbol -> venue reference id -> order
	orders map[string]map[string]*domain.UserOrder
}

func newWorkingSet(orders []domain.UserOrder) *workingSet {
	ws := &workingSet{orders: make(map[string]map[string]*domain.UserOrder)}
	for i := range orders {
		o := orders[i]
		ws.add(&o)
	}
	return ws
}

func (ws *workingSet) add(o *domain.UserOrder) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	bySymbol, ok := ws.orders[o.Symbol]
	if !ok {
		bySymbol = make(map[string]*domain.UserOrder)
		ws.orders[o.Symbol] = bySymbol
	}
	bySymbol[o.ReferenceID] = o
}

func (ws *workingSet) symbols() []string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	out := make([]string, 0, len(ws.orders))
	for s := range ws.orders {
		out = append(out, s)
	}
	return out
}

func (ws *workingSet) ordersFor(symbol string) []*domain.UserOrder {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	out := make([]*domain.UserOrder, 0, len(ws.orders[symbol]))
	for _, o := range ws.orders[symbol] {
		out = append(out, o)
	}
	return out
}

func (ws *workingSet) has(symbol, referenceID string) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	_, ok := ws.orders[symbol][referenceID]
	return ok
}

func (ws *workingSet) remove(symbol, referenceID string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	bySymbol, ok := ws.orders[symbol]
	if !ok {
		return
	}
	delete(bySymbol, referenceID)
	if len(bySymbol) == 0 {
		delete(ws.orders, symbol)
	}
}

func (ws *workingSet) dropSymbol(symbol string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	delete(ws.orders, symbol)
}

func (ws *workingSet) empty() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return len(ws.orders) == 0
}

// runLoop is the per-user reconciliation loop. It polls the venue on the
// configured cadence, applies diffs, and exits when the user is no longer
// watched or their working set empties.
func (e *Engine) runLoop(ctx context.Context, userID string, set *workingSet) {
	logger := e.logger.With(slog.String("user_id", userID))
	logger.InfoContext(ctx, "reconciliation loop started",
		slog.Int("symbols", len(set.symbols())),
	)

	defer func() {
		// Whatever made the loop exit, the user must not linger on the
		// watchlist with no loop serving them: a stale entry would make
		// every later subscribe a no-op.
		e.watch.Remove(userID)
		e.mu.Lock()
		delete(e.loops, userID)
		e.mu.Unlock()
		logger.InfoContext(ctx, "reconciliation loop stopped")
	}()

	var lastFetch time.Time
	for {
		if ctx.Err() != nil || !e.watch.Contains(userID) {
			return
		}

		// Minimum spacing between fetch cycles, tracked from the start of
		// the previous cycle.
		if !lastFetch.IsZero() {
			if wait := e.pollInterval - e.now().Sub(lastFetch); wait > 0 {
				if err := e.sleep(ctx, wait); err != nil {
					return
				}
			}
		}
		if ctx.Err() != nil || !e.watch.Contains(userID) {
			return
		}

		if e.gate.Blocked() {
			if err := e.gate.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				// A failed reload of the shared window is transient; back
				// off one poll interval and try again rather than exiting.
				logger.WarnContext(ctx, "ban window wait failed",
					slog.String("error", err.Error()),
				)
				if err := e.sleep(ctx, e.pollInterval); err != nil {
					return
				}
			}
			continue
		}

		lastFetch = e.now()
		for _, symbol := range set.symbols() {
			if err := e.reconcileSymbol(ctx, userID, symbol, set); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				// A single bad symbol must not wedge the user's other
				// symbols: drop it from this session's working set.
				logger.WarnContext(ctx, "symbol reconciliation failed, dropping symbol",
					slog.String("symbol", symbol),
					slog.String("error", err.Error()),
				)
				set.dropSymbol(symbol)
			}
		}

		if set.empty() {
			e.watch.Remove(userID)
			return
		}
	}
}

// reconcileSymbol runs one polling cycle for a single symbol of a user:
// batch fetch, per-order diffing with individual-fetch fallback, and
// adoption of first-sighted orders.
func (e *Engine) reconcileSymbol(ctx context.Context, userID, symbol string, set *workingSet) error {
	batch, err := e.poller.OpenOrders(ctx, e.exchange, symbol)
	if err != nil {
		return err
	}

	byRef := make(map[string]domain.AdjustedOrder, len(batch))
	for _, adj := range batch {
		byRef[adj.ID] = adj
	}

	for _, o := range set.ordersFor(symbol) {
		adj, inBatch := byRef[o.ReferenceID]
		if !inBatch {
			// The batched open-orders call can be paginated or stale; an
			// individual fetch settles the order's true state.
			adj, err = e.poller.Order(ctx, e.exchange, o.ReferenceID, symbol)
			if errors.Is(err, domain.ErrNotFound) {
				if delErr := e.orders.DeleteByReferenceID(ctx, o.ReferenceID); delErr != nil && delErr != domain.ErrNotFound {
					return delErr
				}
				set.remove(symbol, o.ReferenceID)
				continue
			}
			if err != nil {
				return err
			}
		}
		if err := e.applyDiff(ctx, userID, symbol, o, adj, set); err != nil {
			return err
		}
	}

	// First sightings: orders open at the venue but not in the working set
	// yet become visible to subscribers without waiting for a diff. The
	// open-orders batch is account level, so each sighting is attributed
	// through its backing record: no record, or a record owned by another
	// user, means the order is not this user's to track or settle.
	for ref, adj := range byRef {
		if set.has(symbol, ref) {
			continue
		}
		rec, err := e.orders.GetByReferenceID(ctx, ref)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if rec.UserID != userID {
			continue
		}
		set.add(&rec)
		e.stage(userID, trackedFrom(rec.ID, adj))
	}

	return nil
}

// applyDiff stages, persists, and settles a detected status transition.
// Diff detection, store update, working-set mutation, and settlement are
// applied in that fixed order.
func (e *Engine) applyDiff(ctx context.Context, userID, symbol string, o *domain.UserOrder, adj domain.AdjustedOrder, set *workingSet) error {
	if adj.Status == "" || adj.Status == o.Status {
		return nil
	}

	e.stage(userID, trackedFrom(o.ID, adj))

	patch := domain.OrderPatch{
		Status:    adj.Status,
		Price:     adj.Price,
		Filled:    adj.Filled,
		Remaining: adj.Remaining,
		Cost:      adj.Cost,
		Fee:       adj.Fee,
		Average:   adj.Average,
	}
	if err := e.orders.UpdateByReferenceID(ctx, o.ReferenceID, patch); err != nil {
		return err
	}

	if adj.Status == domain.OrderStatusClosed {
		// Settlement fires on the open->closed transition only, observed
		// once within this cycle; the order leaves the working set first so
		// a later cycle cannot settle it again.
		set.remove(symbol, o.ReferenceID)
		e.settle(ctx, userID, adj)
		return nil
	}

	o.Status = adj.Status
	return nil
}

// stage appends a tracked order to the user's outbound buffer and wakes
// the flush scheduler. The flusher runs on the engine's lifecycle context,
// not the caller's, so it outlives individual polling cycles.
func (e *Engine) stage(userID string, t domain.TrackedOrder) {
	if e.watch.Stage(userID, t) {
		e.flusher.EnsureRunning(e.runContext())
	}
}

func trackedFrom(id string, adj domain.AdjustedOrder) domain.TrackedOrder {
	return domain.TrackedOrder{
		ID:        id,
		Status:    string(adj.Status),
		Price:     adj.Price,
		Amount:    adj.Amount,
		Filled:    adj.Filled,
		Remaining: adj.Remaining,
		Timestamp: adj.Timestamp,
	}
}
