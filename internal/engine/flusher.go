package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/bellzar7/Codecan-EX-sub000/internal/domain"
)

// streamEnvelope is the outbound payload delivered per flush.
type streamEnvelope struct {
	Stream string                `json:"stream"`
	Data   []domain.TrackedOrder `json:"data"`
}

// Flusher drains staged notification buffers into the broadcaster on a
// fixed cadence. The timer stops itself when no buffers remain and is
// restarted lazily the next time a buffer becomes non-empty.
type Flusher struct {
	watch    *Watchlist
	bus      domain.Broadcaster
	route    string
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewFlusher creates a Flusher delivering to the given route.
func NewFlusher(watch *Watchlist, bus domain.Broadcaster, route string, interval time.Duration, logger *slog.Logger) *Flusher {
	return &Flusher{
		watch:    watch,
		bus:      bus,
		route:    route,
		interval: interval,
		logger:   logger.With(slog.String("component", "flusher")),
	}
}

// EnsureRunning starts the flush timer if it is not already running. Called
// by the buffer-staging paths after every append.
func (f *Flusher) EnsureRunning(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return
	}
	f.running = true
	go f.run(ctx)
}

func (f *Flusher) run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.mu.Lock()
			f.running = false
			f.mu.Unlock()
			return
		case <-ticker.C:
			if f.Tick(ctx) == 0 && f.stopIfIdle() {
				return
			}
		}
	}
}

// stopIfIdle marks the flusher stopped when no buffer holds entries. The
// pending re-check under the flusher lock closes the race with a concurrent
// Stage+EnsureRunning, which serializes on the same lock.
func (f *Flusher) stopIfIdle() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watch.Pending() {
		return false
	}
	f.running = false
	return true
}

// Tick performs a single flush pass and returns the number of users whose
// buffers produced a delivery. Exported so tests can drive the scheduler
// deterministically.
func (f *Flusher) Tick(ctx context.Context) int {
	drained := f.watch.Drain()
	delivered := 0

	for userID, entries := range drained {
		batch := prepareBatch(entries)
		if len(batch) == 0 {
			continue
		}

		payload, err := json.Marshal(streamEnvelope{Stream: "orders", Data: batch})
		if err != nil {
			f.logger.ErrorContext(ctx, "marshal flush payload failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := f.bus.Publish(ctx, f.route, userID, payload); err != nil {
			f.logger.ErrorContext(ctx, "flush publish failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			// Restage so a transient broker failure does not lose the
			// window's notifications; the next tick retries.
			for _, t := range batch {
				f.watch.Stage(userID, t)
			}
			continue
		}
		delivered++
	}
	return delivered
}

// prepareBatch drops entries that are not yet safe to show and
// de-duplicates by order id, keeping the first writer in the batch.
func prepareBatch(entries []domain.TrackedOrder) []domain.TrackedOrder {
	seen := make(map[string]bool, len(entries))
	out := make([]domain.TrackedOrder, 0, len(entries))
	for _, t := range entries {
		if !t.Complete() || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}
