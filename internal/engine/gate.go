package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bellzar7/Codecan-EX-sub000/internal/domain"
)

// Gate tracks the shared rate-limit ban window. The unblock-until timestamp
// is persisted through a BanStore so every loop and every process observes
// the same window; ban windows only extend, so last-write-wins is safe.
type Gate struct {
	bans     domain.BanStore
	maxSleep time.Duration
	logger   *slog.Logger

	mu    sync.RWMutex
	until int64 // epoch ms, 0 or past means "not limited"

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGate creates a Gate. maxSleep caps a single backoff sleep before the
// shared window is re-read, so a ban extended elsewhere is noticed and a
// ban lifted elsewhere is not overslept by more than maxSleep.
func NewGate(bans domain.BanStore, maxSleep time.Duration, logger *slog.Logger) *Gate {
	return &Gate{
		bans:     bans,
		maxSleep: maxSleep,
		logger:   logger.With(slog.String("component", "rate_gate")),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Blocked reports whether the cached ban window is still in the future.
func (g *Gate) Blocked() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.until > g.now().UnixMilli()
}

// BlockUntil extends the shared ban window to the given epoch-ms timestamp
// and persists it so other processes observe it. Earlier timestamps than
// the cached window are ignored.
func (g *Gate) BlockUntil(ctx context.Context, unblockAt int64) error {
	g.mu.Lock()
	if unblockAt <= g.until {
		g.mu.Unlock()
		return nil
	}
	g.until = unblockAt
	g.mu.Unlock()

	g.logger.WarnContext(ctx, "rate limit ban window set",
		slog.Int64("unblock_at_ms", unblockAt),
	)
	return g.bans.Save(ctx, unblockAt)
}

// Reload re-reads the shared ban window from the external store, replacing
// the locally cached value. Used after a local wait to detect whether the
// ban was lifted or extended elsewhere.
func (g *Gate) Reload(ctx context.Context) (int64, error) {
	until, err := g.bans.Load(ctx)
	if err != nil {
		return 0, err
	}
	g.mu.Lock()
	g.until = until
	g.mu.Unlock()
	return until, nil
}

// Wait blocks until the ban window clears. It sleeps in chunks of at most
// maxSleep, reloading the shared window after each chunk rather than
// trusting the cached value.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.RLock()
		remaining := time.Duration(g.until-g.now().UnixMilli()) * time.Millisecond
		g.mu.RUnlock()

		if remaining <= 0 {
			return nil
		}
		if remaining > g.maxSleep {
			remaining = g.maxSleep
		}
		if err := g.sleep(ctx, remaining); err != nil {
			return err
		}
		if _, err := g.Reload(ctx); err != nil {
			g.logger.ErrorContext(ctx, "ban window reload failed",
				slog.String("error", err.Error()),
			)
			return err
		}
	}
}

// sleepCtx sleeps for d, returning early with the context error if the
// context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
