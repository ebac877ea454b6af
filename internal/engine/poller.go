package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bellzar7/Codecan-EX-sub000/internal/domain"
)

// Poller wraps the venue fetch operations with rate-limit gating, error
// classification, and a bounded retry policy.
type Poller struct {
	gate     *Gate
	orders   domain.OrderStore
	resolver domain.MarketFeeResolver

	attempts   int
	retryDelay time.Duration
	defaultBan time.Duration
	logger     *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a Poller with the given attempt budget and inter-retry
// delay.
func NewPoller(gate *Gate, orders domain.OrderStore, resolver domain.MarketFeeResolver,
	attempts int, retryDelay, defaultBan time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		gate:       gate,
		orders:     orders,
		resolver:   resolver,
		attempts:   attempts,
		retryDelay: retryDelay,
		defaultBan: defaultBan,
		logger:     logger.With(slog.String("component", "poller")),
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// OpenOrders fetches all open orders for the symbol and normalizes them.
func (p *Poller) OpenOrders(ctx context.Context, ex domain.ExchangeClient, symbol string) ([]domain.AdjustedOrder, error) {
	rates, err := p.resolver.Resolve(ctx, symbol)
	if err != nil {
		return nil, err
	}

	var raws []domain.RawOrder
	err = p.withRetry(ctx, symbol, func() error {
		var fetchErr error
		raws, fetchErr = ex.FetchOpenOrders(ctx, symbol)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.AdjustedOrder, 0, len(raws))
	for _, raw := range raws {
		orders = append(orders, p.resolver.Normalize(raw, rates.Taker))
	}
	return orders, nil
}

// Order fetches a single order by venue id and normalizes it. When the
// venue reports the order archived with no fill, the backing record is
// deleted and ErrNotFound is returned: a terminal, expected condition, not
// a failure.
func (p *Poller) Order(ctx context.Context, ex domain.ExchangeClient, id, symbol string) (domain.AdjustedOrder, error) {
	rates, err := p.resolver.Resolve(ctx, symbol)
	if err != nil {
		return domain.AdjustedOrder{}, err
	}

	var raw domain.RawOrder
	err = p.withRetry(ctx, symbol, func() error {
		var fetchErr error
		raw, fetchErr = ex.FetchOrder(ctx, id, symbol)
		return fetchErr
	})
	if err != nil {
		c := Classify(err, p.now(), p.defaultBan)
		switch c.Kind {
		case KindArchivedNoFill:
			p.logger.InfoContext(ctx, "order archived with no fill, deleting",
				slog.String("reference_id", id),
				slog.String("symbol", symbol),
			)
			if delErr := p.orders.DeleteByReferenceID(ctx, id); delErr != nil && delErr != domain.ErrNotFound {
				p.logger.ErrorContext(ctx, "archived order delete failed",
					slog.String("reference_id", id),
					slog.String("error", delErr.Error()),
				)
			}
			return domain.AdjustedOrder{}, domain.ErrNotFound
		case KindNotFound:
			return domain.AdjustedOrder{}, domain.ErrNotFound
		default:
			return domain.AdjustedOrder{}, err
		}
	}

	return p.resolver.Normalize(raw, rates.Taker), nil
}

// withRetry runs fetch under the retry policy: fail fast while the shared
// ban window is active, persist and propagate a newly classified ban
// without retrying (a ban is authoritative, not transient), and retry
// transient errors up to the attempt budget with a fixed delay between
// attempts.
func (p *Poller) withRetry(ctx context.Context, symbol string, fetch func() error) error {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if p.gate.Blocked() {
			return fmt.Errorf("engine: fetch %s: %w", symbol, domain.ErrRateLimited)
		}

		lastErr = fetch()
		if lastErr == nil {
			return nil
		}

		c := Classify(lastErr, p.now(), p.defaultBan)
		switch c.Kind {
		case KindRateLimited:
			if err := p.gate.BlockUntil(ctx, c.UnblockAt); err != nil {
				p.logger.ErrorContext(ctx, "persist ban window failed",
					slog.String("error", err.Error()),
				)
			}
			return lastErr
		case KindArchivedNoFill, KindNotFound:
			return lastErr
		}

		if attempt < p.attempts {
			p.logger.WarnContext(ctx, "fetch failed, retrying",
				slog.String("symbol", symbol),
				slog.Int("attempt", attempt),
				slog.String("error", lastErr.Error()),
			)
			if err := p.sleep(ctx, p.retryDelay); err != nil {
				return err
			}
		}
	}
	return lastErr
}
