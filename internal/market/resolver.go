// Package market normalizes raw venue orders into the canonical adjusted
// view and resolves per-symbol commission rates.
package market

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/bellzar7/Codecan-EX-sub000/internal/domain"
)

// feeScale is the number of decimal places fees are truncated to.
const feeScale = 8

// FeeSource fetches maker/taker commission rates for a symbol from the
// venue's market metadata.
type FeeSource interface {
	FetchFeeRates(ctx context.Context, symbol string) (domain.FeeRates, error)
}

// Resolver implements domain.MarketFeeResolver. Fee rates are cached per
// symbol for the lifetime of the process; normalization quirks are selected
// by provider identifier.
type Resolver struct {
	source   FeeSource
	provider Provider

	mu    sync.RWMutex
	rates map[string]domain.FeeRates
}

// NewResolver creates a Resolver using the given fee source and the
// normalization strategy registered for provider.
func NewResolver(source FeeSource, provider string) *Resolver {
	return &Resolver{
		source:   source,
		provider: ProviderFor(provider),
		rates:    make(map[string]domain.FeeRates),
	}
}

// Resolve returns the maker/taker rates for symbol, consulting the venue on
// first use and the cache afterwards.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (domain.FeeRates, error) {
	r.mu.RLock()
	rates, ok := r.rates[symbol]
	r.mu.RUnlock()
	if ok {
		return rates, nil
	}

	rates, err := r.source.FetchFeeRates(ctx, symbol)
	if err != nil {
		return domain.FeeRates{}, fmt.Errorf("market: resolve fees %s: %w", symbol, err)
	}

	r.mu.Lock()
	r.rates[symbol] = rates
	r.mu.Unlock()

	return rates, nil
}

// Normalize converts a raw venue order into the canonical adjusted view:
// provider quirks first, then upper-cased status, derived cost/remaining,
// and the commission fee (amount × rate/100, truncated to 8 decimals).
func (r *Resolver) Normalize(raw domain.RawOrder, feeRate float64) domain.AdjustedOrder {
	raw = r.provider.Apply(raw)

	cost := raw.Cost
	if cost == 0 && raw.Price > 0 {
		cost = raw.Price * raw.Amount
	}
	remaining := raw.Remaining
	if remaining == 0 && raw.Amount > raw.Filled {
		remaining = raw.Amount - raw.Filled
	}

	return domain.AdjustedOrder{
		ID:        raw.ID,
		Side:      domain.OrderSide(strings.ToLower(raw.Side)),
		Status:    domain.OrderStatus(strings.ToUpper(raw.Status)),
		Symbol:    raw.Symbol,
		Price:     raw.Price,
		Amount:    raw.Amount,
		Cost:      cost,
		Filled:    raw.Filled,
		Remaining: remaining,
		Timestamp: raw.Timestamp,
		Average:   raw.Average,
		Fee:       Fee(raw.Amount, feeRate),
	}
}

// Fee computes amount × rate/100 truncated to 8 decimal places.
func Fee(amount, ratePct float64) float64 {
	fee := decimal.NewFromFloat(amount).
		Mul(decimal.NewFromFloat(ratePct)).
		Div(decimal.NewFromInt(100)).
		Truncate(feeScale)
	f, _ := fee.Float64()
	return f
}

// SplitSymbol breaks a "BASE/QUOTE" market symbol into its currencies.
func SplitSymbol(symbol string) (base, quote string) {
	parts := strings.SplitN(symbol, "/", 2)
	base = parts[0]
	if len(parts) == 2 {
		quote = parts[1]
	}
	return base, quote
}

// Compile-time interface check.
var _ domain.MarketFeeResolver = (*Resolver)(nil)
