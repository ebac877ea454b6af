package domain

import "context"

// RawOrder is a venue order as returned by the exchange API, before
// provider-specific normalization.
type RawOrder struct {
	ID         string
	Side       string
	Status     string
	Symbol     string
	Price      float64
	Amount     float64
	Cost       float64
	Filled     float64
	Remaining  float64
	Average    float64
	ExecutedQt float64 // executed quantity, reported by some providers instead of Filled
	Timestamp  int64
}

// ExchangeClient polls order state from an execution venue.
type ExchangeClient interface {
	FetchOpenOrders(ctx context.Context, symbol string) ([]RawOrder, error)
	FetchOrder(ctx context.Context, id, symbol string) (RawOrder, error)
}

// OrderCanceller submits an authoritative cancellation to the venue.
type OrderCanceller interface {
	CancelOrder(ctx context.Context, id, symbol string) error
}

// MarketFeeResolver returns fee rates for a symbol and normalizes raw venue
// orders into the canonical view, applying provider quirks before generic
// fee computation.
type MarketFeeResolver interface {
	Resolve(ctx context.Context, symbol string) (FeeRates, error)
	Normalize(raw RawOrder, feeRate float64) AdjustedOrder
}
