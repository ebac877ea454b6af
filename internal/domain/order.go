package domain

import "time"

// OrderStatus is the normalized venue-side order state. Statuses coming back
// from a venue are upper-cased before comparison so diffing never depends on
// venue-specific casing.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusClosed    OrderStatus = "CLOSED"
	OrderStatusCancelled OrderStatus = "CANCELED"
	OrderStatusExpired   OrderStatus = "EXPIRED"
)

// Terminal reports whether the status ends the order lifecycle.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusClosed, OrderStatusCancelled, OrderStatusExpired:
		return true
	default:
		return false
	}
}

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// UserOrder is the persisted view of a user's order, loaded from the order
// store when the user starts being watched. The reconciliation loop mutates
// Status in place when a diff is detected but the order has not closed yet.
type UserOrder struct {
	ID          string
	UserID      string
	ReferenceID string // venue-side order id
	Symbol      string
	Status      OrderStatus
	CreatedAt   time.Time
}

// AdjustedOrder is the canonical venue-side view of an order after
// provider-specific normalization and fee computation.
type AdjustedOrder struct {
	ID        string
	Side      OrderSide
	Status    OrderStatus
	Symbol    string
	Price     float64
	Amount    float64
	Cost      float64
	Filled    float64
	Remaining float64
	Timestamp int64 // epoch milliseconds
	Fee       float64
	Average   float64
}

// TrackedOrder is the notification payload unit staged per diff. It is never
// persisted; it lives in the per-user outbound buffer until flushed.
type TrackedOrder struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	Price     float64 `json:"price"`
	Amount    float64 `json:"amount"`
	Filled    float64 `json:"filled"`
	Remaining float64 `json:"remaining"`
	Timestamp int64   `json:"timestamp"`
}

// Complete reports whether the entry carries enough venue data to be shown
// to subscribers. Filled and Remaining may legitimately be zero, so only the
// fields a live order always has are checked.
func (t TrackedOrder) Complete() bool {
	return t.ID != "" && t.Status != "" && t.Price > 0 && t.Amount > 0 && t.Timestamp > 0
}

// OrderPatch carries the venue-side fields persisted on a status diff.
type OrderPatch struct {
	Status    OrderStatus
	Price     float64
	Filled    float64
	Remaining float64
	Cost      float64
	Fee       float64
	Average   float64
}

// FeeRates holds the maker/taker commission rates for a symbol, in percent.
type FeeRates struct {
	Maker float64
	Taker float64
}
