package exchange

import "fmt"

// apiOrder is the wire representation of an order returned by the venue.
type apiOrder struct {
	OrderID     string  `json:"order_id"`
	Side        string  `json:"side"`
	Status      string  `json:"status"`
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	Amount      float64 `json:"amount"`
	Cost        float64 `json:"cost"`
	Filled      float64 `json:"filled"`
	Remaining   float64 `json:"remaining"`
	AvgPrice    float64 `json:"avg_price"`
	ExecutedQty float64 `json:"executed_qty"`
	Timestamp   int64   `json:"timestamp"`
}

// apiFees is the wire representation of a symbol's commission rates.
type apiFees struct {
	Symbol    string  `json:"symbol"`
	MakerRate float64 `json:"maker_rate"`
	TakerRate float64 `json:"taker_rate"`
}

// APIError is a non-2xx venue response. The raw body is preserved verbatim
// so venue-specific markers (ban messages, archival notices) survive for
// classification upstream.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange: status %d: %s", e.Status, e.Body)
}
