// Package exchange implements the REST client for the execution venue's
// order API.
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bellzar7/Codecan-EX-sub000/internal/domain"
)

// Client is the REST client for the execution venue API.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// NewClient creates a venue REST client.
//
// baseURL is the API root, e.g. "https://api.venue.example/v1".
func NewClient(baseURL, apiKey, apiSecret string) *Client {
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchOpenOrders returns all currently open orders for the given symbol.
func (c *Client) FetchOpenOrders(ctx context.Context, symbol string) ([]domain.RawOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.doSignedRequest(ctx, http.MethodGet, "/orders/open?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("exchange: fetch open orders %s: %w", symbol, err)
	}

	var resp struct {
		Orders []apiOrder `json:"orders"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("exchange: decode open orders: %w", err)
	}

	orders := make([]domain.RawOrder, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		orders = append(orders, rawFromAPI(o))
	}
	return orders, nil
}

// FetchOrder returns a single order by its venue id.
func (c *Client) FetchOrder(ctx context.Context, id, symbol string) (domain.RawOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	path := fmt.Sprintf("/orders/%s?%s", url.PathEscape(id), params.Encode())

	body, err := c.doSignedRequest(ctx, http.MethodGet, path)
	if err != nil {
		return domain.RawOrder{}, fmt.Errorf("exchange: fetch order %s: %w", id, err)
	}

	var resp struct {
		Order apiOrder `json:"order"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.RawOrder{}, fmt.Errorf("exchange: decode order: %w", err)
	}

	return rawFromAPI(resp.Order), nil
}

// CancelOrder submits an authoritative cancellation for the given order.
func (c *Client) CancelOrder(ctx context.Context, id, symbol string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	path := fmt.Sprintf("/orders/%s?%s", url.PathEscape(id), params.Encode())

	if _, err := c.doSignedRequest(ctx, http.MethodDelete, path); err != nil {
		return fmt.Errorf("exchange: cancel order %s: %w", id, err)
	}
	return nil
}

// FetchFeeRates returns the maker/taker commission rates for a symbol.
func (c *Client) FetchFeeRates(ctx context.Context, symbol string) (domain.FeeRates, error) {
	path := fmt.Sprintf("/markets/%s/fees", url.PathEscape(symbol))

	body, err := c.doSignedRequest(ctx, http.MethodGet, path)
	if err != nil {
		return domain.FeeRates{}, fmt.Errorf("exchange: fetch fee rates %s: %w", symbol, err)
	}

	var resp apiFees
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.FeeRates{}, fmt.Errorf("exchange: decode fee rates: %w", err)
	}

	return domain.FeeRates{Maker: resp.MakerRate, Taker: resp.TakerRate}, nil
}

// doSignedRequest performs an authenticated request and returns the raw
// response body. Non-2xx responses become an *APIError carrying the body
// verbatim.
func (c *Client) doSignedRequest(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("X-API-TIMESTAMP", ts)
	req.Header.Set("X-API-SIGNATURE", c.sign(ts+method+path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

// sign computes HMAC-SHA256(secret, message) as a hex string.
func (c *Client) sign(message string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func rawFromAPI(o apiOrder) domain.RawOrder {
	return domain.RawOrder{
		ID:         o.OrderID,
		Side:       o.Side,
		Status:     o.Status,
		Symbol:     o.Symbol,
		Price:      o.Price,
		Amount:     o.Amount,
		Cost:       o.Cost,
		Filled:     o.Filled,
		Remaining:  o.Remaining,
		Average:    o.AvgPrice,
		ExecutedQt: o.ExecutedQty,
		Timestamp:  o.Timestamp,
	}
}

// Compile-time interface checks.
var (
	_ domain.ExchangeClient = (*Client)(nil)
	_ domain.OrderCanceller = (*Client)(nil)
)
