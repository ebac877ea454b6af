package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bellzar7/Codecan-EX-sub000/internal/domain"
)

// OrderService defines the methods that the order handler requires from the
// reconciliation engine and the store.
type OrderService interface {
	Cancel(ctx context.Context, orderID, userID string) error
	Watching(userID string) bool
}

// OrderHandler serves order-related HTTP endpoints.
type OrderHandler struct {
	engine OrderService
	orders domain.OrderStore
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given engine, store and logger.
func NewOrderHandler(engine OrderService, orders domain.OrderStore, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		engine: engine,
		orders: orders,
		logger: logger,
	}
}

// createOrderRequest registers an order placed at the venue for tracking.
type createOrderRequest struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	ReferenceID string `json:"reference_id"`
	Symbol      string `json:"symbol"`
}

// CreateOrder records a venue order so the reconciliation engine can track
// it. The order itself is placed out of band; this endpoint only creates
// the backing record.
// POST /api/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.ReferenceID = strings.TrimSpace(req.ReferenceID)
	req.Symbol = strings.TrimSpace(req.Symbol)
	if req.UserID == "" || req.ReferenceID == "" || req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "user_id, reference_id and symbol are required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	order := domain.UserOrder{
		ID:          req.ID,
		UserID:      req.UserID,
		ReferenceID: req.ReferenceID,
		Symbol:      req.Symbol,
		Status:      domain.OrderStatusOpen,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.orders.Create(r.Context(), order); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create order failed",
			slog.String("user_id", req.UserID),
			slog.String("reference_id", req.ReferenceID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create order")
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

// listOrdersResponse wraps the list orders response.
type listOrdersResponse struct {
	Orders  []domain.UserOrder `json:"orders"`
	Watched bool               `json:"watched"`
}

// ListOrders returns the open orders tracked for a user.
// GET /api/orders?user_id=...
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter required")
		return
	}

	orders, err := h.orders.FindOpenByUser(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	if orders == nil {
		orders = []domain.UserOrder{}
	}

	writeJSON(w, http.StatusOK, listOrdersResponse{
		Orders:  orders,
		Watched: h.engine.Watching(userID),
	})
}

// GetOrder returns a single order record by its internal ID.
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get order failed",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get order")
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// CancelOrder cancels an order on the venue and removes its record. The
// caller identifies itself with the X-User-ID header; only the owner may
// cancel, and only while the order is not terminal.
// DELETE /api/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing X-User-ID header")
		return
	}

	if err := h.engine.Cancel(r.Context(), id, userID); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, domain.ErrUnauthorized):
			writeError(w, http.StatusForbidden, "order belongs to another user")
		case errors.Is(err, domain.ErrOrderTerminal):
			writeError(w, http.StatusConflict, "order already in a terminal state")
		default:
			h.logger.ErrorContext(r.Context(), "handler: cancel order failed",
				slog.String("order_id", id),
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to cancel order")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "cancelled",
		"order_id": id,
	})
}
