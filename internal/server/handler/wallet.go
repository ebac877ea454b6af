package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/bellzar7/Codecan-EX-sub000/internal/domain"
)

// WalletHandler serves wallet balance lookups.
type WalletHandler struct {
	wallet     domain.WalletStore
	walletType string
	logger     *slog.Logger
}

// NewWalletHandler creates a WalletHandler. walletType is the default
// wallet queried when the request does not name one.
func NewWalletHandler(wallet domain.WalletStore, walletType string, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{wallet: wallet, walletType: walletType, logger: logger}
}

// GetBalance returns the settled balance for one of the user's wallet rows.
// GET /api/wallets/{user_id}?currency=BTC&type=spot
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "user_id")
	currency := strings.TrimSpace(r.URL.Query().Get("currency"))
	if userID == "" || currency == "" {
		writeError(w, http.StatusBadRequest, "user id and currency are required")
		return
	}
	walletType := strings.TrimSpace(r.URL.Query().Get("type"))
	if walletType == "" {
		walletType = h.walletType
	}

	balance, err := h.wallet.Balance(r.Context(), userID, currency, walletType)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: balance lookup failed",
			slog.String("user_id", userID),
			slog.String("currency", currency),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"currency":    currency,
		"wallet_type": walletType,
		"balance":     balance,
	})
}
