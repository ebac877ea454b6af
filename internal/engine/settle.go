package engine

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/bellzar7/Codecan-EX-sub000/internal/domain"
	"github.com/bellzar7/Codecan-EX-sub000/internal/market"
)

// settlementScale is the decimal precision of credited amounts.
const settlementScale = 8

// settle credits the wallet balance that results from an order close: a
// buy credits the base currency with the filled quantity net of fee, a
// sell credits the quote currency with the proceeds net of fee.
//
// A failed credit is not retried within the cycle. The order stays CLOSED
// in the store; the failure is audited and pushed to operators so a
// reconciliation job can replay it out-of-band.
func (e *Engine) settle(ctx context.Context, userID string, adj domain.AdjustedOrder) {
	currency, amount := SettlementAmount(adj)
	if amount <= 0 {
		return
	}

	if err := e.wallet.Credit(ctx, userID, currency, amount, e.walletType); err != nil {
		e.logger.ErrorContext(ctx, "wallet settlement failed",
			slog.String("user_id", userID),
			slog.String("order_id", adj.ID),
			slog.String("currency", currency),
			slog.Float64("amount", amount),
			slog.String("error", err.Error()),
		)
		if e.audit != nil {
			if auditErr := e.audit.Log(ctx, "settlement_failed", map[string]any{
				"user_id":  userID,
				"order_id": adj.ID,
				"symbol":   adj.Symbol,
				"currency": currency,
				"amount":   amount,
				"error":    err.Error(),
			}); auditErr != nil {
				e.logger.ErrorContext(ctx, "settlement failure audit write failed",
					slog.String("order_id", adj.ID),
					slog.String("error", auditErr.Error()),
				)
			}
		}
		if e.notifier != nil {
			_ = e.notifier.Notify(ctx, "settlement_failed",
				"Settlement failed",
				"order "+adj.ID+" closed but wallet credit failed: "+err.Error(),
			)
		}
		return
	}

	e.logger.InfoContext(ctx, "order settled",
		slog.String("user_id", userID),
		slog.String("order_id", adj.ID),
		slog.String("currency", currency),
		slog.Float64("amount", amount),
	)
}

// SettlementAmount derives the currency and amount credited when the given
// order closes, truncated to 8 decimals.
func SettlementAmount(adj domain.AdjustedOrder) (currency string, amount float64) {
	base, quote := market.SplitSymbol(adj.Symbol)
	fee := decimal.NewFromFloat(adj.Fee)

	var gross decimal.Decimal
	if adj.Side == domain.OrderSideSell {
		currency = quote
		gross = decimal.NewFromFloat(adj.Cost)
	} else {
		currency = base
		gross = decimal.NewFromFloat(adj.Filled)
	}

	amount, _ = gross.Sub(fee).Truncate(settlementScale).Float64()
	return currency, amount
}
