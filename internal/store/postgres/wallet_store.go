package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bellzar7/Codecan-EX-sub000/internal/domain"
)

// WalletStore implements domain.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *pgxpool.Pool
}

// NewWalletStore creates a new WalletStore backed by the given connection
// pool.
func NewWalletStore(pool *pgxpool.Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Credit atomically adds amount to the user's balance for the given
// currency and wallet type, creating the balance row on first use. The
// upsert is a single statement, so concurrent credits cannot lose updates.
func (s *WalletStore) Credit(ctx context.Context, userID, currency string, amount float64, walletType string) error {
	if amount <= 0 {
		return fmt.Errorf("postgres: credit %s/%s: non-positive amount %v", userID, currency, amount)
	}

	const query = `
		INSERT INTO wallets (user_id, currency, wallet_type, balance, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, currency, wallet_type)
		DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, userID, currency, walletType, amount); err != nil {
		return fmt.Errorf("postgres: credit %s %s to %s: %w", fmt.Sprintf("%.8f", amount), currency, userID, err)
	}
	return nil
}

// Balance returns the current balance for the given wallet row, zero when
// the row does not exist yet.
func (s *WalletStore) Balance(ctx context.Context, userID, currency, walletType string) (float64, error) {
	var balance float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(
			(SELECT balance FROM wallets WHERE user_id = $1 AND currency = $2 AND wallet_type = $3), 0)`,
		userID, currency, walletType,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("postgres: balance %s/%s: %w", userID, currency, err)
	}
	return balance, nil
}

// Compile-time interface check.
var _ domain.WalletStore = (*WalletStore)(nil)
