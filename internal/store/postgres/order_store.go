package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bellzar7/Codecan-EX-sub000/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection
// pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts a new order record.
func (s *OrderStore) Create(ctx context.Context, o domain.UserOrder) error {
	const query = `
		INSERT INTO orders (id, user_id, reference_id, symbol, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.UserID, o.ReferenceID, o.Symbol, string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// GetByID retrieves a single order by internal id.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.UserOrder, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, reference_id, symbol, status, created_at
		 FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.UserOrder{}, domain.ErrNotFound
		}
		return domain.UserOrder{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// GetByReferenceID retrieves a single order by its venue reference id.
func (s *OrderStore) GetByReferenceID(ctx context.Context, referenceID string) (domain.UserOrder, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, reference_id, symbol, status, created_at
		 FROM orders WHERE reference_id = $1`, referenceID)

	o, err := scanOrder(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.UserOrder{}, domain.ErrNotFound
		}
		return domain.UserOrder{}, fmt.Errorf("postgres: get order by reference %s: %w", referenceID, err)
	}
	return o, nil
}

// FindOpenByUser returns all OPEN orders belonging to the user.
func (s *OrderStore) FindOpenByUser(ctx context.Context, userID string) ([]domain.UserOrder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, reference_id, symbol, status, created_at
		 FROM orders
		 WHERE user_id = $1 AND status = $2
		 ORDER BY created_at`, userID, string(domain.OrderStatusOpen))
	if err != nil {
		return nil, fmt.Errorf("postgres: find open orders for %s: %w", userID, err)
	}
	defer rows.Close()

	var orders []domain.UserOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan open order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// UpdateByReferenceID persists the venue-side fields of a status diff onto
// the record identified by its venue reference id.
func (s *OrderStore) UpdateByReferenceID(ctx context.Context, referenceID string, patch domain.OrderPatch) error {
	const query = `
		UPDATE orders
		SET status = $1, price = $2, filled = $3, remaining = $4,
		    cost = $5, fee = $6, average = $7, updated_at = NOW()
		WHERE reference_id = $8`

	tag, err := s.pool.Exec(ctx, query,
		string(patch.Status), patch.Price, patch.Filled, patch.Remaining,
		patch.Cost, patch.Fee, patch.Average, referenceID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", referenceID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteByReferenceID removes the record identified by its venue reference
// id.
func (s *OrderStore) DeleteByReferenceID(ctx context.Context, referenceID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM orders WHERE reference_id = $1`, referenceID)
	if err != nil {
		return fmt.Errorf("postgres: delete order %s: %w", referenceID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListTerminalBefore returns up to limit terminal orders last updated
// before cutoff, oldest first.
func (s *OrderStore) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ArchivableOrder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, reference_id, symbol, status, created_at, updated_at
		 FROM orders
		 WHERE status = ANY($1) AND updated_at < $2
		 ORDER BY updated_at
		 LIMIT $3`,
		[]string{
			string(domain.OrderStatusClosed),
			string(domain.OrderStatusCancelled),
			string(domain.OrderStatusExpired),
		},
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.ArchivableOrder
	for rows.Next() {
		var o domain.ArchivableOrder
		var status string
		if err := rows.Scan(&o.ID, &o.UserID, &o.ReferenceID, &o.Symbol, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan terminal order: %w", err)
		}
		o.Status = domain.OrderStatus(status)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// DeleteByIDs removes the given order records after archival.
func (s *OrderStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("postgres: delete archived orders: %w", err)
	}
	return nil
}

func scanOrder(scanner interface{ Scan(dest ...any) error }) (domain.UserOrder, error) {
	var o domain.UserOrder
	var status string
	if err := scanner.Scan(&o.ID, &o.UserID, &o.ReferenceID, &o.Symbol, &status, &o.CreatedAt); err != nil {
		return domain.UserOrder{}, err
	}
	o.Status = domain.OrderStatus(status)
	return o, nil
}

// Compile-time interface checks.
var (
	_ domain.OrderStore        = (*OrderStore)(nil)
	_ domain.OrderArchiveStore = (*OrderStore)(nil)
)
