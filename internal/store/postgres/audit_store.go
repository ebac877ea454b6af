package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bellzar7/Codecan-EX-sub000/internal/domain"
)

// AuditStore implements domain.AuditStore using PostgreSQL.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates a new AuditStore backed by the given connection
// pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Log appends a new audit entry with the given event name and detail map.
// The detail map is stored as JSONB.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit detail: %w", err)
	}

	const query = `INSERT INTO audit_log (id, event, detail) VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, query, uuid.NewString(), event, detailJSON); err != nil {
		return fmt.Errorf("postgres: log audit event %s: %w", event, err)
	}
	return nil
}

// ListByEvent returns the most recent audit entries for a single event
// type. The settlement reconciliation job reads failures through this.
func (s *AuditStore) ListByEvent(ctx context.Context, event string, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, event, detail, created_at
		 FROM audit_log
		 WHERE event = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, event, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit events %s: %w", event, err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var detailJSON []byte
		if err := rows.Scan(&e.ID, &e.Event, &detailJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit entry: %w", err)
		}
		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: decode audit detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Compile-time interface check.
var _ domain.AuditStore = (*AuditStore)(nil)
