package domain

import (
	"context"
	"time"
)

// OrderStore persists user orders.
type OrderStore interface {
	Create(ctx context.Context, order UserOrder) error
	GetByID(ctx context.Context, id string) (UserOrder, error)
	GetByReferenceID(ctx context.Context, referenceID string) (UserOrder, error)
	FindOpenByUser(ctx context.Context, userID string) ([]UserOrder, error)
	UpdateByReferenceID(ctx context.Context, referenceID string, patch OrderPatch) error
	DeleteByReferenceID(ctx context.Context, referenceID string) error
}

// WalletStore settles ledger balances. Credit must be atomic per
// (user, currency, wallet type) row.
type WalletStore interface {
	Credit(ctx context.Context, userID, currency string, amount float64, walletType string) error
	Balance(ctx context.Context, userID, currency, walletType string) (float64, error)
}

// ArchivableOrder is a terminal order row selected for export and pruning.
type ArchivableOrder struct {
	ID          string
	UserID      string
	ReferenceID string
	Symbol      string
	Status      OrderStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderArchiveStore selects and prunes terminal orders past retention.
type OrderArchiveStore interface {
	ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]ArchivableOrder, error)
	DeleteByIDs(ctx context.Context, ids []string) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        string
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log. Settlement failures are
// recorded here so a reconciliation job can replay them out-of-band.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	ListByEvent(ctx context.Context, event string, limit int) ([]AuditEntry, error)
}

// BanStore is the externally shared persistence for the rate-limit gate:
// a single unblock-until timestamp (epoch ms) that every process observes.
// Zero or past values mean "not limited".
type BanStore interface {
	Load(ctx context.Context) (int64, error)
	Save(ctx context.Context, unblockAt int64) error
}
