// Package archive prunes terminal order rows past their retention window,
// exporting each batch to object storage before deleting it.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bellzar7/Codecan-EX-sub000/internal/domain"
)

// BlobWriter is the object storage surface the archiver needs. Small
// exports go out as a single object write; exports past the multipart
// threshold use the chunked upload path.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Config holds archiver parameters.
type Config struct {
	// Retention is how long terminal orders are kept in the primary store.
	Retention time.Duration
	// Interval is the cadence of archival sweeps.
	Interval time.Duration
	// BatchSize caps the rows exported per sweep iteration.
	BatchSize int
	// MultipartThreshold is the serialized batch size, in bytes, above
	// which the export switches to a multipart upload.
	MultipartThreshold int
}

// Archiver periodically exports terminal orders older than the retention
// window to object storage as JSONL and deletes them from the store.
// Deletion happens only after the upload succeeded, so a failed upload
// leaves the rows in place for the next sweep.
type Archiver struct {
	orders domain.OrderArchiveStore
	writer BlobWriter
	audit  domain.AuditStore
	cfg    Config
	logger *slog.Logger

	now func() time.Time
}

// New creates an Archiver.
func New(orders domain.OrderArchiveStore, writer BlobWriter, audit domain.AuditStore, cfg Config, logger *slog.Logger) *Archiver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.MultipartThreshold <= 0 {
		cfg.MultipartThreshold = 8 << 20
	}
	return &Archiver{
		orders: orders,
		writer: writer,
		audit:  audit,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "archiver")),
		now:    time.Now,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	a.logger.Info("archiver: started",
		slog.Duration("interval", a.cfg.Interval),
		slog.Duration("retention", a.cfg.Retention),
	)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver: stopped")
			return ctx.Err()
		case <-ticker.C:
			if n, err := a.Sweep(ctx); err != nil {
				a.logger.Error("archiver: sweep failed",
					slog.String("error", err.Error()),
				)
			} else if n > 0 {
				a.logger.Info("archiver: sweep complete", slog.Int("archived", n))
			}
		}
	}
}

// Sweep exports and prunes terminal orders older than the retention
// window, batch by batch, until no eligible rows remain. It returns the
// number of rows archived.
func (a *Archiver) Sweep(ctx context.Context) (int, error) {
	cutoff := a.now().Add(-a.cfg.Retention)
	total := 0

	for {
		batch, err := a.orders.ListTerminalBefore(ctx, cutoff, a.cfg.BatchSize)
		if err != nil {
			return total, fmt.Errorf("archive: list terminal orders: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}

		key := a.objectKey(a.now())
		if err := a.upload(ctx, key, batch); err != nil {
			return total, err
		}

		ids := make([]string, len(batch))
		for i, o := range batch {
			ids[i] = o.ID
		}
		if err := a.orders.DeleteByIDs(ctx, ids); err != nil {
			return total, fmt.Errorf("archive: delete archived orders: %w", err)
		}

		if a.audit != nil {
			_ = a.audit.Log(ctx, "orders_archived", map[string]any{
				"count":  len(batch),
				"object": key,
				"cutoff": cutoff.UTC().Format(time.RFC3339),
			})
		}

		total += len(batch)
		if len(batch) < a.cfg.BatchSize {
			return total, nil
		}
	}
}

// upload serializes the batch as JSON lines and writes it to object storage.
func (a *Archiver) upload(ctx context.Context, key string, batch []domain.ArchivableOrder) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, o := range batch {
		if err := enc.Encode(archivedOrder{
			ID:          o.ID,
			UserID:      o.UserID,
			ReferenceID: o.ReferenceID,
			Symbol:      o.Symbol,
			Status:      string(o.Status),
			CreatedAt:   o.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt:   o.UpdatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return fmt.Errorf("archive: encode order %s: %w", o.ID, err)
		}
	}

	if buf.Len() > a.cfg.MultipartThreshold {
		if err := a.writer.PutMultipart(ctx, key, &buf, int64(a.cfg.MultipartThreshold)); err != nil {
			return fmt.Errorf("archive: multipart upload %s: %w", key, err)
		}
		return nil
	}
	if err := a.writer.Put(ctx, key, &buf, "application/x-ndjson"); err != nil {
		return fmt.Errorf("archive: upload %s: %w", key, err)
	}
	return nil
}

// objectKey builds a date-partitioned object path for a batch.
func (a *Archiver) objectKey(ts time.Time) string {
	ts = ts.UTC()
	return fmt.Sprintf("orders/%04d/%02d/%02d/orders-%s.jsonl",
		ts.Year(), ts.Month(), ts.Day(), ts.Format("150405.000000000"))
}

// archivedOrder is the JSONL row format for exported orders.
type archivedOrder struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	ReferenceID string `json:"reference_id"`
	Symbol      string `json:"symbol"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}
