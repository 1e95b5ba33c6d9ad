// Package store persists canonical bills and their process history.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/diet-tracker/billsync/internal/config"
	"github.com/diet-tracker/billsync/internal/model"
)

// BillFilter specifies criteria for listing bills.
type BillFilter struct {
	Session int         `json:"session,omitempty"`
	Stage   model.Stage `json:"stage,omitempty"`
	Draft   *bool       `json:"draft,omitempty"`
	Limit   int         `json:"limit,omitempty"`
	Offset  int         `json:"offset,omitempty"`
}

// Store defines the persistence interface for the bill pipeline. The bill
// store is the only shared mutable resource in the system; reads after a
// write to the same identity within one process observe the write.
// Concurrent writers to one identity resolve last-write-wins.
type Store interface {
	// Bills
	GetByIdentity(ctx context.Context, id model.Identity) (*model.CanonicalBill, error)
	GetBill(ctx context.Context, billID string) (*model.CanonicalBill, error)
	Upsert(ctx context.Context, bill *model.CanonicalBill) (string, error)
	ListAll(ctx context.Context, filter BillFilter) ([]model.CanonicalBill, error)
	CountByStage(ctx context.Context) (map[model.Stage]int, error)
	DeleteDrafts(ctx context.Context, olderThanDays int) (int, error)

	// Process history (append-only ledger)
	AppendHistory(ctx context.Context, entry *model.ProcessHistoryEntry) error
	ListHistory(ctx context.Context, billID string) ([]model.ProcessHistoryEntry, error)
	HistoryByAction(ctx context.Context, actionType string) ([]model.ProcessHistoryEntry, error)
	OrphanedHistory(ctx context.Context) ([]model.ProcessHistoryEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// New creates a Store from config.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
