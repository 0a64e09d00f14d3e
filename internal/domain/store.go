package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ExecutionStore persists the append-only cycle execution log.
type ExecutionStore interface {
	Create(ctx context.Context, rec ExecutionRecord) error
	GetByID(ctx context.Context, id string) (ExecutionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]ExecutionRecord, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]ExecutionRecord, error)
	SumRealizedProfit(ctx context.Context, since time.Time) (decimal.Decimal, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// StuckPositionStore persists stuck-position markers across restarts. An
// empty symbol lists markers for every pair.
type StuckPositionStore interface {
	Create(ctx context.Context, pos StuckPosition) error
	ListOpen(ctx context.Context, symbol string) ([]StuckPosition, error)
	Clear(ctx context.Context, id string) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
