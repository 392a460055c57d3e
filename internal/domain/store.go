package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// TradeStore persists completed round-trip trades.
type TradeStore interface {
	Insert(ctx context.Context, trade CompletedTrade) error
	ListRecent(ctx context.Context, limit int) ([]CompletedTrade, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]CompletedTrade, error)
	SumNetPnL(ctx context.Context, since time.Time) (float64, error)
}

// GapStore persists sampled gap observations.
type GapStore interface {
	InsertBatch(ctx context.Context, snaps []GapSnapshot) error
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]GapSnapshot, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
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
