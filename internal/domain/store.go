package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// BetStore persists betting workflow history.
type BetStore interface {
	Insert(ctx context.Context, bet BetRecord) error
	Update(ctx context.Context, bet BetRecord) error
	GetByID(ctx context.Context, id string) (BetRecord, error)
	List(ctx context.Context, account string, opts ListOpts) ([]BetRecord, error)
	ListBefore(ctx context.Context, cutoff time.Time) ([]BetRecord, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CreationStore persists market-creation workflow history.
type CreationStore interface {
	Insert(ctx context.Context, rec CreationRecord) error
	Update(ctx context.Context, rec CreationRecord) error
	List(ctx context.Context, account string, opts ListOpts) ([]CreationRecord, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of workflow transitions.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
