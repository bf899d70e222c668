package domain

import (
	"context"
	"time"
)

// SnapshotCache holds the most recent market snapshot for the HTTP surface.
// The aggregator never reads from it; every fetch cycle goes to the ledger.
type SnapshotCache interface {
	Set(ctx context.Context, snap Snapshot) error
	Latest(ctx context.Context) (Snapshot, error)
}

// RateLimiter provides distributed rate limiting, used to throttle view
// calls against shared RPC endpoints.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking. The betting and creation
// workflows hold a per-account lock so only one workflow instance uses the
// shared signer at a time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out of fresh snapshots to the WebSocket
// hub and any other listeners.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
