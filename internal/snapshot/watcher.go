package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/predictswipe/predictd/internal/domain"
)

// BusChannel is the pub/sub channel fresh snapshots are published on.
const BusChannel = "snapshots"

// Watcher re-fetches the snapshot on a fixed interval and fans the result
// out to the cache and the signal bus. Every cycle hits the ledger; the
// cache only serves the HTTP surface between cycles.
type Watcher struct {
	agg      *Aggregator
	cache    domain.SnapshotCache // optional
	bus      domain.SignalBus     // optional
	interval time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a Watcher. cache and bus may be nil.
func NewWatcher(agg *Aggregator, cache domain.SnapshotCache, bus domain.SignalBus, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watcher{
		agg:      agg,
		cache:    cache,
		bus:      bus,
		interval: interval,
		logger:   logger.With(slog.String("component", "snapshot_watcher")),
	}
}

// RunLoop fetches immediately and then on every tick until the context is
// cancelled.
func (w *Watcher) RunLoop(ctx context.Context) error {
	w.publish(ctx, w.agg.Fetch(ctx))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.publish(ctx, w.agg.Fetch(ctx))
		}
	}
}

// publish fans one settled snapshot out to the cache and the bus. Both are
// best-effort: a publish failure never aborts the watch loop.
func (w *Watcher) publish(ctx context.Context, snap domain.Snapshot) {
	if w.cache != nil {
		if err := w.cache.Set(ctx, snap); err != nil {
			w.logger.WarnContext(ctx, "snapshot cache set failed",
				slog.String("error", err.Error()),
			)
		}
	}

	if w.bus != nil {
		if err := w.publishToBus(ctx, snap); err != nil {
			w.logger.WarnContext(ctx, "snapshot publish failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

func (w *Watcher) publishToBus(ctx context.Context, snap domain.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}
	return w.bus.Publish(ctx, BusChannel, payload)
}
