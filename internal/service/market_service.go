// Package service exposes the daemon's operations to the HTTP surface and
// the one-shot CLI modes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/predictswipe/predictd/internal/domain"
	"github.com/predictswipe/predictd/internal/snapshot"
)

// MarketService serves market snapshots. Reads go to the snapshot cache
// first; on a miss it falls through to a live aggregator fetch so the first
// request after startup still gets data.
type MarketService struct {
	agg    *snapshot.Aggregator
	cache  domain.SnapshotCache // optional
	logger *slog.Logger
}

// NewMarketService creates a MarketService. cache may be nil, in which case
// every read is a live fetch.
func NewMarketService(agg *snapshot.Aggregator, cache domain.SnapshotCache, logger *slog.Logger) *MarketService {
	return &MarketService{
		agg:    agg,
		cache:  cache,
		logger: logger.With(slog.String("component", "market_service")),
	}
}

// Snapshot returns the current market snapshot. A cached snapshot is served
// when available; otherwise the aggregator fetches a fresh one and the cache
// is back-filled.
func (s *MarketService) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	if s.cache != nil {
		snap, err := s.cache.Latest(ctx)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, domain.ErrNoSnapshot) {
			s.logger.WarnContext(ctx, "snapshot cache read failed",
				slog.String("error", err.Error()),
			)
		}
	}

	snap := s.agg.Fetch(ctx)

	if s.cache != nil {
		if err := s.cache.Set(ctx, snap); err != nil {
			s.logger.WarnContext(ctx, "snapshot cache set failed",
				slog.String("error", err.Error()),
			)
		}
	}

	return snap, nil
}

// Market returns a single market out of the current snapshot.
// It returns domain.ErrNotFound when the id is absent.
func (s *MarketService) Market(ctx context.Context, id int64) (domain.MarketRecord, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return domain.MarketRecord{}, err
	}

	for _, m := range snap.Markets {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.MarketRecord{}, fmt.Errorf("service: market %d: %w", id, domain.ErrNotFound)
}
