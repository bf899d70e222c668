// Package snapshot aggregates per-market on-chain reads into immutable,
// consistently ordered market snapshots.
package snapshot

import (
	"context"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/predictswipe/predictd/internal/contract"
	"github.com/predictswipe/predictd/internal/domain"
)

// MarketReader is the slice of the contract binding the aggregator needs.
type MarketReader interface {
	GetMarketInfo(ctx context.Context, marketID int64) (contract.MarketInfo, error)
	MarketCount(ctx context.Context) (int64, error)
}

// Config holds aggregator parameters.
type Config struct {
	// MarketIDs is the fixed set of ids to read when discovery is off or
	// unavailable.
	MarketIDs []int64

	// Discover enables reading marketCount from the contract to enumerate
	// ids 1..count. When the count view is missing on the deployment, the
	// static MarketIDs list is used instead.
	Discover bool

	// ReadTimeout bounds each individual view call.
	ReadTimeout time.Duration
}

// Aggregator fetches a set of market records concurrently and joins them
// into a single Snapshot. Results are only exposed after every read has
// settled: partial snapshots would misorder markets and skew any
// whole-snapshot statistic computed downstream.
type Aggregator struct {
	reader  MarketReader
	limiter domain.RateLimiter // optional, throttles RPC reads
	cfg     Config
	logger  *slog.Logger
}

// NewAggregator creates an Aggregator. limiter may be nil.
func NewAggregator(reader MarketReader, limiter domain.RateLimiter, cfg Config, logger *slog.Logger) *Aggregator {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	return &Aggregator{
		reader:  reader,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "snapshot")),
	}
}

// Fetch runs one aggregation cycle: one concurrent read per market id, a
// join barrier, then filtering, normalization, and an ascending sort by id.
// Individual read failures only exclude their slot; the snapshot status is
// SnapshotError only when no populated market survived.
func (a *Aggregator) Fetch(ctx context.Context) domain.Snapshot {
	ids := a.marketIDs(ctx)

	type slot struct {
		id   int64
		info contract.MarketInfo
		err  error
	}
	slots := make([]slot, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			if a.limiter != nil {
				if err := a.limiter.Wait(gctx, "rpc:read"); err != nil {
					slots[i] = slot{id: id, err: err}
					return nil
				}
			}
			readCtx, cancel := context.WithTimeout(gctx, a.cfg.ReadTimeout)
			defer cancel()

			info, err := a.reader.GetMarketInfo(readCtx, id)
			slots[i] = slot{id: id, info: info, err: err}
			return nil // per-slot errors never abort the join
		})
	}
	_ = g.Wait()

	snap := domain.Snapshot{TakenAt: time.Now().UTC()}
	for _, s := range slots {
		if s.err != nil {
			a.logger.WarnContext(ctx, "market read failed",
				slog.Int64("market_id", s.id),
				slog.String("error", s.err.Error()),
			)
			snap.FailedIDs = append(snap.FailedIDs, s.id)
			continue
		}
		if !s.info.Populated() {
			continue
		}
		snap.Markets = append(snap.Markets, normalize(s.id, s.info))
	}

	sort.Slice(snap.Markets, func(i, j int) bool {
		return snap.Markets[i].ID < snap.Markets[j].ID
	})

	if len(snap.Markets) == 0 {
		snap.Status = domain.SnapshotError
	} else {
		snap.Status = domain.SnapshotReady
	}

	a.logger.InfoContext(ctx, "snapshot fetched",
		slog.String("status", string(snap.Status)),
		slog.Int("markets", len(snap.Markets)),
		slog.Int("failed_reads", len(snap.FailedIDs)),
	)
	return snap
}

// marketIDs resolves the id set for one cycle. Discovery failures fall back
// to the configured list.
func (a *Aggregator) marketIDs(ctx context.Context) []int64 {
	if !a.cfg.Discover {
		return a.cfg.MarketIDs
	}

	countCtx, cancel := context.WithTimeout(ctx, a.cfg.ReadTimeout)
	defer cancel()

	count, err := a.reader.MarketCount(countCtx)
	if err != nil || count <= 0 {
		if err != nil {
			a.logger.WarnContext(ctx, "market discovery failed, using configured ids",
				slog.String("error", err.Error()),
			)
		}
		return a.cfg.MarketIDs
	}

	ids := make([]int64, 0, count)
	for id := int64(1); id <= count; id++ {
		ids = append(ids, id)
	}
	return ids
}

// normalize converts a raw MarketInfo into the immutable record consumers
// see. Share counts are copied so later snapshots never alias chain buffers,
// and TotalPool is derived here so the invariant holds by construction. A
// zero pool stays a well-formed record; ratio math is a presentation concern.
func normalize(id int64, info contract.MarketInfo) domain.MarketRecord {
	a := new(big.Int)
	if info.TotalOptionAShares != nil {
		a.Set(info.TotalOptionAShares)
	}
	b := new(big.Int)
	if info.TotalOptionBShares != nil {
		b.Set(info.TotalOptionBShares)
	}

	endTime := time.Time{}
	if info.EndTime != nil {
		endTime = time.Unix(info.EndTime.Int64(), 0).UTC()
	}

	return domain.MarketRecord{
		ID:                 id,
		Question:           info.Question,
		OptionA:            info.OptionA,
		OptionB:            info.OptionB,
		EndTime:            endTime,
		Outcome:            domain.Outcome(info.Outcome),
		TotalOptionAShares: a,
		TotalOptionBShares: b,
		TotalPool:          new(big.Int).Add(a, b),
		Resolved:           info.Resolved,
	}
}
