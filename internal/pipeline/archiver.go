package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/predictswipe/predictd/internal/domain"
)

// Archiver moves old bet history from the database to cold storage and
// records the latest snapshot alongside it.
type Archiver struct {
	blobArchiver  domain.Archiver
	snapshots     domain.SnapshotCache // optional
	retentionDays int
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver. snapshots may be nil, in which case
// only bet history is archived.
func NewArchiver(blobArchiver domain.Archiver, snapshots domain.SnapshotCache, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		snapshots:     snapshots,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Run executes a single archive run. The cutoff is retentionDays before now;
// bets older than the cutoff move to object storage.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	archived, err := a.blobArchiver.ArchiveBets(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: archiving bets before %v: %w", cutoff, err)
	}
	a.logger.InfoContext(ctx, "archived bets", slog.Int64("count", archived))

	if a.snapshots != nil {
		snap, err := a.snapshots.Latest(ctx)
		switch {
		case err == nil:
			if err := a.blobArchiver.ArchiveSnapshot(ctx, snap); err != nil {
				a.logger.WarnContext(ctx, "snapshot archive failed",
					slog.String("error", err.Error()),
				)
			}
		case err == domain.ErrNoSnapshot:
			// Nothing to record yet.
		default:
			a.logger.WarnContext(ctx, "snapshot read failed",
				slog.String("error", err.Error()),
			)
		}
	}

	a.logger.InfoContext(ctx, "archive run complete", slog.Int64("bets_archived", archived))
	return nil
}

// RunCron runs the archiver on a cron schedule until the context is
// cancelled. Standard 5-field expressions are accepted, e.g. "0 3 * * *"
// for 3:00 AM daily.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return fmt.Errorf("pipeline: parse cron %q: %w", cronExpr, err)
	}

	a.logger.InfoContext(ctx, "archiver cron started", slog.String("cron", cronExpr))

	for {
		next := schedule.Next(time.Now().UTC())
		a.logger.InfoContext(ctx, "archiver waiting for next trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", time.Until(next)),
		)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.InfoContext(ctx, "archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
