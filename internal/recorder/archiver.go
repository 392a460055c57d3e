package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// BlobArchiver moves old rows into cold storage. Implemented by the S3 blob
// layer.
type BlobArchiver interface {
	ArchiveGaps(ctx context.Context, before time.Time) (int64, error)
	ArchiveTrades(ctx context.Context, before time.Time) (int64, error)
}

// Archiver periodically archives gap snapshots and trades older than the
// retention window.
type Archiver struct {
	blob          BlobArchiver
	retentionDays int
	interval      time.Duration
	logger        *slog.Logger
}

// NewArchiver creates an Archiver that runs every interval.
func NewArchiver(blob BlobArchiver, retentionDays int, interval time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		blob:          blob,
		retentionDays: retentionDays,
		interval:      interval,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// RunOnce executes a single archive pass.
func (a *Archiver) RunOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	gapsArchived, err := a.blob.ArchiveGaps(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving gap snapshots before %v: %w", cutoff, err)
	}

	tradesArchived, err := a.blob.ArchiveTrades(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving trades before %v: %w", cutoff, err)
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("gaps_archived", gapsArchived),
		slog.Int64("trades_archived", tradesArchived),
	)
	return nil
}

// Run executes archive passes on the configured interval until the context is
// cancelled. A failed pass is logged and retried on the next tick.
func (a *Archiver) Run(ctx context.Context) error {
	a.logger.Info("archiver started", slog.Duration("interval", a.interval))

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := a.RunOnce(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
