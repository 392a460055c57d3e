// Package recorder samples the cross-venue gap and persists the history for
// offline analysis. It also drives the periodic cold-storage archival of old
// rows.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/basisbot/internal/domain"
	"github.com/alanyoungcy/basisbot/internal/venue"
)

// Config holds the gap recorder parameters.
type Config struct {
	Symbol         string
	SampleInterval time.Duration
	FlushSize      int
}

// Recorder periodically samples both venues' mid prices and batches the
// resulting gap snapshots into the store. Samples are buffered in memory and
// flushed once FlushSize is reached or on shutdown.
type Recorder struct {
	cfg    Config
	venueA venue.Exchange
	venueB venue.Exchange
	gaps   domain.GapStore
	cache  domain.PriceCache
	logger *slog.Logger

	pending []domain.GapSnapshot
}

// New creates a Recorder. The price cache is optional; when present, each
// sampled quote is also written to it so other consumers see fresh prices.
func New(cfg Config, venueA, venueB venue.Exchange, gaps domain.GapStore, cache domain.PriceCache, logger *slog.Logger) *Recorder {
	return &Recorder{
		cfg:     cfg,
		venueA:  venueA,
		venueB:  venueB,
		gaps:    gaps,
		cache:   cache,
		logger:  logger.With(slog.String("component", "recorder")),
		pending: make([]domain.GapSnapshot, 0, cfg.FlushSize),
	}
}

// Run samples on the configured interval until the context is cancelled, then
// flushes whatever is buffered.
func (r *Recorder) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "gap recorder started",
		slog.String("symbol", r.cfg.Symbol),
		slog.Duration("sample_interval", r.cfg.SampleInterval),
		slog.Int("flush_size", r.cfg.FlushSize),
	)

	ticker := time.NewTicker(r.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final flush uses a fresh context: the run context is already
			// cancelled.
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := r.flush(flushCtx)
			cancel()
			if err != nil {
				r.logger.Error("final flush failed", slog.String("error", err.Error()))
			}
			r.logger.Info("gap recorder stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.sample(ctx); err != nil {
				r.logger.WarnContext(ctx, "sample failed", slog.String("error", err.Error()))
			}
		}
	}
}

// sample fetches both venues' quotes concurrently and buffers one snapshot.
func (r *Recorder) sample(ctx context.Context) error {
	var quoteA, quoteB domain.MarketData

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		md, err := r.venueA.GetMarketData(gctx, r.cfg.Symbol)
		if err != nil {
			return fmt.Errorf("%s: %w", r.venueA.Name(), err)
		}
		quoteA = md
		return nil
	})
	g.Go(func() error {
		md, err := r.venueB.GetMarketData(gctx, r.cfg.Symbol)
		if err != nil {
			return fmt.Errorf("%s: %w", r.venueB.Name(), err)
		}
		quoteB = md
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if r.cache != nil {
		if err := r.cache.SetQuote(ctx, r.venueA.Name(), r.cfg.Symbol, quoteA); err != nil {
			r.logger.DebugContext(ctx, "cache quote failed", slog.String("error", err.Error()))
		}
		if err := r.cache.SetQuote(ctx, r.venueB.Name(), r.cfg.Symbol, quoteB); err != nil {
			r.logger.DebugContext(ctx, "cache quote failed", slog.String("error", err.Error()))
		}
	}

	r.pending = append(r.pending, domain.GapSnapshot{
		ID:        uuid.New().String(),
		Symbol:    r.cfg.Symbol,
		VenueA:    r.venueA.Name(),
		VenueB:    r.venueB.Name(),
		VenueAMid: quoteA.Mid,
		VenueBMid: quoteB.Mid,
		GapUSD:    quoteB.Mid - quoteA.Mid,
		Timestamp: time.Now().UTC(),
	})

	if len(r.pending) >= r.cfg.FlushSize {
		return r.flush(ctx)
	}
	return nil
}

// flush writes the buffered snapshots to the store. On failure the buffer is
// kept so the batch is retried on the next flush.
func (r *Recorder) flush(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}
	if err := r.gaps.InsertBatch(ctx, r.pending); err != nil {
		return fmt.Errorf("recorder: flush %d snapshots: %w", len(r.pending), err)
	}
	r.logger.InfoContext(ctx, "flushed gap snapshots", slog.Int("count", len(r.pending)))
	r.pending = r.pending[:0]
	return nil
}
