// Package strategy drives the basis trade: on each market tick it evaluates
// entry or exit conditions under the position state machine, holds the single
// execution lock across any order sequence, and reconciles in-memory state
// against live venue positions at startup and before every entry.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/basisbot/internal/basis"
	"github.com/alanyoungcy/basisbot/internal/domain"
	"github.com/alanyoungcy/basisbot/internal/executor"
	"github.com/alanyoungcy/basisbot/internal/risk"
	"github.com/alanyoungcy/basisbot/internal/state"
	"github.com/alanyoungcy/basisbot/internal/venue"
)

// Config holds the strategy parameters.
type Config struct {
	Symbol string
	// Size is the notional position size in base units per leg.
	Size float64
	// EntryGapUSD is the mid-price gap an entry must strictly exceed.
	EntryGapUSD float64
	// ExitGapUSD is the gap at or below which the hedge is closed.
	ExitGapUSD float64
	// MaxEntryGapUSD rejects anomalous gaps (bad prints, illiquid spikes).
	// Zero disables the ceiling.
	MaxEntryGapUSD float64
	// MinHold prevents exiting immediately after entry; MaxHold forces an
	// exit regardless of gap. Zero disables either bound.
	MinHold time.Duration
	MaxHold time.Duration
	// SettleWindow delays entry evaluation after an exit so venue position
	// reporting catches up before being trusted again.
	SettleWindow time.Duration
	// TickInterval drives the Run loop.
	TickInterval time.Duration
	// SizeTolerancePct/Abs are used when comparing live venue positions
	// during reconciliation.
	SizeTolerancePct float64
	SizeToleranceAbs float64
}

// TradeRecorder receives every completed round trip for persistence and
// publication. Implemented by service.TradeService.
type TradeRecorder interface {
	Record(ctx context.Context, trade domain.CompletedTrade) error
}

// Metrics receives engine observations. Implemented by metrics.Metrics; a
// nil Metrics is a no-op.
type Metrics interface {
	ObserveTick(gapUSD float64)
	ObserveState(st domain.EngineState)
	ObserveTrade(trade domain.CompletedTrade)
	ObserveEntrySkipped(reason string)
}

// Strategy is the single-writer trading loop. All mutation of the state
// machine happens here, under the execution lock.
type Strategy struct {
	cfg      Config
	venueA   venue.Exchange
	venueB   venue.Exchange
	state    *state.Manager
	risk     *risk.Manager
	exec     *executor.Manager
	recorder TradeRecorder
	alerter  executor.Alerter
	metrics  Metrics
	logger   *slog.Logger

	// execLock is the single mutual-exclusion flag for order execution. It
	// is acquired before any placement sequence and released via defer on
	// every path so a failure can never leave trading permanently locked.
	execLock atomic.Bool

	// disabled is set on an unrecoverable state desync; the loop then
	// refuses to trade until the process is restarted after manual review.
	disabled atomic.Bool

	mu         sync.Mutex
	stats      domain.EngineStats
	lastGapUSD float64
	lastTickAt time.Time
}

// New creates a Strategy over the two venues. recorder, alerter, and metrics
// may be nil.
func New(
	cfg Config,
	venueA, venueB venue.Exchange,
	st *state.Manager,
	rk *risk.Manager,
	ex *executor.Manager,
	recorder TradeRecorder,
	alerter executor.Alerter,
	m Metrics,
	logger *slog.Logger,
) *Strategy {
	if cfg.SizeTolerancePct <= 0 {
		cfg.SizeTolerancePct = 1.0
	}
	if cfg.SizeToleranceAbs <= 0 {
		cfg.SizeToleranceAbs = 0.001
	}
	return &Strategy{
		cfg:      cfg,
		venueA:   venueA,
		venueB:   venueB,
		state:    st,
		risk:     rk,
		exec:     ex,
		recorder: recorder,
		alerter:  alerter,
		metrics:  m,
		logger:   logger.With(slog.String("component", "strategy")),
	}
}

// Run performs startup reconciliation, then drives ticks until the context
// is cancelled. An unrecoverable desync stops the loop with an error.
func (s *Strategy) Run(ctx context.Context) error {
	if err := s.Reconcile(ctx); err != nil {
		return fmt.Errorf("strategy: startup reconciliation: %w", err)
	}

	s.mu.Lock()
	s.stats.StartedAt = time.Now().UTC()
	s.mu.Unlock()

	interval := s.cfg.TickInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "strategy loop started",
		slog.String("symbol", s.cfg.Symbol),
		slog.Float64("entry_gap_usd", s.cfg.EntryGapUSD),
		slog.Float64("exit_gap_usd", s.cfg.ExitGapUSD),
		slog.Duration("tick_interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.OnMarketUpdate(ctx); err != nil {
				if s.disabled.Load() {
					return err
				}
				s.logger.WarnContext(ctx, "tick failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// OnMarketUpdate runs one strategy tick: exit evaluation when OPEN, entry
// evaluation when FLAT.
func (s *Strategy) OnMarketUpdate(ctx context.Context) error {
	if s.disabled.Load() {
		return fmt.Errorf("strategy: trading disabled: %w", domain.ErrPositionMismatch)
	}

	quotes, err := s.fetchQuotes(ctx)
	if err != nil {
		// A missing quote just skips the cycle; no side effects.
		s.logger.DebugContext(ctx, "skipping tick, quote unavailable",
			slog.String("error", err.Error()),
		)
		return nil
	}

	gap := s.observedGap(quotes)
	s.mu.Lock()
	s.lastGapUSD = gap
	s.lastTickAt = time.Now().UTC()
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ObserveTick(gap)
		s.metrics.ObserveState(s.state.State())
	}

	if s.state.IsOpen() {
		return s.evaluateExit(ctx, quotes)
	}
	return s.evaluateEntry(ctx, quotes)
}

// quotePair holds both venues' top-of-book, keyed by venue name.
type quotePair map[string]domain.MarketData

func (s *Strategy) fetchQuotes(ctx context.Context) (quotePair, error) {
	var mdA, mdB domain.MarketData
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		mdA, err = s.venueA.GetMarketData(gctx, s.cfg.Symbol)
		if err != nil {
			return fmt.Errorf("%s market data: %w", s.venueA.Name(), err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		mdB, err = s.venueB.GetMarketData(gctx, s.cfg.Symbol)
		if err != nil {
			return fmt.Errorf("%s market data: %w", s.venueB.Name(), err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return quotePair{s.venueA.Name(): mdA, s.venueB.Name(): mdB}, nil
}

// observedGap returns the gap oriented to the held position when OPEN
// (expensive mid minus cheap mid), or the absolute mid gap when FLAT.
func (s *Strategy) observedGap(quotes quotePair) float64 {
	if pos := s.state.Current(); pos != nil {
		return quotes[pos.ExpensiveVenue].Mid - quotes[pos.CheapVenue].Mid
	}
	gap := quotes[s.venueA.Name()].Mid - quotes[s.venueB.Name()].Mid
	if gap < 0 {
		gap = -gap
	}
	return gap
}

func (s *Strategy) evaluateExit(ctx context.Context, quotes quotePair) error {
	pos := s.state.Current()
	if pos == nil {
		return nil
	}

	gap := quotes[pos.ExpensiveVenue].Mid - quotes[pos.CheapVenue].Mid
	hold := s.state.HoldDuration()

	gapCompressed := gap <= s.cfg.ExitGapUSD && (s.cfg.MinHold <= 0 || hold >= s.cfg.MinHold)
	holdExpired := s.cfg.MaxHold > 0 && hold >= s.cfg.MaxHold
	if !gapCompressed && !holdExpired {
		return nil
	}

	if !s.acquireLock() {
		return nil
	}
	defer s.releaseLock()

	s.logger.InfoContext(ctx, "exit triggered",
		slog.Float64("gap_usd", gap),
		slog.Duration("hold", hold),
		slog.Bool("hold_expired", holdExpired),
	)

	// The long leg sells into its bid, the short leg buys back at its ask.
	longExit := quotes[pos.CheapVenue].Bid
	shortExit := quotes[pos.ExpensiveVenue].Ask

	res, err := s.exec.ExecuteSpreadExit(ctx, pos.CheapVenue, pos.ExpensiveVenue, s.cfg.Symbol, pos.Size, longExit, shortExit)
	if err != nil {
		// State stays OPEN on exit failure: the loop will not stack a new
		// entry on top of a half-closed position.
		s.state.RecordError()
		return fmt.Errorf("strategy: exit: %w", err)
	}

	longPnL := (res.LongLeg.AvgPrice - pos.CheapEntryPrice) * pos.Size
	shortPnL := (pos.ExpensiveEntryPrice - res.ShortLeg.AvgPrice) * pos.Size
	gross := longPnL + shortPnL
	exitFees := res.LongLeg.FeeUSD + res.ShortLeg.FeeUSD
	net := gross - pos.EntryFeesUSD - exitFees

	closed, err := s.state.ClosePosition(gap, net)
	if err != nil {
		return fmt.Errorf("strategy: close state: %w", err)
	}

	now := time.Now().UTC()
	trade := domain.CompletedTrade{
		ID:                  uuid.New().String(),
		Symbol:              s.cfg.Symbol,
		CheapVenue:          closed.CheapVenue,
		ExpensiveVenue:      closed.ExpensiveVenue,
		Size:                closed.Size,
		EntryGapUSD:         closed.EntryGapUSD,
		ExitGapUSD:          gap,
		CheapEntryPrice:     closed.CheapEntryPrice,
		ExpensiveEntryPrice: closed.ExpensiveEntryPrice,
		CheapExitPrice:      res.LongLeg.AvgPrice,
		ExpensiveExitPrice:  res.ShortLeg.AvgPrice,
		EntryFeesUSD:        closed.EntryFeesUSD,
		ExitFeesUSD:         exitFees,
		GrossPnLUSD:         gross,
		NetPnLUSD:           net,
		HoldSeconds:         int64(now.Sub(closed.OpenedAt).Seconds()),
		OpenedAt:            closed.OpenedAt,
		ClosedAt:            now,
	}

	s.mu.Lock()
	s.stats.Trades++
	if net > 0 {
		s.stats.Wins++
	}
	s.stats.NetPnLUSD += net
	s.stats.TotalFeesUSD += closed.EntryFeesUSD + exitFees
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ObserveTrade(trade)
	}
	if s.recorder != nil {
		if err := s.recorder.Record(ctx, trade); err != nil {
			s.logger.ErrorContext(ctx, "completed trade record failed",
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (s *Strategy) evaluateEntry(ctx context.Context, quotes quotePair) error {
	if s.execLock.Load() {
		return nil
	}
	if s.state.TradingBlocked() {
		s.skipEntry("error_cooldown")
		return nil
	}
	if s.cfg.SettleWindow > 0 && s.state.InSettleWindow(s.cfg.SettleWindow) {
		s.skipEntry("settle_window")
		return nil
	}

	// Trust nothing: the venues' live positions are re-checked before every
	// entry, and any disagreement with the state machine is reconciled first.
	clean, err := s.reconcileFlat(ctx)
	if err != nil {
		return err
	}
	if !clean {
		return nil
	}

	mdA := quotes[s.venueA.Name()]
	mdB := quotes[s.venueB.Name()]

	cheap, expensive := s.venueA, s.venueB
	cheapMD, expMD := mdA, mdB
	if mdB.Mid < mdA.Mid {
		cheap, expensive = s.venueB, s.venueA
		cheapMD, expMD = mdB, mdA
	}
	gap := expMD.Mid - cheapMD.Mid

	// Strictly greater: a gap sitting exactly on the threshold is not a signal.
	if gap <= s.cfg.EntryGapUSD {
		return nil
	}
	if s.cfg.MaxEntryGapUSD > 0 && gap > s.cfg.MaxEntryGapUSD {
		s.logger.WarnContext(ctx, "gap above anomaly ceiling, skipping",
			slog.Float64("gap_usd", gap),
			slog.Float64("ceiling_usd", s.cfg.MaxEntryGapUSD),
		)
		s.skipEntry("anomalous_gap")
		return nil
	}

	if !s.acquireLock() {
		return nil
	}
	defer s.releaseLock()

	res := s.risk.PreTradeCheck(ctx, risk.CheckRequest{
		Cheap:          cheap,
		Expensive:      expensive,
		Symbol:         s.cfg.Symbol,
		Size:           s.cfg.Size,
		CheapPrice:     cheapMD.Ask,
		ExpensivePrice: expMD.Bid,
	})
	if !res.Passed {
		s.logger.InfoContext(ctx, "entry rejected by risk gate",
			slog.Float64("gap_usd", gap),
			slog.String("reason", res.Reason),
		)
		s.skipEntry("risk_rejected")
		return nil
	}

	s.logger.InfoContext(ctx, "entry triggered",
		slog.String("cheap_venue", cheap.Name()),
		slog.String("expensive_venue", expensive.Name()),
		slog.Float64("gap_usd", gap),
		slog.Float64("size", s.cfg.Size),
	)

	pair, err := s.exec.ExecuteSpreadEntry(ctx, cheap.Name(), expensive.Name(), s.cfg.Symbol, s.cfg.Size, cheapMD.Ask, expMD.Bid)
	if err != nil {
		s.state.RecordError()
		return fmt.Errorf("strategy: entry: %w", err)
	}

	size := pair.CheapLeg.FilledSize
	if pair.ExpensiveLeg.FilledSize < size {
		size = pair.ExpensiveLeg.FilledSize
	}
	pos := domain.HedgePosition{
		Symbol:              s.cfg.Symbol,
		CheapVenue:          cheap.Name(),
		ExpensiveVenue:      expensive.Name(),
		EntryGapUSD:         gap,
		Size:                size,
		CheapEntryPrice:     pair.CheapLeg.AvgPrice,
		ExpensiveEntryPrice: pair.ExpensiveLeg.AvgPrice,
		EntryFeesUSD:        pair.CheapLeg.FeeUSD + pair.ExpensiveLeg.FeeUSD,
		LongOrderID:         pair.CheapLeg.OrderID,
		ShortOrderID:        pair.ExpensiveLeg.OrderID,
	}
	if err := s.state.OpenPosition(pos); err != nil {
		// Can only happen on an invariant violation; surface it loudly.
		return fmt.Errorf("strategy: record entry: %w", err)
	}
	return nil
}

// Reconcile checks live venue positions against the state machine at
// startup. Both flat starts FLAT; a genuine equal-and-opposite pair is
// reconstructed into OPEN; anything else refuses to trade.
func (s *Strategy) Reconcile(ctx context.Context) error {
	posA, posB, err := s.fetchPositions(ctx)
	if err != nil {
		return err
	}

	if posA == nil && posB == nil {
		s.logger.InfoContext(ctx, "startup reconciliation: both venues flat")
		return nil
	}

	if posA != nil && posB != nil && posA.Side != posB.Side &&
		basis.WithinTolerance(posA.Size, posB.Size, s.cfg.SizeTolerancePct, s.cfg.SizeToleranceAbs) {
		pos := s.reconstruct(posA, posB)
		if err := s.state.OpenPosition(pos); err != nil {
			return err
		}
		s.logger.WarnContext(ctx, "startup reconciliation: reconstructed open hedge from live positions",
			slog.String("cheap_venue", pos.CheapVenue),
			slog.String("expensive_venue", pos.ExpensiveVenue),
			slog.Float64("size", pos.Size),
		)
		return nil
	}

	s.disabled.Store(true)
	msg := fmt.Sprintf("startup positions unresolvable on %s: %s=%+v %s=%+v — manual resolution required",
		s.cfg.Symbol, s.venueA.Name(), posA, s.venueB.Name(), posB)
	if s.alerter != nil {
		_ = s.alerter.NotifyAll(ctx, "FATAL: inconsistent startup positions", msg)
	}
	return fmt.Errorf("strategy: %s: %w", msg, domain.ErrPositionMismatch)
}

// reconcileFlat verifies that both venues really are flat while the state
// machine says FLAT. It returns true when entry evaluation may proceed.
// Recoverable desyncs are healed in place: a single orphaned leg is closed
// reduce-only, and a genuinely hedged pair is adopted into OPEN state.
// Same-signed or size-mismatched pairs disable trading.
func (s *Strategy) reconcileFlat(ctx context.Context) (bool, error) {
	posA, posB, err := s.fetchPositions(ctx)
	if err != nil {
		// Cannot confirm flatness; skip the cycle rather than trade blind.
		s.logger.WarnContext(ctx, "position check failed, skipping entry",
			slog.String("error", err.Error()),
		)
		return false, nil
	}

	if posA == nil && posB == nil {
		return true, nil
	}

	// Exactly one leg live: orphaned exposure from an earlier failure.
	if (posA == nil) != (posB == nil) {
		ex, orphan := s.venueA, posA
		if posA == nil {
			ex, orphan = s.venueB, posB
		}
		side := domain.OrderSideSell
		if orphan.Side == domain.PositionSideShort {
			side = domain.OrderSideBuy
		}
		s.logger.ErrorContext(ctx, "state desync: closing orphaned leg",
			slog.String("venue", ex.Name()),
			slog.String("side", string(orphan.Side)),
			slog.Float64("size", orphan.Size),
		)
		if !s.acquireLock() {
			return false, nil
		}
		defer s.releaseLock()
		if _, err := ex.PlaceMarketOrder(ctx, s.cfg.Symbol, side, orphan.Size, domain.OrderOpts{ReduceOnly: true}); err != nil {
			s.logger.ErrorContext(ctx, "orphaned leg close failed",
				slog.String("venue", ex.Name()),
				slog.String("error", err.Error()),
			)
		}
		s.state.RecordError()
		return false, nil
	}

	// Both legs live while the machine says FLAT: adopt a genuine hedge.
	if posA.Side != posB.Side &&
		basis.WithinTolerance(posA.Size, posB.Size, s.cfg.SizeTolerancePct, s.cfg.SizeToleranceAbs) {
		pos := s.reconstruct(posA, posB)
		if err := s.state.OpenPosition(pos); err != nil {
			return false, err
		}
		s.logger.WarnContext(ctx, "state desync: adopted live hedge into open state",
			slog.String("cheap_venue", pos.CheapVenue),
			slog.Float64("size", pos.Size),
		)
		return false, nil
	}

	// Same-signed or mismatched: automatic correction risks making it worse.
	s.disabled.Store(true)
	msg := fmt.Sprintf("live positions unresolvable on %s: %s=%+v %s=%+v",
		s.cfg.Symbol, s.venueA.Name(), posA, s.venueB.Name(), posB)
	if s.alerter != nil {
		_ = s.alerter.NotifyAll(ctx, "FATAL: position desync", msg)
	}
	return false, fmt.Errorf("strategy: %s: %w", msg, domain.ErrPositionMismatch)
}

// reconstruct builds a hedge record from two live opposite-signed positions.
// The long leg's venue is the cheap side by construction.
func (s *Strategy) reconstruct(posA, posB *domain.Position) domain.HedgePosition {
	longVenue, longPos := s.venueA.Name(), posA
	shortVenue, shortPos := s.venueB.Name(), posB
	if posA.Side == domain.PositionSideShort {
		longVenue, longPos = s.venueB.Name(), posB
		shortVenue, shortPos = s.venueA.Name(), posA
	}
	size := longPos.Size
	if shortPos.Size < size {
		size = shortPos.Size
	}
	return domain.HedgePosition{
		Symbol:              s.cfg.Symbol,
		CheapVenue:          longVenue,
		ExpensiveVenue:      shortVenue,
		EntryGapUSD:         shortPos.EntryPrice - longPos.EntryPrice,
		Size:                size,
		CheapEntryPrice:     longPos.EntryPrice,
		ExpensiveEntryPrice: shortPos.EntryPrice,
		OpenedAt:            time.Now().UTC(),
	}
}

func (s *Strategy) fetchPositions(ctx context.Context) (*domain.Position, *domain.Position, error) {
	var posA, posB *domain.Position
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		posA, err = s.venueA.GetPosition(gctx, s.cfg.Symbol)
		if err != nil {
			return fmt.Errorf("%s position: %w", s.venueA.Name(), err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		posB, err = s.venueB.GetPosition(gctx, s.cfg.Symbol)
		if err != nil {
			return fmt.Errorf("%s position: %w", s.venueB.Name(), err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return posA, posB, nil
}

func (s *Strategy) acquireLock() bool {
	return s.execLock.CompareAndSwap(false, true)
}

func (s *Strategy) releaseLock() {
	s.execLock.Store(false)
}

// Executing reports whether the execution lock is currently held.
func (s *Strategy) Executing() bool {
	return s.execLock.Load()
}

// Disabled reports whether trading was halted by an unrecoverable desync.
func (s *Strategy) Disabled() bool {
	return s.disabled.Load()
}

func (s *Strategy) skipEntry(reason string) {
	if s.metrics != nil {
		s.metrics.ObserveEntrySkipped(reason)
	}
}

// Status returns a snapshot for the monitoring surface.
func (s *Strategy) Status() domain.EngineStatus {
	s.mu.Lock()
	stats := s.stats
	gap := s.lastGapUSD
	tickAt := s.lastTickAt
	s.mu.Unlock()

	return domain.EngineStatus{
		State:         s.state.State(),
		Position:      s.state.Current(),
		Stats:         stats,
		CurrentGapUSD: gap,
		LastTickAt:    tickAt,
		Executing:     s.execLock.Load(),
	}
}
