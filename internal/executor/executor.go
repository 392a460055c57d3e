// Package executor places and verifies both legs of a cross-venue spread
// entry or exit. Legs are fired concurrently, fills are verified against live
// position queries with a bounded retry budget, and a one-sided entry is
// unwound immediately. The executor never reports success while a one-sided
// position remains.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/basisbot/internal/basis"
	"github.com/alanyoungcy/basisbot/internal/domain"
	"github.com/alanyoungcy/basisbot/internal/venue"
)

// Alerter raises operator-facing alerts for conditions that demand manual
// intervention. Implemented by notify.Notifier.
type Alerter interface {
	NotifyAll(ctx context.Context, title, message string) error
}

// Config holds the execution tunables.
type Config struct {
	// SizeTolerancePct and SizeToleranceAbs bound how far a verified fill may
	// deviate from the requested size and still count as filled. Either bound
	// is sufficient.
	SizeTolerancePct float64
	SizeToleranceAbs float64
	// MakerImprove is the price improvement applied to post-only orders, in
	// quote currency.
	MakerImprove float64
	// MakerWait is how long a post-only order may rest before the unfilled
	// remainder is cancelled (and, when allowed, swept with a taker order).
	MakerWait time.Duration
	// FillCheckDelays are the waits before each fill-verification round,
	// covering venue API propagation lag.
	FillCheckDelays []time.Duration
	// TakerFallback allows entry legs to sweep the unfilled remainder with an
	// immediate order. Exits always use the fallback.
	TakerFallback bool
}

// Defaults returns the execution tunables used in production.
func Defaults() Config {
	return Config{
		SizeTolerancePct: 1.0,
		SizeToleranceAbs: 0.001,
		MakerImprove:     1.0,
		MakerWait:        5 * time.Second,
		FillCheckDelays:  []time.Duration{10 * time.Second, 5 * time.Second, 5 * time.Second},
		TakerFallback:    true,
	}
}

// PairResult is the outcome of a successful entry.
type PairResult struct {
	CheapLeg     domain.LegResult
	ExpensiveLeg domain.LegResult
}

// ExitResult is the outcome of a successful exit.
type ExitResult struct {
	LongLeg  domain.LegResult
	ShortLeg domain.LegResult
}

// Manager orchestrates dual-leg execution. It is stateless with respect to
// position data; callers own the state machine and the execution lock.
type Manager struct {
	venues  *venue.Registry
	alerter Alerter
	audit   domain.AuditStore
	cfg     Config
	logger  *slog.Logger

	sleep func(ctx context.Context, d time.Duration)
}

// NewManager creates a Manager. alerter and audit may be nil.
func NewManager(venues *venue.Registry, alerter Alerter, audit domain.AuditStore, cfg Config, logger *slog.Logger) *Manager {
	if len(cfg.FillCheckDelays) == 0 {
		cfg.FillCheckDelays = Defaults().FillCheckDelays
	}
	return &Manager{
		venues:  venues,
		alerter: alerter,
		audit:   audit,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "executor")),
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// legFill accumulates the maker and taker portions of one leg's fills.
type legFill struct {
	orderID    string
	makerSize  float64
	makerPrice float64
	takerSize  float64
	takerPrice float64
	refPrice   float64
	placeErr   error
}

func (f legFill) total() float64 {
	return f.makerSize + f.takerSize
}

func (f legFill) avgPrice() float64 {
	avg := basis.WeightedAvgPrice(f.makerSize, f.makerPrice, f.takerSize, f.takerPrice)
	if avg == 0 {
		return f.refPrice
	}
	return avg
}

// ExecuteSpreadEntry opens both legs of a new hedge: buy on the cheap venue,
// sell on the expensive venue, both sized identically. On a one-sided fill
// the filled venue is flattened with a reduce-only order and
// domain.ErrOneSidedFill is returned.
func (m *Manager) ExecuteSpreadEntry(ctx context.Context, cheapName, expensiveName, symbol string, size, cheapBuyPrice, expensiveSellPrice float64) (PairResult, error) {
	cheap, err := m.venues.Get(cheapName)
	if err != nil {
		return PairResult{}, err
	}
	expensive, err := m.venues.Get(expensiveName)
	if err != nil {
		return PairResult{}, err
	}

	m.logger.InfoContext(ctx, "executing spread entry",
		slog.String("cheap_venue", cheapName),
		slog.String("expensive_venue", expensiveName),
		slog.Float64("size", size),
		slog.Float64("cheap_buy", cheapBuyPrice),
		slog.Float64("expensive_sell", expensiveSellPrice),
	)

	// Fire both legs concurrently to minimize the window of one-sided
	// exposure. A leg's placement error does not short-circuit the other:
	// partial fills can exist either way, so verification always runs.
	var cheapFill, expFill legFill
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		cheapFill = m.executeLeg(ctx, cheap, symbol, domain.OrderSideBuy, size, cheapBuyPrice, m.cfg.TakerFallback, false)
	}()
	go func() {
		defer wg.Done()
		expFill = m.executeLeg(ctx, expensive, symbol, domain.OrderSideSell, size, expensiveSellPrice, m.cfg.TakerFallback, false)
	}()
	wg.Wait()

	cheapVerified, expVerified := m.verifyPositions(ctx, cheap, expensive, symbol,
		domain.PositionSideLong, domain.PositionSideShort, size)

	cheapOK := basis.WithinTolerance(size, cheapVerified, m.cfg.SizeTolerancePct, m.cfg.SizeToleranceAbs)
	expOK := basis.WithinTolerance(size, expVerified, m.cfg.SizeTolerancePct, m.cfg.SizeToleranceAbs)
	cheapEmpty := cheapVerified <= m.cfg.SizeToleranceAbs
	expEmpty := expVerified <= m.cfg.SizeToleranceAbs

	switch {
	case cheapOK && expOK:
		return m.buildEntryResult(ctx, cheap, expensive, cheapFill, expFill, size, size)

	case cheapEmpty && expEmpty:
		m.auditLog(ctx, "entry_no_fill", map[string]any{
			"symbol": symbol, "size": size,
			"cheap_venue": cheapName, "expensive_venue": expensiveName,
		})
		return PairResult{}, fmt.Errorf("executor: entry %s/%s size %.6f: %w",
			cheapName, expensiveName, size, domain.ErrNoFill)

	case !cheapEmpty && !expEmpty && basis.WithinTolerance(cheapVerified, expVerified, m.cfg.SizeTolerancePct, m.cfg.SizeToleranceAbs):
		// Both legs filled smaller than requested but consistently with each
		// other: the hedge is intact, just smaller. Accept at the lesser size.
		matched := cheapVerified
		if expVerified < matched {
			matched = expVerified
		}
		m.logger.WarnContext(ctx, "entry filled below requested size, accepting hedged remainder",
			slog.Float64("requested", size),
			slog.Float64("matched", matched),
		)
		return m.buildEntryResult(ctx, cheap, expensive, cheapFill, expFill, matched, matched)

	default:
		// One-sided or mismatched fills: flatten whatever is held on both
		// venues (reduce-only, so an already-flat venue is untouched) and
		// fail loudly.
		m.emergencyUnwind(ctx, cheap, symbol, domain.OrderSideSell, cheapVerified)
		m.emergencyUnwind(ctx, expensive, symbol, domain.OrderSideBuy, expVerified)
		m.auditLog(ctx, "entry_one_sided_unwound", map[string]any{
			"symbol": symbol, "size": size,
			"cheap_filled": cheapVerified, "expensive_filled": expVerified,
		})
		return PairResult{}, fmt.Errorf("executor: entry aborted, cheap filled %.6f expensive filled %.6f of %.6f: %w",
			cheapVerified, expVerified, size, domain.ErrOneSidedFill)
	}
}

// ExecuteSpreadExit closes both legs of the held hedge with reduce-only
// orders: sell on the long venue, buy back on the short venue. A failed exit
// is never auto-unwound — at exit time the book is still hedged, and forcing
// one leg closed would create exactly the one-sided exposure being avoided.
// Instead a critical alert is raised and domain.ErrExitUnconfirmed returned;
// the caller must leave the state OPEN.
func (m *Manager) ExecuteSpreadExit(ctx context.Context, longName, shortName, symbol string, size, longExitPrice, shortExitPrice float64) (ExitResult, error) {
	long, err := m.venues.Get(longName)
	if err != nil {
		return ExitResult{}, err
	}
	short, err := m.venues.Get(shortName)
	if err != nil {
		return ExitResult{}, err
	}

	m.logger.InfoContext(ctx, "executing spread exit",
		slog.String("long_venue", longName),
		slog.String("short_venue", shortName),
		slog.Float64("size", size),
	)

	var longFill, shortFill legFill
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		longFill = m.executeLeg(ctx, long, symbol, domain.OrderSideSell, size, longExitPrice, true, true)
	}()
	go func() {
		defer wg.Done()
		shortFill = m.executeLeg(ctx, short, symbol, domain.OrderSideBuy, size, shortExitPrice, true, true)
	}()
	wg.Wait()

	longRemaining, shortRemaining := m.verifyFlat(ctx, long, short, symbol)

	longClosed := longRemaining <= m.cfg.SizeToleranceAbs
	shortClosed := shortRemaining <= m.cfg.SizeToleranceAbs
	if longClosed && shortClosed {
		longLeg := m.buildLeg(long, domain.OrderSideSell, longFill, size)
		shortLeg := m.buildLeg(short, domain.OrderSideBuy, shortFill, size)
		return ExitResult{LongLeg: longLeg, ShortLeg: shortLeg}, nil
	}

	msg := fmt.Sprintf("exit unconfirmed on %s: long remaining %.6f, short remaining %.6f — manual intervention required, position left open",
		symbol, longRemaining, shortRemaining)
	m.logger.ErrorContext(ctx, "spread exit failed",
		slog.Float64("long_remaining", longRemaining),
		slog.Float64("short_remaining", shortRemaining),
	)
	if m.alerter != nil {
		_ = m.alerter.NotifyAll(ctx, "CRITICAL: basis exit failed", msg)
	}
	m.auditLog(ctx, "exit_unconfirmed", map[string]any{
		"symbol": symbol, "size": size,
		"long_remaining": longRemaining, "short_remaining": shortRemaining,
	})
	return ExitResult{}, fmt.Errorf("executor: %s: %w", msg, domain.ErrExitUnconfirmed)
}

// executeLeg places a post-only maker order priced just inside the touch,
// waits for it to fill, then (when allowed) sweeps the unfilled remainder
// with an immediate order. All errors are carried in the returned legFill;
// position verification decides the real outcome.
func (m *Manager) executeLeg(ctx context.Context, ex venue.Exchange, symbol string, side domain.OrderSide, size, refPrice float64, allowTaker, reduceOnly bool) legFill {
	fill := legFill{refPrice: refPrice}
	log := m.logger.With(
		slog.String("venue", ex.Name()),
		slog.String("side", string(side)),
	)

	limitPrice := refPrice
	if md, err := ex.GetMarketData(ctx, symbol); err == nil && md.Bid > 0 && md.Ask > 0 {
		limitPrice = basis.MakerPrice(md.Bid, md.Ask, side, m.cfg.MakerImprove)
	}

	order, err := ex.PlaceLimitOrder(ctx, symbol, side, size, limitPrice, domain.OrderOpts{
		PostOnly:   true,
		ReduceOnly: reduceOnly,
	})
	if err != nil {
		log.WarnContext(ctx, "maker order placement failed",
			slog.String("error", err.Error()),
		)
		fill.placeErr = err
		if !allowTaker {
			return fill
		}
		return m.takerSweep(ctx, ex, symbol, side, size, reduceOnly, fill)
	}
	fill.orderID = order.ID

	m.sleep(ctx, m.cfg.MakerWait)

	confirmed, err := ex.GetOrder(ctx, symbol, order.ID)
	if err != nil {
		// The order may have filled even though its status is unreadable;
		// the position check after both legs settles the question.
		log.WarnContext(ctx, "maker order status query failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		confirmed = order
	}
	fill.makerSize = confirmed.FilledSize
	fill.makerPrice = confirmed.AvgFillPrice
	if fill.makerPrice == 0 {
		fill.makerPrice = limitPrice
	}

	remainder := size - fill.makerSize
	if remainder <= m.cfg.SizeToleranceAbs {
		return fill
	}

	if err := ex.CancelOrder(ctx, symbol, order.ID); err != nil {
		log.DebugContext(ctx, "cancel of maker remainder failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
	if !allowTaker {
		if fill.total() == 0 {
			fill.placeErr = fmt.Errorf("maker order unfilled and taker fallback disallowed")
		}
		return fill
	}
	return m.takerSweep(ctx, ex, symbol, side, remainder, reduceOnly, fill)
}

// takerSweep fills the remainder with an immediate order.
func (m *Manager) takerSweep(ctx context.Context, ex venue.Exchange, symbol string, side domain.OrderSide, size float64, reduceOnly bool, fill legFill) legFill {
	order, err := ex.PlaceMarketOrder(ctx, symbol, side, size, domain.OrderOpts{ReduceOnly: reduceOnly})
	if err != nil {
		m.logger.WarnContext(ctx, "taker sweep failed",
			slog.String("venue", ex.Name()),
			slog.String("error", err.Error()),
		)
		if fill.placeErr == nil {
			fill.placeErr = err
		}
		return fill
	}
	if fill.orderID == "" {
		fill.orderID = order.ID
	}
	fill.takerSize = order.FilledSize
	if fill.takerSize == 0 {
		// Some venues acknowledge IOC orders without echoing the fill; trust
		// the requested size here and let position verification arbitrate.
		fill.takerSize = size
	}
	fill.takerPrice = order.AvgFillPrice
	if fill.takerPrice == 0 {
		fill.takerPrice = fill.refPrice
	}
	return fill
}

// verifyPositions polls both venues' reported positions through the retry
// budget and returns the sizes observed in the expected directions. A
// position on the wrong side counts as zero.
func (m *Manager) verifyPositions(ctx context.Context, a, b venue.Exchange, symbol string, wantA, wantB domain.PositionSide, size float64) (float64, float64) {
	var sizeA, sizeB float64
	for i, delay := range m.cfg.FillCheckDelays {
		m.sleep(ctx, delay)
		sizeA = m.positionSize(ctx, a, symbol, wantA)
		sizeB = m.positionSize(ctx, b, symbol, wantB)
		if basis.WithinTolerance(size, sizeA, m.cfg.SizeTolerancePct, m.cfg.SizeToleranceAbs) &&
			basis.WithinTolerance(size, sizeB, m.cfg.SizeTolerancePct, m.cfg.SizeToleranceAbs) {
			return sizeA, sizeB
		}
		m.logger.DebugContext(ctx, "fill verification pending",
			slog.Int("round", i+1),
			slog.Float64("a_size", sizeA),
			slog.Float64("b_size", sizeB),
		)
	}
	return sizeA, sizeB
}

// verifyFlat polls both venues until they report no remaining position, and
// returns the remaining absolute sizes after the retry budget.
func (m *Manager) verifyFlat(ctx context.Context, a, b venue.Exchange, symbol string) (float64, float64) {
	var remA, remB float64
	for _, delay := range m.cfg.FillCheckDelays {
		m.sleep(ctx, delay)
		remA = m.absPositionSize(ctx, a, symbol)
		remB = m.absPositionSize(ctx, b, symbol)
		if remA <= m.cfg.SizeToleranceAbs && remB <= m.cfg.SizeToleranceAbs {
			return remA, remB
		}
	}
	return remA, remB
}

func (m *Manager) positionSize(ctx context.Context, ex venue.Exchange, symbol string, want domain.PositionSide) float64 {
	pos, err := ex.GetPosition(ctx, symbol)
	if err != nil {
		m.logger.WarnContext(ctx, "position query failed during verification",
			slog.String("venue", ex.Name()),
			slog.String("error", err.Error()),
		)
		return 0
	}
	if pos == nil || pos.Side != want {
		return 0
	}
	return pos.Size
}

func (m *Manager) absPositionSize(ctx context.Context, ex venue.Exchange, symbol string) float64 {
	pos, err := ex.GetPosition(ctx, symbol)
	if err != nil {
		m.logger.WarnContext(ctx, "position query failed during verification",
			slog.String("venue", ex.Name()),
			slog.String("error", err.Error()),
		)
		return 0
	}
	if pos == nil {
		return 0
	}
	return pos.Size
}

// emergencyUnwind flattens a filled leg with an immediate reduce-only order
// on the opposite side. Sizes at or below the absolute tolerance are skipped.
func (m *Manager) emergencyUnwind(ctx context.Context, ex venue.Exchange, symbol string, side domain.OrderSide, size float64) {
	if size <= m.cfg.SizeToleranceAbs {
		return
	}
	m.logger.ErrorContext(ctx, "emergency unwind of one-sided fill",
		slog.String("venue", ex.Name()),
		slog.String("side", string(side)),
		slog.Float64("size", size),
	)
	if _, err := ex.PlaceMarketOrder(ctx, symbol, side, size, domain.OrderOpts{ReduceOnly: true}); err != nil {
		m.logger.ErrorContext(ctx, "emergency unwind order failed",
			slog.String("venue", ex.Name()),
			slog.String("error", err.Error()),
		)
		if m.alerter != nil {
			_ = m.alerter.NotifyAll(ctx, "CRITICAL: unwind failed",
				fmt.Sprintf("could not flatten %.6f %s on %s: %v", size, symbol, ex.Name(), err))
		}
	}
}

func (m *Manager) buildEntryResult(ctx context.Context, cheap, expensive venue.Exchange, cheapFill, expFill legFill, cheapSize, expSize float64) (PairResult, error) {
	res := PairResult{
		CheapLeg:     m.buildLeg(cheap, domain.OrderSideBuy, cheapFill, cheapSize),
		ExpensiveLeg: m.buildLeg(expensive, domain.OrderSideSell, expFill, expSize),
	}
	m.logger.InfoContext(ctx, "spread entry filled",
		slog.Float64("cheap_avg", res.CheapLeg.AvgPrice),
		slog.Float64("expensive_avg", res.ExpensiveLeg.AvgPrice),
		slog.Float64("cheap_fee_usd", res.CheapLeg.FeeUSD),
		slog.Float64("expensive_fee_usd", res.ExpensiveLeg.FeeUSD),
	)
	return res, nil
}

// buildLeg assembles the LegResult for a verified fill. The verified size is
// authoritative; order-report prices feed the average, falling back to the
// reference price when a venue did not echo fills.
func (m *Manager) buildLeg(ex venue.Exchange, side domain.OrderSide, fill legFill, verifiedSize float64) domain.LegResult {
	fees := m.venues.Fees(ex.Name())
	liq := domain.LiquidityMaker
	if fill.takerSize > 0 {
		liq = domain.LiquidityTaker
	}

	avg := fill.avgPrice()
	// Apportion the fee across the maker and taker portions of the fill,
	// scaled to the verified size.
	total := fill.total()
	var fee float64
	if total > 0 {
		scale := verifiedSize / total
		fee = fill.makerSize*scale*fill.makerPrice*fees.Rate(domain.LiquidityMaker) +
			fill.takerSize*scale*fill.takerPrice*fees.Rate(domain.LiquidityTaker)
	} else {
		fee = verifiedSize * avg * fees.Rate(liq)
	}

	return domain.LegResult{
		Venue:      ex.Name(),
		OrderID:    fill.orderID,
		Side:       side,
		FilledSize: verifiedSize,
		AvgPrice:   avg,
		Liquidity:  liq,
		FeeUSD:     fee,
	}
}

func (m *Manager) auditLog(ctx context.Context, event string, detail map[string]any) {
	if m.audit == nil {
		return
	}
	if err := m.audit.Log(ctx, event, detail); err != nil {
		m.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
