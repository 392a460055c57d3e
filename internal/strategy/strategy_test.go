package strategy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/basisbot/internal/domain"
	"github.com/alanyoungcy/basisbot/internal/executor"
	"github.com/alanyoungcy/basisbot/internal/risk"
	"github.com/alanyoungcy/basisbot/internal/state"
	"github.com/alanyoungcy/basisbot/internal/venue"
	"github.com/alanyoungcy/basisbot/internal/venue/paper"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type tradeLog struct {
	mu     sync.Mutex
	trades []domain.CompletedTrade
}

func (l *tradeLog) Record(_ context.Context, trade domain.CompletedTrade) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trades = append(l.trades, trade)
	return nil
}

func (l *tradeLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.trades)
}

type skipLog struct {
	mu      sync.Mutex
	reasons []string
}

func (s *skipLog) ObserveTick(float64)                {}
func (s *skipLog) ObserveState(domain.EngineState)    {}
func (s *skipLog) ObserveTrade(domain.CompletedTrade) {}
func (s *skipLog) ObserveEntrySkipped(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reasons = append(s.reasons, reason)
}

func (s *skipLog) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reasons) == 0 {
		return ""
	}
	return s.reasons[len(s.reasons)-1]
}

type alertRecorder struct {
	mu     sync.Mutex
	titles []string
}

func (a *alertRecorder) NotifyAll(_ context.Context, title, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.titles = append(a.titles, title)
	return nil
}

type engine struct {
	strat  *Strategy
	alpha  *paper.Venue
	beta   *paper.Venue
	state  *state.Manager
	trades *tradeLog
	skips  *skipLog
	alerts *alertRecorder
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	logger := testLogger()

	fees := venue.FeeSchedule{MakerBps: 1, TakerBps: 4}
	alpha := paper.New("alpha", fees, 100_000)
	beta := paper.New("beta", fees, 100_000)

	reg := venue.NewRegistry()
	reg.Register(alpha, fees)
	reg.Register(beta, fees)

	stateMgr := state.NewManager(time.Minute, logger)
	riskMgr := risk.NewManager(risk.Config{
		MaxLeverage:     5,
		MarginBufferPct: 10,
		MaxSlippageBps:  50,
		BookDepth:       20,
	}, logger)
	execMgr := executor.NewManager(reg, nil, nil, executor.Config{
		SizeTolerancePct: 1.0,
		SizeToleranceAbs: 0.001,
		MakerImprove:     1.0,
		MakerWait:        time.Millisecond,
		FillCheckDelays:  []time.Duration{0},
		TakerFallback:    true,
	}, logger)

	trades := &tradeLog{}
	skips := &skipLog{}
	alerts := &alertRecorder{}

	strat := New(Config{
		Symbol:         "BTC",
		Size:           0.01,
		EntryGapUSD:    100,
		ExitGapUSD:     40,
		MaxEntryGapUSD: 1000,
	}, alpha, beta, stateMgr, riskMgr, execMgr, trades, alerts, skips, logger)

	return &engine{strat: strat, alpha: alpha, beta: beta, state: stateMgr, trades: trades, skips: skips, alerts: alerts}
}

// wideGap puts alpha 150 USD below beta, comfortably past the entry trigger.
func (e *engine) wideGap() {
	e.alpha.SetQuote("BTC", 49_990, 50_010)
	e.beta.SetQuote("BTC", 50_140, 50_160)
}

func TestEntryAndExitRoundTrip(t *testing.T) {
	e := newEngine(t)
	e.wideGap()

	if err := e.strat.OnMarketUpdate(context.Background()); err != nil {
		t.Fatalf("entry tick: %v", err)
	}
	if !e.state.IsOpen() {
		t.Fatal("engine should be OPEN after entry tick")
	}
	pos := e.state.Current()
	if pos.CheapVenue != "alpha" || pos.ExpensiveVenue != "beta" {
		t.Fatalf("position venues = %s/%s, want alpha/beta", pos.CheapVenue, pos.ExpensiveVenue)
	}
	if math.Abs(pos.Size-0.01) > 1e-9 {
		t.Fatalf("position size = %v, want 0.01", pos.Size)
	}
	if math.Abs(pos.EntryGapUSD-150) > 1e-9 {
		t.Fatalf("entry gap = %v, want 150", pos.EntryGapUSD)
	}
	if e.strat.Executing() {
		t.Fatal("execution lock must be released after entry")
	}

	// Compress the gap to 30 USD, under the 40 USD exit trigger.
	e.beta.SetQuote("BTC", 50_020, 50_040)

	if err := e.strat.OnMarketUpdate(context.Background()); err != nil {
		t.Fatalf("exit tick: %v", err)
	}
	if !e.state.IsFlat() {
		t.Fatal("engine should be FLAT after exit tick")
	}
	if e.trades.count() != 1 {
		t.Fatalf("recorded trades = %d, want 1", e.trades.count())
	}

	trade := e.trades.trades[0]
	if trade.Symbol != "BTC" || trade.CheapVenue != "alpha" {
		t.Fatalf("trade = %+v", trade)
	}
	wantNet := trade.GrossPnLUSD - trade.EntryFeesUSD - trade.ExitFeesUSD
	if math.Abs(trade.NetPnLUSD-wantNet) > 1e-9 {
		t.Fatalf("net pnl = %v, want gross minus fees = %v", trade.NetPnLUSD, wantNet)
	}

	long, _ := e.alpha.GetPosition(context.Background(), "BTC")
	short, _ := e.beta.GetPosition(context.Background(), "BTC")
	if long != nil || short != nil {
		t.Fatalf("venue positions after exit = %+v / %+v, want flat", long, short)
	}

	status := e.strat.Status()
	if status.Stats.Trades != 1 {
		t.Fatalf("stats.Trades = %d, want 1", status.Stats.Trades)
	}
}

func TestNoEntryBelowThreshold(t *testing.T) {
	e := newEngine(t)
	// 50 USD gap, under the 100 USD trigger.
	e.alpha.SetQuote("BTC", 49_990, 50_010)
	e.beta.SetQuote("BTC", 50_040, 50_060)

	if err := e.strat.OnMarketUpdate(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !e.state.IsFlat() {
		t.Fatal("engine should stay FLAT below the entry trigger")
	}
}

func TestNoEntryAtExactThreshold(t *testing.T) {
	e := newEngine(t)
	// Gap of exactly 100 USD sits on the trigger; entry needs more.
	e.alpha.SetQuote("BTC", 49_990, 50_010)
	e.beta.SetQuote("BTC", 50_090, 50_110)

	if err := e.strat.OnMarketUpdate(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !e.state.IsFlat() {
		t.Fatal("engine should stay FLAT at a gap equal to the entry trigger")
	}
}

func TestRoundTripPnLIdentity(t *testing.T) {
	logger := testLogger()

	// Zero fees and zero-spread books isolate the gap arithmetic: net must
	// come out to (entry gap - exit gap) x size exactly.
	fees := venue.FeeSchedule{}
	alpha := paper.New("alpha", fees, 100_000)
	beta := paper.New("beta", fees, 100_000)

	reg := venue.NewRegistry()
	reg.Register(alpha, fees)
	reg.Register(beta, fees)

	stateMgr := state.NewManager(time.Minute, logger)
	riskMgr := risk.NewManager(risk.Config{
		MaxLeverage:     5,
		MarginBufferPct: 10,
		MaxSlippageBps:  50,
		BookDepth:       20,
	}, logger)
	execMgr := executor.NewManager(reg, nil, nil, executor.Config{
		SizeTolerancePct: 1.0,
		SizeToleranceAbs: 0.001,
		MakerImprove:     1.0,
		MakerWait:        time.Millisecond,
		FillCheckDelays:  []time.Duration{0},
		TakerFallback:    true,
	}, logger)

	trades := &tradeLog{}
	strat := New(Config{
		Symbol:         "BTC",
		Size:           0.1,
		EntryGapUSD:    100,
		ExitGapUSD:     40,
		MaxEntryGapUSD: 1000,
	}, alpha, beta, stateMgr, riskMgr, execMgr, trades, &alertRecorder{}, &skipLog{}, logger)

	// Entry gap 150 USD.
	alpha.SetQuote("BTC", 91_500, 91_500)
	beta.SetQuote("BTC", 91_650, 91_650)
	if err := strat.OnMarketUpdate(context.Background()); err != nil {
		t.Fatalf("entry tick: %v", err)
	}
	if !stateMgr.IsOpen() {
		t.Fatal("engine should be OPEN after entry tick")
	}

	// Exit gap 40 USD.
	beta.SetQuote("BTC", 91_540, 91_540)
	if err := strat.OnMarketUpdate(context.Background()); err != nil {
		t.Fatalf("exit tick: %v", err)
	}
	if trades.count() != 1 {
		t.Fatalf("recorded trades = %d, want 1", trades.count())
	}

	trade := trades.trades[0]
	if trade.EntryFeesUSD != 0 || trade.ExitFeesUSD != 0 {
		t.Fatalf("fees = %v / %v, want zero", trade.EntryFeesUSD, trade.ExitFeesUSD)
	}
	// ((91650-91500) - (91540-91500)) x 0.1 = 11.00
	if math.Abs(trade.GrossPnLUSD-11.00) > 1e-9 {
		t.Fatalf("gross pnl = %v, want 11.00", trade.GrossPnLUSD)
	}
	if math.Abs(trade.NetPnLUSD-11.00) > 1e-9 {
		t.Fatalf("net pnl = %v, want 11.00", trade.NetPnLUSD)
	}
	if math.Abs(trade.ExitGapUSD-40) > 1e-9 {
		t.Fatalf("exit gap = %v, want 40", trade.ExitGapUSD)
	}
}

func TestAnomalousGapRejected(t *testing.T) {
	e := newEngine(t)
	// 2000 USD gap, past the 1000 USD anomaly ceiling.
	e.alpha.SetQuote("BTC", 49_990, 50_010)
	e.beta.SetQuote("BTC", 51_990, 52_010)

	if err := e.strat.OnMarketUpdate(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !e.state.IsFlat() {
		t.Fatal("anomalous gap must not open a position")
	}
	if e.skips.last() != "anomalous_gap" {
		t.Fatalf("skip reason = %q, want anomalous_gap", e.skips.last())
	}
}

func TestRiskRejectionSkipsEntry(t *testing.T) {
	e := newEngine(t)
	e.wideGap()
	// Drain available margin on the cheap venue.
	e.alpha.SetUsedMargin(99_990)

	if err := e.strat.OnMarketUpdate(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !e.state.IsFlat() {
		t.Fatal("risk rejection must not open a position")
	}
	if e.skips.last() != "risk_rejected" {
		t.Fatalf("skip reason = %q, want risk_rejected", e.skips.last())
	}
	if e.strat.Executing() {
		t.Fatal("execution lock must be released after a risk rejection")
	}
}

func TestErrorCooldownSkipsEntry(t *testing.T) {
	e := newEngine(t)
	e.wideGap()
	e.state.RecordError()

	if err := e.strat.OnMarketUpdate(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !e.state.IsFlat() {
		t.Fatal("cooldown must suppress entry")
	}
	if e.skips.last() != "error_cooldown" {
		t.Fatalf("skip reason = %q, want error_cooldown", e.skips.last())
	}
}

func TestReconcileBothFlat(t *testing.T) {
	e := newEngine(t)
	if err := e.strat.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !e.state.IsFlat() {
		t.Fatal("flat venues should reconcile to FLAT")
	}
}

func TestReconcileReconstructsHedge(t *testing.T) {
	e := newEngine(t)
	e.alpha.SetPosition("BTC", &domain.Position{Side: domain.PositionSideLong, Size: 0.01, EntryPrice: 50_010})
	e.beta.SetPosition("BTC", &domain.Position{Side: domain.PositionSideShort, Size: 0.01, EntryPrice: 50_140})

	if err := e.strat.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !e.state.IsOpen() {
		t.Fatal("equal-and-opposite positions should reconstruct OPEN state")
	}
	pos := e.state.Current()
	if pos.CheapVenue != "alpha" || pos.ExpensiveVenue != "beta" {
		t.Fatalf("reconstructed venues = %s/%s", pos.CheapVenue, pos.ExpensiveVenue)
	}
	if math.Abs(pos.EntryGapUSD-130) > 1e-9 {
		t.Fatalf("reconstructed entry gap = %v, want 130", pos.EntryGapUSD)
	}
}

func TestReconcileMismatchDisablesTrading(t *testing.T) {
	e := newEngine(t)
	// Long on both venues is not a hedge.
	e.alpha.SetPosition("BTC", &domain.Position{Side: domain.PositionSideLong, Size: 0.01, EntryPrice: 50_010})
	e.beta.SetPosition("BTC", &domain.Position{Side: domain.PositionSideLong, Size: 0.01, EntryPrice: 50_140})

	err := e.strat.Reconcile(context.Background())
	if !errors.Is(err, domain.ErrPositionMismatch) {
		t.Fatalf("Reconcile err = %v, want ErrPositionMismatch", err)
	}
	if !e.strat.Disabled() {
		t.Fatal("mismatched positions must disable trading")
	}

	e.wideGap()
	if err := e.strat.OnMarketUpdate(context.Background()); err == nil {
		t.Fatal("disabled strategy must refuse ticks")
	}

	alerts := e.alerts
	alerts.mu.Lock()
	alerted := len(alerts.titles) > 0
	alerts.mu.Unlock()
	if !alerted {
		t.Fatal("mismatch must raise an operator alert")
	}
}

func TestOrphanedLegClosedBeforeEntry(t *testing.T) {
	e := newEngine(t)
	e.wideGap()
	// One live leg while the machine says FLAT: residue of an earlier crash.
	e.alpha.SetPosition("BTC", &domain.Position{Side: domain.PositionSideLong, Size: 0.01, EntryPrice: 50_010})

	if err := e.strat.OnMarketUpdate(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	orphan, _ := e.alpha.GetPosition(context.Background(), "BTC")
	if orphan != nil {
		t.Fatalf("orphan position = %+v, want closed", orphan)
	}
	if !e.state.IsFlat() {
		t.Fatal("engine should stay FLAT after closing the orphan")
	}
	if !e.state.TradingBlocked() {
		t.Fatal("orphan closure should start the error cooldown")
	}
}

func TestLiveHedgeAdoptedBeforeEntry(t *testing.T) {
	e := newEngine(t)
	e.wideGap()
	e.alpha.SetPosition("BTC", &domain.Position{Side: domain.PositionSideLong, Size: 0.01, EntryPrice: 50_010})
	e.beta.SetPosition("BTC", &domain.Position{Side: domain.PositionSideShort, Size: 0.01, EntryPrice: 50_140})

	if err := e.strat.OnMarketUpdate(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !e.state.IsOpen() {
		t.Fatal("a genuine live hedge should be adopted into OPEN state")
	}
	pos := e.state.Current()
	if pos.CheapVenue != "alpha" || math.Abs(pos.Size-0.01) > 1e-9 {
		t.Fatalf("adopted position = %+v", pos)
	}
}

func TestExitFailureLeavesPositionOpen(t *testing.T) {
	e := newEngine(t)
	e.wideGap()
	if err := e.strat.OnMarketUpdate(context.Background()); err != nil {
		t.Fatalf("entry tick: %v", err)
	}
	if !e.state.IsOpen() {
		t.Fatal("entry tick should open the position")
	}

	// Inflate the live short so the reduce-only buyback cannot flatten it:
	// the exit must be reported unconfirmed.
	e.beta.SetPosition("BTC", &domain.Position{Side: domain.PositionSideShort, Size: 0.02, EntryPrice: 50_140})
	e.beta.SetQuote("BTC", 50_020, 50_040)

	err := e.strat.OnMarketUpdate(context.Background())
	if !errors.Is(err, domain.ErrExitUnconfirmed) {
		t.Fatalf("exit tick err = %v, want ErrExitUnconfirmed", err)
	}
	if !e.state.IsOpen() {
		t.Fatal("failed exit must leave the state machine OPEN")
	}
	if !e.state.TradingBlocked() {
		t.Fatal("failed exit should start the error cooldown")
	}
	if e.strat.Executing() {
		t.Fatal("execution lock must be released after a failed exit")
	}
	if e.trades.count() != 0 {
		t.Fatalf("recorded trades = %d, want 0 after failed exit", e.trades.count())
	}
}
