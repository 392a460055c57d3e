package executor

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
	"github.com/alanyoungcy/basisbot/internal/venue"
	"github.com/alanyoungcy/basisbot/internal/venue/paper"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
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

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (a *memAudit) has(event string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.events {
		if e == event {
			return true
		}
	}
	return false
}

func testConfig() Config {
	return Config{
		SizeTolerancePct: 1.0,
		SizeToleranceAbs: 0.001,
		MakerImprove:     1.0,
		MakerWait:        time.Millisecond,
		FillCheckDelays:  []time.Duration{0},
		TakerFallback:    true,
	}
}

// harness wires two paper venues into a Manager with sleeps stubbed out.
func harness(t *testing.T) (*Manager, *paper.Venue, *paper.Venue, *alertRecorder, *memAudit) {
	t.Helper()
	cheap := paper.New("cheap", venue.FeeSchedule{MakerBps: 1, TakerBps: 4}, 100_000)
	expensive := paper.New("expensive", venue.FeeSchedule{MakerBps: 1, TakerBps: 5.5}, 100_000)

	reg := venue.NewRegistry()
	reg.Register(cheap, venue.FeeSchedule{MakerBps: 1, TakerBps: 4})
	reg.Register(expensive, venue.FeeSchedule{MakerBps: 1, TakerBps: 5.5})

	alerts := &alertRecorder{}
	audit := &memAudit{}
	m := NewManager(reg, alerts, audit, testConfig(), testLogger())
	m.sleep = func(context.Context, time.Duration) {}
	return m, cheap, expensive, alerts, audit
}

func TestExecuteSpreadEntryFillsBothLegs(t *testing.T) {
	m, cheap, expensive, _, _ := harness(t)
	cheap.SetQuote("BTC", 49_990, 50_010)
	expensive.SetQuote("BTC", 50_140, 50_160)

	res, err := m.ExecuteSpreadEntry(context.Background(), "cheap", "expensive", "BTC", 0.01, 50_010, 50_140)
	if err != nil {
		t.Fatalf("ExecuteSpreadEntry: %v", err)
	}

	if res.CheapLeg.FilledSize != 0.01 || res.CheapLeg.Side != domain.OrderSideBuy {
		t.Fatalf("cheap leg = %+v", res.CheapLeg)
	}
	if res.ExpensiveLeg.FilledSize != 0.01 || res.ExpensiveLeg.Side != domain.OrderSideSell {
		t.Fatalf("expensive leg = %+v", res.ExpensiveLeg)
	}
	// The paper venue never fills a resting maker order, so both legs sweep
	// through the taker fallback at the touch.
	if res.CheapLeg.Liquidity != domain.LiquidityTaker {
		t.Fatalf("cheap liquidity = %v, want taker", res.CheapLeg.Liquidity)
	}
	if res.CheapLeg.AvgPrice != 50_010 || res.ExpensiveLeg.AvgPrice != 50_140 {
		t.Fatalf("avg prices = %v / %v", res.CheapLeg.AvgPrice, res.ExpensiveLeg.AvgPrice)
	}
	// 0.01 * 50010 * 4bps
	wantFee := 0.01 * 50_010 * 0.0004
	if math.Abs(res.CheapLeg.FeeUSD-wantFee) > 1e-9 {
		t.Fatalf("cheap fee = %v, want %v", res.CheapLeg.FeeUSD, wantFee)
	}

	long, _ := cheap.GetPosition(context.Background(), "BTC")
	short, _ := expensive.GetPosition(context.Background(), "BTC")
	if long == nil || long.Side != domain.PositionSideLong || long.Size != 0.01 {
		t.Fatalf("cheap position = %+v", long)
	}
	if short == nil || short.Side != domain.PositionSideShort || short.Size != 0.01 {
		t.Fatalf("expensive position = %+v", short)
	}
}

func TestExecuteSpreadEntryNoFill(t *testing.T) {
	m, _, _, _, audit := harness(t)
	// No quotes on either venue: every placement fails and nothing fills.

	_, err := m.ExecuteSpreadEntry(context.Background(), "cheap", "expensive", "BTC", 0.01, 50_010, 50_140)
	if !errors.Is(err, domain.ErrNoFill) {
		t.Fatalf("err = %v, want ErrNoFill", err)
	}
	if !audit.has("entry_no_fill") {
		t.Fatalf("audit events = %v, want entry_no_fill", audit.events)
	}
}

func TestExecuteSpreadEntryOneSidedUnwound(t *testing.T) {
	m, cheap, expensive, _, audit := harness(t)
	cheap.SetQuote("BTC", 49_990, 50_010)
	// The expensive venue has no quote: its leg cannot fill.

	_, err := m.ExecuteSpreadEntry(context.Background(), "cheap", "expensive", "BTC", 0.01, 50_010, 50_140)
	if !errors.Is(err, domain.ErrOneSidedFill) {
		t.Fatalf("err = %v, want ErrOneSidedFill", err)
	}
	if !audit.has("entry_one_sided_unwound") {
		t.Fatalf("audit events = %v, want entry_one_sided_unwound", audit.events)
	}

	// The filled long must have been flattened, never left naked.
	long, _ := cheap.GetPosition(context.Background(), "BTC")
	if long != nil {
		t.Fatalf("cheap position after unwind = %+v, want flat", long)
	}
	short, _ := expensive.GetPosition(context.Background(), "BTC")
	if short != nil {
		t.Fatalf("expensive position = %+v, want flat", short)
	}
}

func TestExecuteSpreadEntryAcceptsConsistentPartialFill(t *testing.T) {
	m, cheap, expensive, _, _ := harness(t)
	cheap.SetQuote("BTC", 49_990, 50_010)
	expensive.SetQuote("BTC", 50_140, 50_160)
	// Offset both venues so the 0.01 entry nets to 0.005 on each side:
	// equal undersized legs are an intact hedge and must be accepted.
	cheap.SetPosition("BTC", &domain.Position{Side: domain.PositionSideShort, Size: 0.005, EntryPrice: 50_000})
	expensive.SetPosition("BTC", &domain.Position{Side: domain.PositionSideLong, Size: 0.005, EntryPrice: 50_150})

	res, err := m.ExecuteSpreadEntry(context.Background(), "cheap", "expensive", "BTC", 0.01, 50_010, 50_140)
	if err != nil {
		t.Fatalf("ExecuteSpreadEntry: %v", err)
	}
	if math.Abs(res.CheapLeg.FilledSize-0.005) > 1e-9 {
		t.Fatalf("cheap filled = %v, want matched 0.005", res.CheapLeg.FilledSize)
	}
	if math.Abs(res.ExpensiveLeg.FilledSize-0.005) > 1e-9 {
		t.Fatalf("expensive filled = %v, want matched 0.005", res.ExpensiveLeg.FilledSize)
	}
}

func TestExecuteSpreadExitClosesBothLegs(t *testing.T) {
	m, cheap, expensive, _, _ := harness(t)
	cheap.SetQuote("BTC", 50_090, 50_110)
	expensive.SetQuote("BTC", 50_120, 50_140)
	cheap.SetPosition("BTC", &domain.Position{Side: domain.PositionSideLong, Size: 0.01, EntryPrice: 50_010})
	expensive.SetPosition("BTC", &domain.Position{Side: domain.PositionSideShort, Size: 0.01, EntryPrice: 50_140})

	res, err := m.ExecuteSpreadExit(context.Background(), "cheap", "expensive", "BTC", 0.01, 50_090, 50_140)
	if err != nil {
		t.Fatalf("ExecuteSpreadExit: %v", err)
	}
	if res.LongLeg.Side != domain.OrderSideSell || res.LongLeg.FilledSize != 0.01 {
		t.Fatalf("long leg = %+v", res.LongLeg)
	}
	if res.ShortLeg.Side != domain.OrderSideBuy || res.ShortLeg.FilledSize != 0.01 {
		t.Fatalf("short leg = %+v", res.ShortLeg)
	}

	long, _ := cheap.GetPosition(context.Background(), "BTC")
	short, _ := expensive.GetPosition(context.Background(), "BTC")
	if long != nil || short != nil {
		t.Fatalf("positions after exit = %+v / %+v, want both flat", long, short)
	}
}

func TestExecuteSpreadExitUnconfirmedAlerts(t *testing.T) {
	m, cheap, expensive, alerts, audit := harness(t)
	// The long venue still holds the position but has no market: nothing can
	// fill there and the exit must fail loudly without forcing the other leg.
	cheap.SetPosition("BTC", &domain.Position{Side: domain.PositionSideLong, Size: 0.01, EntryPrice: 50_010})
	expensive.SetQuote("BTC", 50_120, 50_140)
	expensive.SetPosition("BTC", &domain.Position{Side: domain.PositionSideShort, Size: 0.01, EntryPrice: 50_140})

	_, err := m.ExecuteSpreadExit(context.Background(), "cheap", "expensive", "BTC", 0.01, 50_090, 50_140)
	if !errors.Is(err, domain.ErrExitUnconfirmed) {
		t.Fatalf("err = %v, want ErrExitUnconfirmed", err)
	}
	if !audit.has("exit_unconfirmed") {
		t.Fatalf("audit events = %v, want exit_unconfirmed", audit.events)
	}

	alerts.mu.Lock()
	alerted := len(alerts.titles) > 0
	alerts.mu.Unlock()
	if !alerted {
		t.Fatal("failed exit must raise an operator alert")
	}

	// The stuck long leg is left for manual intervention, never auto-unwound.
	long, _ := cheap.GetPosition(context.Background(), "BTC")
	if long == nil || long.Size != 0.01 {
		t.Fatalf("long position = %+v, want untouched", long)
	}
}

func TestDefaultsFillCheckDelaysApplied(t *testing.T) {
	reg := venue.NewRegistry()
	m := NewManager(reg, nil, nil, Config{}, testLogger())
	if len(m.cfg.FillCheckDelays) == 0 {
		t.Fatal("empty fill-check delays should fall back to defaults")
	}
}
