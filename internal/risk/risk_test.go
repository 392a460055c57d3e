package risk

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/alanyoungcy/basisbot/internal/basis"
	"github.com/alanyoungcy/basisbot/internal/domain"
	"github.com/alanyoungcy/basisbot/internal/venue"
	"github.com/alanyoungcy/basisbot/internal/venue/paper"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testVenues() (*paper.Venue, *paper.Venue) {
	cheap := paper.New("cheap", venue.FeeSchedule{MakerBps: 1, TakerBps: 4}, 100_000)
	expensive := paper.New("expensive", venue.FeeSchedule{MakerBps: 1, TakerBps: 5.5}, 100_000)
	cheap.SetQuote("BTC", 49_990, 50_010)
	expensive.SetQuote("BTC", 50_140, 50_160)
	return cheap, expensive
}

func testRequest(cheap, expensive *paper.Venue) CheckRequest {
	return CheckRequest{
		Cheap:          cheap,
		Expensive:      expensive,
		Symbol:         "BTC",
		Size:           0.01,
		CheapPrice:     50_010,
		ExpensivePrice: 50_140,
	}
}

func testConfig() Config {
	return Config{MaxLeverage: 5, MarginBufferPct: 10, MaxSlippageBps: 10, BookDepth: 20}
}

func TestPreTradeCheckPasses(t *testing.T) {
	cheap, expensive := testVenues()
	m := NewManager(testConfig(), testLogger())

	res := m.PreTradeCheck(context.Background(), testRequest(cheap, expensive))
	if !res.Passed {
		t.Fatalf("check failed: %s", res.Reason)
	}
}

func TestPreTradeCheckRejectsNonPositiveSize(t *testing.T) {
	cheap, expensive := testVenues()
	m := NewManager(testConfig(), testLogger())

	req := testRequest(cheap, expensive)
	req.Size = 0
	if res := m.PreTradeCheck(context.Background(), req); res.Passed {
		t.Fatal("zero size should be rejected")
	}
}

func TestPreTradeCheckInsufficientMargin(t *testing.T) {
	cheap, expensive := testVenues()
	// Requirement is about 110 USD at 5x with a 10% buffer; leave 50.
	cheap.SetUsedMargin(99_950)
	m := NewManager(testConfig(), testLogger())

	res := m.PreTradeCheck(context.Background(), testRequest(cheap, expensive))
	if res.Passed {
		t.Fatal("check should fail on margin")
	}
	if !strings.Contains(res.Reason, "margin") {
		t.Fatalf("reason = %q, want margin rejection", res.Reason)
	}
}

func TestPreTradeCheckMarginBoundary(t *testing.T) {
	cfg := testConfig()
	required := basis.RequiredMargin(0.01*50_010, cfg.MaxLeverage, cfg.MarginBufferPct)
	m := NewManager(cfg, testLogger())

	// Available margin exactly equal to the buffered requirement passes.
	cheap := paper.New("cheap", venue.FeeSchedule{MakerBps: 1, TakerBps: 4}, required)
	expensive := paper.New("expensive", venue.FeeSchedule{MakerBps: 1, TakerBps: 5.5}, 100_000)
	cheap.SetQuote("BTC", 49_990, 50_010)
	expensive.SetQuote("BTC", 50_140, 50_160)

	if res := m.PreTradeCheck(context.Background(), testRequest(cheap, expensive)); !res.Passed {
		t.Fatalf("exact required margin should pass: %s", res.Reason)
	}

	// One dollar under fails.
	tight := paper.New("cheap", venue.FeeSchedule{MakerBps: 1, TakerBps: 4}, required-1)
	tight.SetQuote("BTC", 49_990, 50_010)

	res := m.PreTradeCheck(context.Background(), testRequest(tight, expensive))
	if res.Passed {
		t.Fatal("margin one dollar under the requirement should fail")
	}
	if !strings.Contains(res.Reason, "margin") {
		t.Fatalf("reason = %q, want margin rejection", res.Reason)
	}
}

func TestPreTradeCheckInsufficientDepth(t *testing.T) {
	cheap, expensive := testVenues()
	cheap.SetOrderBook("BTC", domain.OrderBook{
		Bids: []domain.PriceLevel{{Price: 49_990, Size: 0.001}},
		Asks: []domain.PriceLevel{{Price: 50_010, Size: 0.001}},
	})
	m := NewManager(testConfig(), testLogger())

	res := m.PreTradeCheck(context.Background(), testRequest(cheap, expensive))
	if res.Passed {
		t.Fatal("check should fail on depth")
	}
	if !strings.Contains(res.Reason, "depth") {
		t.Fatalf("reason = %q, want depth rejection", res.Reason)
	}
}

func TestPreTradeCheckExcessiveSlippage(t *testing.T) {
	cheap, expensive := testVenues()
	// The whole requested size only fills 100 USD above the reference,
	// roughly 20 bps against a 10 bps limit.
	cheap.SetOrderBook("BTC", domain.OrderBook{
		Bids: []domain.PriceLevel{{Price: 49_990, Size: 1000}},
		Asks: []domain.PriceLevel{{Price: 50_110, Size: 1000}},
	})
	m := NewManager(testConfig(), testLogger())

	res := m.PreTradeCheck(context.Background(), testRequest(cheap, expensive))
	if res.Passed {
		t.Fatal("check should fail on slippage")
	}
	if !strings.Contains(res.Reason, "slippage") {
		t.Fatalf("reason = %q, want slippage rejection", res.Reason)
	}
}

func TestPreTradeCheckNonPositiveExecutionGap(t *testing.T) {
	cheap, expensive := testVenues()
	// Same quote on both venues: depth-adjusted sell proceeds sit below the
	// depth-adjusted buy cost, so the trade cannot clear fees.
	expensive.SetQuote("BTC", 49_990, 50_010)
	m := NewManager(testConfig(), testLogger())

	req := testRequest(cheap, expensive)
	req.ExpensivePrice = 49_990
	res := m.PreTradeCheck(context.Background(), req)
	if res.Passed {
		t.Fatal("check should fail on execution gap")
	}
	if !strings.Contains(res.Reason, "execution gap") {
		t.Fatalf("reason = %q, want execution gap rejection", res.Reason)
	}
}

func TestPreTradeCheckFailsClosedOnQueryError(t *testing.T) {
	cheap, expensive := testVenues()
	// No quote means no book on this symbol: the gate must reject, not pass.
	m := NewManager(testConfig(), testLogger())

	req := testRequest(cheap, expensive)
	req.Symbol = "ETH"
	res := m.PreTradeCheck(context.Background(), req)
	if res.Passed {
		t.Fatal("check should fail closed when book data is unavailable")
	}
}
