package basis

import (
	"math"
	"testing"

	"github.com/alanyoungcy/basisbot/internal/domain"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestWalkDepthFullFill(t *testing.T) {
	asks := []domain.PriceLevel{
		{Price: 100, Size: 2},
		{Price: 101, Size: 2},
	}
	fill := WalkDepth(asks, 3)
	if !approx(fill.Size, 3) {
		t.Fatalf("size = %v, want 3", fill.Size)
	}
	// 2@100 + 1@101 = 301 / 3
	if !approx(fill.AvgPrice, 301.0/3) {
		t.Fatalf("avg = %v, want %v", fill.AvgPrice, 301.0/3)
	}
}

func TestWalkDepthPartialFill(t *testing.T) {
	asks := []domain.PriceLevel{{Price: 100, Size: 1}}
	fill := WalkDepth(asks, 5)
	if !approx(fill.Size, 1) || !approx(fill.AvgPrice, 100) {
		t.Fatalf("got %+v, want size 1 at 100", fill)
	}
}

func TestWalkDepthEmptyBook(t *testing.T) {
	fill := WalkDepth(nil, 5)
	if fill.Size != 0 || fill.AvgPrice != 0 {
		t.Fatalf("got %+v, want zero fill", fill)
	}
}

func TestWalkDepthZeroSize(t *testing.T) {
	asks := []domain.PriceLevel{{Price: 100, Size: 1}}
	if fill := WalkDepth(asks, 0); fill.Size != 0 {
		t.Fatalf("got %+v, want zero fill", fill)
	}
}

func TestSlippageBps(t *testing.T) {
	// Buying at 101 against a 100 reference is 100 bps adverse.
	if got := SlippageBps(100, 101, domain.OrderSideBuy); !approx(got, 100) {
		t.Fatalf("buy slippage = %v, want 100", got)
	}
	// Selling at 99 against a 100 reference is 100 bps adverse.
	if got := SlippageBps(100, 99, domain.OrderSideSell); !approx(got, 100) {
		t.Fatalf("sell slippage = %v, want 100", got)
	}
	// Favorable fills come back negative.
	if got := SlippageBps(100, 99, domain.OrderSideBuy); got >= 0 {
		t.Fatalf("favorable buy slippage = %v, want negative", got)
	}
	if got := SlippageBps(0, 99, domain.OrderSideBuy); got != 0 {
		t.Fatalf("zero ref slippage = %v, want 0", got)
	}
}

func TestExecutionGap(t *testing.T) {
	if got := ExecutionGap(50010, 50140); !approx(got, 130) {
		t.Fatalf("gap = %v, want 130", got)
	}
	if got := ExecutionGap(50010, 50000); got >= 0 {
		t.Fatalf("gap = %v, want negative", got)
	}
}

func TestRequiredMargin(t *testing.T) {
	// 10k notional at 5x with a 10% buffer = 2200.
	if got := RequiredMargin(10_000, 5, 10); !approx(got, 2200) {
		t.Fatalf("margin = %v, want 2200", got)
	}
	// Non-positive leverage is treated as 1x.
	if got := RequiredMargin(10_000, 0, 0); !approx(got, 10_000) {
		t.Fatalf("margin = %v, want 10000", got)
	}
}

func TestWeightedAvgPrice(t *testing.T) {
	if got := WeightedAvgPrice(1, 100, 3, 200); !approx(got, 175) {
		t.Fatalf("wavg = %v, want 175", got)
	}
	if got := WeightedAvgPrice(0, 100, 0, 200); got != 0 {
		t.Fatalf("wavg = %v, want 0", got)
	}
}

func TestMakerPriceStaysInsideSpread(t *testing.T) {
	if got := MakerPrice(100, 110, domain.OrderSideBuy, 1); !approx(got, 101) {
		t.Fatalf("buy maker = %v, want 101", got)
	}
	if got := MakerPrice(100, 110, domain.OrderSideSell, 1); !approx(got, 109) {
		t.Fatalf("sell maker = %v, want 109", got)
	}
	// A tight spread must not produce a crossing price.
	if got := MakerPrice(100, 100.5, domain.OrderSideBuy, 1); got >= 100.5 {
		t.Fatalf("buy maker = %v, crosses ask", got)
	}
	if got := MakerPrice(100, 100.5, domain.OrderSideSell, 1); got <= 100 {
		t.Fatalf("sell maker = %v, crosses bid", got)
	}
}

func TestWithinTolerance(t *testing.T) {
	if !WithinTolerance(100, 99.5, 1.0, 0) {
		t.Fatal("0.5% off should pass a 1% tolerance")
	}
	if WithinTolerance(100, 98, 1.0, 0) {
		t.Fatal("2% off should fail a 1% tolerance")
	}
	// Absolute tolerance rescues tiny sizes where percent is meaningless.
	if !WithinTolerance(0.001, 0.0015, 1.0, 0.001) {
		t.Fatal("within absolute tolerance should pass")
	}
	if !WithinTolerance(0, 0, 1.0, 0) {
		t.Fatal("exact zero match should pass")
	}
}
