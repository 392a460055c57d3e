package paper

import (
	"context"
	"math"
	"testing"

	"github.com/alanyoungcy/basisbot/internal/domain"
	"github.com/alanyoungcy/basisbot/internal/venue"
)

func newVenue() *Venue {
	v := New("paper", venue.FeeSchedule{MakerBps: 1, TakerBps: 4}, 10_000)
	v.SetQuote("BTC", 49_990, 50_010)
	return v
}

func TestMarketOrderOpensPosition(t *testing.T) {
	v := newVenue()

	order, err := v.PlaceMarketOrder(context.Background(), "BTC", domain.OrderSideBuy, 0.01, domain.OrderOpts{})
	if err != nil {
		t.Fatalf("PlaceMarketOrder: %v", err)
	}
	if order.Status != domain.OrderStatusFilled || order.FilledSize != 0.01 {
		t.Fatalf("order = %+v", order)
	}
	if order.AvgFillPrice != 50_010 {
		t.Fatalf("buy filled at %v, want the ask", order.AvgFillPrice)
	}

	pos, _ := v.GetPosition(context.Background(), "BTC")
	if pos == nil || pos.Side != domain.PositionSideLong || pos.Size != 0.01 {
		t.Fatalf("position = %+v", pos)
	}

	// Taker fee was charged against the balance.
	acct, _ := v.GetAccountInfo(context.Background())
	wantFee := 0.01 * 50_010 * 0.0004
	if math.Abs((10_000-acct.Balance)-wantFee) > 1e-9 {
		t.Fatalf("balance = %v, want fee %v deducted", acct.Balance, wantFee)
	}
}

func TestRoundTripFlattensPosition(t *testing.T) {
	v := newVenue()
	if _, err := v.PlaceMarketOrder(context.Background(), "BTC", domain.OrderSideBuy, 0.01, domain.OrderOpts{}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := v.PlaceMarketOrder(context.Background(), "BTC", domain.OrderSideSell, 0.01, domain.OrderOpts{ReduceOnly: true}); err != nil {
		t.Fatalf("close: %v", err)
	}
	pos, _ := v.GetPosition(context.Background(), "BTC")
	if pos != nil {
		t.Fatalf("position = %+v, want flat", pos)
	}
}

func TestPostOnlyCrossingRejected(t *testing.T) {
	v := newVenue()

	// A buy at the ask would cross: post-only must reject, not fill.
	order, err := v.PlaceLimitOrder(context.Background(), "BTC", domain.OrderSideBuy, 0.01, 50_010, domain.OrderOpts{PostOnly: true})
	if err == nil {
		t.Fatal("crossing post-only order should error")
	}
	if order.Status != domain.OrderStatusRejected {
		t.Fatalf("order status = %v, want rejected", order.Status)
	}
	pos, _ := v.GetPosition(context.Background(), "BTC")
	if pos != nil {
		t.Fatalf("position = %+v, want none", pos)
	}
}

func TestPostOnlyRestingOrderCancellable(t *testing.T) {
	v := newVenue()

	order, err := v.PlaceLimitOrder(context.Background(), "BTC", domain.OrderSideBuy, 0.01, 49_991, domain.OrderOpts{PostOnly: true})
	if err != nil {
		t.Fatalf("PlaceLimitOrder: %v", err)
	}
	if order.Status != domain.OrderStatusOpen || order.FilledSize != 0 {
		t.Fatalf("order = %+v, want resting unfilled", order)
	}

	if err := v.CancelOrder(context.Background(), "BTC", order.ID); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	got, err := v.GetOrder(context.Background(), "BTC", order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.Status != domain.OrderStatusCancelled {
		t.Fatalf("order status = %v, want cancelled", got.Status)
	}
}

func TestReduceOnlyWhenFlatIsNoOp(t *testing.T) {
	v := newVenue()

	order, err := v.PlaceMarketOrder(context.Background(), "BTC", domain.OrderSideSell, 0.01, domain.OrderOpts{ReduceOnly: true})
	if err != nil {
		t.Fatalf("PlaceMarketOrder: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled || order.FilledSize != 0 {
		t.Fatalf("order = %+v, want cancelled no-op", order)
	}
	pos, _ := v.GetPosition(context.Background(), "BTC")
	if pos != nil {
		t.Fatalf("position = %+v, want none", pos)
	}
}

func TestReduceOnlyClampsToPosition(t *testing.T) {
	v := newVenue()
	v.SetPosition("BTC", &domain.Position{Side: domain.PositionSideLong, Size: 0.01, EntryPrice: 50_000})

	order, err := v.PlaceMarketOrder(context.Background(), "BTC", domain.OrderSideSell, 0.05, domain.OrderOpts{ReduceOnly: true})
	if err != nil {
		t.Fatalf("PlaceMarketOrder: %v", err)
	}
	if order.FilledSize != 0.01 {
		t.Fatalf("filled = %v, want clamped to 0.01", order.FilledSize)
	}
	pos, _ := v.GetPosition(context.Background(), "BTC")
	if pos != nil {
		t.Fatalf("position = %+v, want flat", pos)
	}
}

func TestOrderBookDepthLimit(t *testing.T) {
	v := newVenue()
	book, err := v.GetOrderBook(context.Background(), "BTC", 3)
	if err != nil {
		t.Fatalf("GetOrderBook: %v", err)
	}
	if len(book.Bids) != 3 || len(book.Asks) != 3 {
		t.Fatalf("depth = %d/%d, want 3/3", len(book.Bids), len(book.Asks))
	}
	if book.Bids[0].Price != 49_990 || book.Asks[0].Price != 50_010 {
		t.Fatalf("touch = %v/%v", book.Bids[0].Price, book.Asks[0].Price)
	}
}
