// Package paper implements a simulated in-memory venue. It fills orders
// against a quote set by the caller (the recorder feed in paper mode, the
// test harness in tests), tracks positions and balance, and never touches a
// network.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/basisbot/internal/domain"
	"github.com/alanyoungcy/basisbot/internal/venue"
)

// Venue is a simulated exchange. All methods are safe for concurrent use.
type Venue struct {
	name string
	fees venue.FeeSchedule

	mu        sync.Mutex
	quotes    map[string]domain.MarketData
	books     map[string]domain.OrderBook
	orders    map[string]domain.Order
	positions map[string]*domain.Position
	balance   float64
	used      float64
}

// New creates a paper venue with the given starting balance in quote units.
func New(name string, fees venue.FeeSchedule, balance float64) *Venue {
	return &Venue{
		name:      name,
		fees:      fees,
		quotes:    make(map[string]domain.MarketData),
		books:     make(map[string]domain.OrderBook),
		orders:    make(map[string]domain.Order),
		positions: make(map[string]*domain.Position),
		balance:   balance,
	}
}

func (v *Venue) Name() string { return v.name }

// SetQuote updates the simulated top-of-book for symbol. A synthetic order
// book is derived from it so depth walks have something to chew on.
func (v *Venue) SetQuote(symbol string, bid, ask float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := time.Now().UTC()
	v.quotes[symbol] = domain.MarketData{
		Bid:       bid,
		Ask:       ask,
		Mid:       (bid + ask) / 2,
		Timestamp: now,
	}
	// Ten synthetic levels each side, 1000 units per level, widening ticks.
	tick := (ask - bid) / 2
	if tick <= 0 {
		tick = ask * 0.0001
	}
	book := domain.OrderBook{Timestamp: now}
	for i := 0; i < 10; i++ {
		book.Bids = append(book.Bids, domain.PriceLevel{Price: bid - float64(i)*tick, Size: 1000})
		book.Asks = append(book.Asks, domain.PriceLevel{Price: ask + float64(i)*tick, Size: 1000})
	}
	v.books[symbol] = book
}

// SetOrderBook overrides the synthetic book for symbol.
func (v *Venue) SetOrderBook(symbol string, book domain.OrderBook) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.books[symbol] = book
}

// SetPosition force-sets the live position, or clears it when pos is nil.
func (v *Venue) SetPosition(symbol string, pos *domain.Position) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if pos == nil {
		delete(v.positions, symbol)
		return
	}
	p := *pos
	v.positions[symbol] = &p
}

func (v *Venue) GetMarketData(_ context.Context, symbol string) (domain.MarketData, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	md, ok := v.quotes[symbol]
	if !ok {
		return domain.MarketData{}, fmt.Errorf("paper %s: no quote for %s: %w", v.name, symbol, domain.ErrNotFound)
	}
	return md, nil
}

func (v *Venue) GetOrderBook(_ context.Context, symbol string, depth int) (domain.OrderBook, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	book, ok := v.books[symbol]
	if !ok {
		return domain.OrderBook{}, fmt.Errorf("paper %s: no book for %s: %w", v.name, symbol, domain.ErrNotFound)
	}
	out := domain.OrderBook{Timestamp: book.Timestamp}
	if depth <= 0 || depth > len(book.Bids) {
		depth = len(book.Bids)
	}
	out.Bids = append(out.Bids, book.Bids[:min(depth, len(book.Bids))]...)
	out.Asks = append(out.Asks, book.Asks[:min(depth, len(book.Asks))]...)
	return out, nil
}

func (v *Venue) PlaceLimitOrder(_ context.Context, symbol string, side domain.OrderSide, size, price float64, opts domain.OrderOpts) (domain.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	md, ok := v.quotes[symbol]
	if !ok {
		return domain.Order{}, fmt.Errorf("paper %s: no quote for %s: %w", v.name, symbol, domain.ErrNotFound)
	}

	order := domain.Order{
		ID:         uuid.New().String(),
		Symbol:     symbol,
		Side:       side,
		Size:       size,
		Price:      price,
		Status:     domain.OrderStatusOpen,
		PostOnly:   opts.PostOnly,
		ReduceOnly: opts.ReduceOnly,
		CreatedAt:  time.Now().UTC(),
	}

	crosses := (side == domain.OrderSideBuy && price >= md.Ask) ||
		(side == domain.OrderSideSell && price <= md.Bid)

	if crosses {
		if opts.PostOnly {
			order.Status = domain.OrderStatusRejected
			v.orders[order.ID] = order
			return order, fmt.Errorf("paper %s: post-only order would cross", v.name)
		}
		fillPrice := md.Ask
		if side == domain.OrderSideSell {
			fillPrice = md.Bid
		}
		v.fill(&order, size, fillPrice, opts.ReduceOnly)
	}

	v.orders[order.ID] = order
	return order, nil
}

func (v *Venue) PlaceMarketOrder(_ context.Context, symbol string, side domain.OrderSide, size float64, opts domain.OrderOpts) (domain.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	md, ok := v.quotes[symbol]
	if !ok {
		return domain.Order{}, fmt.Errorf("paper %s: no quote for %s: %w", v.name, symbol, domain.ErrNotFound)
	}
	price := md.Ask
	if side == domain.OrderSideSell {
		price = md.Bid
	}
	order := domain.Order{
		ID:         uuid.New().String(),
		Symbol:     symbol,
		Side:       side,
		Size:       size,
		Status:     domain.OrderStatusOpen,
		ReduceOnly: opts.ReduceOnly,
		CreatedAt:  time.Now().UTC(),
	}
	v.fill(&order, size, price, opts.ReduceOnly)
	v.orders[order.ID] = order
	return order, nil
}

// fill applies an execution to the order and the position book. Caller holds
// the mutex. Reduce-only fills are clamped to the open position and become
// no-ops when flat.
func (v *Venue) fill(order *domain.Order, size, price float64, reduceOnly bool) {
	pos := v.positions[order.Symbol]

	if reduceOnly {
		if pos == nil {
			order.Status = domain.OrderStatusCancelled
			return
		}
		if size > pos.Size {
			size = pos.Size
		}
	}

	order.FilledSize = size
	order.AvgFillPrice = price
	order.Status = domain.OrderStatusFilled

	delta := size
	if order.Side == domain.OrderSideSell {
		delta = -size
	}

	cur := 0.0
	entry := 0.0
	if pos != nil {
		cur = pos.SignedSize()
		entry = pos.EntryPrice
	}
	next := cur + delta

	switch {
	case next == 0:
		delete(v.positions, order.Symbol)
	case cur == 0 || (cur > 0) == (next > 0) && abs(next) > abs(cur):
		// Opening or adding: blend the entry price.
		newEntry := price
		if cur != 0 {
			newEntry = (entry*abs(cur) + price*size) / abs(next)
		}
		v.positions[order.Symbol] = &domain.Position{
			Side:       sideOf(next),
			Size:       abs(next),
			EntryPrice: newEntry,
			MarkPrice:  price,
		}
	default:
		// Reducing (possibly through zero).
		v.positions[order.Symbol] = &domain.Position{
			Side:       sideOf(next),
			Size:       abs(next),
			EntryPrice: entry,
			MarkPrice:  price,
		}
		if (cur > 0) != (next > 0) {
			v.positions[order.Symbol].EntryPrice = price
		}
	}

	fee := size * price * v.fees.Rate(domain.LiquidityTaker)
	v.balance -= fee
}

func (v *Venue) CancelOrder(_ context.Context, _ string, orderID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	order, ok := v.orders[orderID]
	if !ok {
		return fmt.Errorf("paper %s: order %s: %w", v.name, orderID, domain.ErrNotFound)
	}
	if order.Status == domain.OrderStatusOpen || order.Status == domain.OrderStatusPartiallyFilled {
		order.Status = domain.OrderStatusCancelled
		v.orders[orderID] = order
	}
	return nil
}

func (v *Venue) GetOrder(_ context.Context, _ string, orderID string) (domain.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	order, ok := v.orders[orderID]
	if !ok {
		return domain.Order{}, fmt.Errorf("paper %s: order %s: %w", v.name, orderID, domain.ErrNotFound)
	}
	return order, nil
}

func (v *Venue) GetPosition(_ context.Context, symbol string) (*domain.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pos, ok := v.positions[symbol]
	if !ok {
		return nil, nil
	}
	p := *pos
	return &p, nil
}

func (v *Venue) GetAccountInfo(_ context.Context) (domain.AccountInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return domain.AccountInfo{
		Balance:         v.balance,
		AvailableMargin: v.balance - v.used,
		UsedMargin:      v.used,
	}, nil
}

// SetUsedMargin adjusts the reported margin usage (for risk-gate tests).
func (v *Venue) SetUsedMargin(used float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.used = used
}

func sideOf(signed float64) domain.PositionSide {
	if signed < 0 {
		return domain.PositionSideShort
	}
	return domain.PositionSideLong
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
