package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderStatus tracks the order lifecycle as reported by a venue.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// OrderOpts carries the optional execution flags a venue order can take.
type OrderOpts struct {
	// PostOnly rejects the order instead of crossing the spread, so the fill
	// qualifies for maker fees.
	PostOnly bool
	// ReduceOnly only decreases an existing position, never opens a new one.
	ReduceOnly bool
}

// Order is a venue's view of a single order.
type Order struct {
	ID           string
	Symbol       string
	Side         OrderSide
	Size         float64
	FilledSize   float64
	Price        float64 // limit price; 0 for market orders
	AvgFillPrice float64
	Status       OrderStatus
	PostOnly     bool
	ReduceOnly   bool
	CreatedAt    time.Time
}

// Liquidity classifies how a fill was priced.
type Liquidity string

const (
	LiquidityMaker Liquidity = "maker"
	LiquidityTaker Liquidity = "taker"
)
