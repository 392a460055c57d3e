// Package basis holds the depth, slippage, and gap arithmetic shared by the
// risk gate and the execution orchestrator.
package basis

import "github.com/alanyoungcy/basisbot/internal/domain"

// Fill is the result of walking order-book depth for a requested size.
type Fill struct {
	// Size actually available, up to the requested amount.
	Size float64
	// AvgPrice is the volume-weighted average price over the consumed levels.
	// Zero when Size is zero.
	AvgPrice float64
}

// WalkDepth consumes levels in order until size is filled or depth runs out.
// Levels must already be sorted best-first for the intended side (asks
// ascending for a buy, bids descending for a sell).
func WalkDepth(levels []domain.PriceLevel, size float64) Fill {
	if size <= 0 {
		return Fill{}
	}
	var filled, cost float64
	remaining := size
	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		take := lvl.Size
		if take > remaining {
			take = remaining
		}
		filled += take
		cost += take * lvl.Price
		remaining -= take
	}
	if filled == 0 {
		return Fill{}
	}
	return Fill{Size: filled, AvgPrice: cost / filled}
}

// SlippageBps returns the adverse deviation of avg from ref in basis points
// of ref. For a buy, paying more than ref is adverse; for a sell, receiving
// less. Favorable deviation returns a negative value.
func SlippageBps(ref, avg float64, side domain.OrderSide) float64 {
	if ref <= 0 {
		return 0
	}
	if side == domain.OrderSideBuy {
		return (avg - ref) / ref * 10_000
	}
	return (ref - avg) / ref * 10_000
}

// ExecutionGap is the depth-adjusted gap: what the short leg realistically
// sells for minus what the long leg realistically costs.
func ExecutionGap(cheapBuyAvg, expensiveSellAvg float64) float64 {
	return expensiveSellAvg - cheapBuyAvg
}

// RequiredMargin returns the margin needed to carry notional at maxLeverage,
// inflated by bufferPct percent.
func RequiredMargin(notional, maxLeverage, bufferPct float64) float64 {
	if maxLeverage <= 0 {
		maxLeverage = 1
	}
	return notional / maxLeverage * (1 + bufferPct/100)
}

// WeightedAvgPrice combines two fills into a size-weighted average price.
// A zero combined size yields zero.
func WeightedAvgPrice(size1, price1, size2, price2 float64) float64 {
	total := size1 + size2
	if total <= 0 {
		return 0
	}
	return (size1*price1 + size2*price2) / total
}

// MakerPrice returns a post-only limit price just inside the touch: a buy
// improves the best bid, a sell undercuts the best ask, and neither crosses
// the spread.
func MakerPrice(bid, ask float64, side domain.OrderSide, improve float64) float64 {
	if side == domain.OrderSideBuy {
		p := bid + improve
		if ask > 0 && p >= ask {
			p = ask - improve
		}
		return p
	}
	p := ask - improve
	if p <= bid {
		p = bid + improve
	}
	return p
}

// WithinTolerance reports whether got is within tolPct percent of want, or
// within absTol absolute units, of want. Either bound is enough.
func WithinTolerance(want, got, tolPct, absTol float64) bool {
	diff := want - got
	if diff < 0 {
		diff = -diff
	}
	if absTol > 0 && diff <= absTol {
		return true
	}
	if want == 0 {
		return diff == 0
	}
	return diff/want*100 <= tolPct
}
