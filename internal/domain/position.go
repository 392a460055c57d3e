package domain

import "time"

// PositionSide is the direction of a venue position.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// Position is one venue's reported position for a symbol. A nil *Position
// means the venue reports no exposure.
type Position struct {
	Side          PositionSide
	Size          float64 // always positive; direction is in Side
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnL float64
}

// SignedSize returns the position size with long positive and short negative.
func (p *Position) SignedSize() float64 {
	if p == nil {
		return 0
	}
	if p.Side == PositionSideShort {
		return -p.Size
	}
	return p.Size
}

// AccountInfo is a venue's margin account summary in quote currency.
type AccountInfo struct {
	Balance         float64
	AvailableMargin float64
	UsedMargin      float64
}

// HedgePosition is the hedge currently held: long the cheap venue, short the
// expensive venue, equal size on both legs by construction. It exists iff the
// state machine is OPEN.
type HedgePosition struct {
	Symbol              string
	CheapVenue          string
	ExpensiveVenue      string
	EntryGapUSD         float64
	Size                float64
	CheapEntryPrice     float64
	ExpensiveEntryPrice float64
	EntryFeesUSD        float64
	LongOrderID         string
	ShortOrderID        string
	OpenedAt            time.Time
}
