package domain

import "time"

// LegResult is the per-venue outcome of a single executed leg. It is produced
// by the execution orchestrator and consumed immediately to update the hedge
// record; it is not persisted on its own.
type LegResult struct {
	Venue      string
	OrderID    string
	Side       OrderSide
	FilledSize float64
	AvgPrice   float64
	Liquidity  Liquidity
	FeeUSD     float64
}

// Notional returns the filled notional in quote currency.
func (l LegResult) Notional() float64 {
	return l.FilledSize * l.AvgPrice
}

// CompletedTrade is the read-only record handed to persistence and
// notification on every successful close. Created exactly once per closed
// hedge.
type CompletedTrade struct {
	ID                  string
	Symbol              string
	CheapVenue          string
	ExpensiveVenue      string
	Size                float64
	EntryGapUSD         float64
	ExitGapUSD          float64
	CheapEntryPrice     float64
	ExpensiveEntryPrice float64
	CheapExitPrice      float64
	ExpensiveExitPrice  float64
	EntryFeesUSD        float64
	ExitFeesUSD         float64
	GrossPnLUSD         float64
	NetPnLUSD           float64
	HoldSeconds         int64
	OpenedAt            time.Time
	ClosedAt            time.Time
}

// EngineStats aggregates lifetime counters for the status surface.
type EngineStats struct {
	Trades       int64
	Wins         int64
	NetPnLUSD    float64
	TotalFeesUSD float64
	StartedAt    time.Time
}

// EngineState is the strategy loop's lifecycle state.
type EngineState string

const (
	EngineStateFlat EngineState = "FLAT"
	EngineStateOpen EngineState = "OPEN"
)

// EngineStatus is the snapshot returned by the status endpoint.
type EngineStatus struct {
	State         EngineState
	Position      *HedgePosition
	Stats         EngineStats
	CurrentGapUSD float64
	LastTickAt    time.Time
	Executing     bool
}
