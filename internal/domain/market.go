package domain

import "time"

// MarketData is a top-of-book quote for one symbol on one venue.
type MarketData struct {
	Bid       float64
	Ask       float64
	Mid       float64
	Timestamp time.Time
}

// PriceLevel is a single price+size entry in an order book.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBook is a depth snapshot for one symbol on one venue. Bids are sorted
// best (highest) first, asks best (lowest) first.
type OrderBook struct {
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// GapSnapshot is one sampled observation of the cross-venue price gap.
// GapUSD is signed: VenueBMid minus VenueAMid.
type GapSnapshot struct {
	ID        string
	Symbol    string
	VenueA    string
	VenueB    string
	VenueAMid float64
	VenueBMid float64
	GapUSD    float64
	Timestamp time.Time
}
