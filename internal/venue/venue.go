// Package venue defines the exchange capability interface the engine depends
// on. Each supported venue implements it once; venue-specific signing, unit
// conversions, and wire formats stay entirely behind this boundary.
package venue

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/basisbot/internal/domain"
)

// Exchange is the full capability surface the engine needs from a venue.
type Exchange interface {
	// Name returns the venue identifier used for routing and fee lookup.
	Name() string

	GetMarketData(ctx context.Context, symbol string) (domain.MarketData, error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error)

	PlaceLimitOrder(ctx context.Context, symbol string, side domain.OrderSide, size, price float64, opts domain.OrderOpts) (domain.Order, error)
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, size float64, opts domain.OrderOpts) (domain.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOrder(ctx context.Context, symbol, orderID string) (domain.Order, error)

	// GetPosition returns nil when the venue reports no exposure for symbol.
	GetPosition(ctx context.Context, symbol string) (*domain.Position, error)
	GetAccountInfo(ctx context.Context) (domain.AccountInfo, error)
}

// FeeSchedule holds one venue's fee rates in basis points.
type FeeSchedule struct {
	MakerBps float64
	TakerBps float64
}

// Rate returns the fee rate (as a fraction, not bps) for the given liquidity.
func (f FeeSchedule) Rate(liq domain.Liquidity) float64 {
	if liq == domain.LiquidityMaker {
		return f.MakerBps / 10_000
	}
	return f.TakerBps / 10_000
}

// Registry maps venue names to Exchange implementations and fee schedules.
type Registry struct {
	exchanges map[string]Exchange
	fees      map[string]FeeSchedule
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		exchanges: make(map[string]Exchange),
		fees:      make(map[string]FeeSchedule),
	}
}

// Register adds an exchange and its fee schedule under its own name.
func (r *Registry) Register(ex Exchange, fees FeeSchedule) {
	r.exchanges[ex.Name()] = ex
	r.fees[ex.Name()] = fees
}

// Get returns the exchange registered under name.
func (r *Registry) Get(name string) (Exchange, error) {
	ex, ok := r.exchanges[name]
	if !ok {
		return nil, fmt.Errorf("venue: %q not registered: %w", name, domain.ErrNotFound)
	}
	return ex, nil
}

// Fees returns the fee schedule for name. Unknown venues get a zero schedule.
func (r *Registry) Fees(name string) FeeSchedule {
	return r.fees[name]
}

// Names returns all registered venue names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.exchanges))
	for n := range r.exchanges {
		names = append(names, n)
	}
	return names
}
