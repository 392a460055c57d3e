// Package risk implements the pre-trade gate: margin, depth/slippage, and
// execution-gap checks on both venues before any capital is committed. Every
// check fails closed — missing or unfetchable data never passes.
package risk

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/basisbot/internal/basis"
	"github.com/alanyoungcy/basisbot/internal/domain"
	"github.com/alanyoungcy/basisbot/internal/venue"
)

// Config holds the tunable parameters for pre-trade risk checks.
type Config struct {
	MaxLeverage     float64
	MarginBufferPct float64
	MaxSlippageBps  float64
	// BookDepth is how many levels to request per side.
	BookDepth int
}

// Result is the outcome of a pre-trade check. Reason is set when not passed.
type Result struct {
	Passed bool
	Reason string
}

// CheckRequest names the candidate trade to validate.
type CheckRequest struct {
	Cheap          venue.Exchange
	Expensive      venue.Exchange
	Symbol         string
	Size           float64
	CheapPrice     float64 // reference buy price on the cheap venue
	ExpensivePrice float64 // reference sell price on the expensive venue
}

// Manager runs pre-trade checks. It is stateless with respect to position
// data: it takes parameters and returns results, never mutating shared state.
type Manager struct {
	cfg    Config
	logger *slog.Logger
}

// NewManager creates a Manager with the given limits.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if cfg.BookDepth <= 0 {
		cfg.BookDepth = 20
	}
	return &Manager{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "risk")),
	}
}

// PreTradeCheck validates margin, depth/slippage, and the depth-adjusted
// execution gap for the candidate trade. It is advisory only: market
// conditions can still change between check and execution.
func (m *Manager) PreTradeCheck(ctx context.Context, req CheckRequest) Result {
	if req.Size <= 0 {
		return Result{Reason: "size must be positive"}
	}

	// Step 1: margin on both venues, queried concurrently.
	if res := m.checkMargin(ctx, req); !res.Passed {
		return res
	}

	// Step 2 + 3: depth, slippage, and the execution gap from the same books.
	return m.checkDepthAndGap(ctx, req)
}

func (m *Manager) checkMargin(ctx context.Context, req CheckRequest) Result {
	var cheapAcct, expAcct domain.AccountInfo

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cheapAcct, err = req.Cheap.GetAccountInfo(gctx)
		if err != nil {
			return fmt.Errorf("%s account: %w", req.Cheap.Name(), err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		expAcct, err = req.Expensive.GetAccountInfo(gctx)
		if err != nil {
			return fmt.Errorf("%s account: %w", req.Expensive.Name(), err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		m.logger.WarnContext(ctx, "risk: margin query failed, failing closed",
			slog.String("error", err.Error()),
		)
		return Result{Reason: fmt.Sprintf("margin query failed: %v", err)}
	}

	cheapReq := basis.RequiredMargin(req.Size*req.CheapPrice, m.cfg.MaxLeverage, m.cfg.MarginBufferPct)
	expReq := basis.RequiredMargin(req.Size*req.ExpensivePrice, m.cfg.MaxLeverage, m.cfg.MarginBufferPct)

	if cheapAcct.AvailableMargin < cheapReq {
		m.logger.WarnContext(ctx, "risk: insufficient margin",
			slog.String("venue", req.Cheap.Name()),
			slog.Float64("available", cheapAcct.AvailableMargin),
			slog.Float64("required", cheapReq),
		)
		return Result{Reason: fmt.Sprintf("%s margin %.2f below required %.2f",
			req.Cheap.Name(), cheapAcct.AvailableMargin, cheapReq)}
	}
	if expAcct.AvailableMargin < expReq {
		m.logger.WarnContext(ctx, "risk: insufficient margin",
			slog.String("venue", req.Expensive.Name()),
			slog.Float64("available", expAcct.AvailableMargin),
			slog.Float64("required", expReq),
		)
		return Result{Reason: fmt.Sprintf("%s margin %.2f below required %.2f",
			req.Expensive.Name(), expAcct.AvailableMargin, expReq)}
	}
	return Result{Passed: true}
}

func (m *Manager) checkDepthAndGap(ctx context.Context, req CheckRequest) Result {
	var cheapBook, expBook domain.OrderBook

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cheapBook, err = req.Cheap.GetOrderBook(gctx, req.Symbol, m.cfg.BookDepth)
		if err != nil {
			return fmt.Errorf("%s book: %w", req.Cheap.Name(), err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		expBook, err = req.Expensive.GetOrderBook(gctx, req.Symbol, m.cfg.BookDepth)
		if err != nil {
			return fmt.Errorf("%s book: %w", req.Expensive.Name(), err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		m.logger.WarnContext(ctx, "risk: order book query failed, failing closed",
			slog.String("error", err.Error()),
		)
		return Result{Reason: fmt.Sprintf("order book query failed: %v", err)}
	}

	// The long leg lifts the cheap venue's asks, the short leg hits the
	// expensive venue's bids.
	cheapFill := basis.WalkDepth(cheapBook.Asks, req.Size)
	if cheapFill.Size < req.Size {
		return Result{Reason: fmt.Sprintf("%s depth %.6f below requested %.6f",
			req.Cheap.Name(), cheapFill.Size, req.Size)}
	}
	expFill := basis.WalkDepth(expBook.Bids, req.Size)
	if expFill.Size < req.Size {
		return Result{Reason: fmt.Sprintf("%s depth %.6f below requested %.6f",
			req.Expensive.Name(), expFill.Size, req.Size)}
	}

	cheapSlip := basis.SlippageBps(req.CheapPrice, cheapFill.AvgPrice, domain.OrderSideBuy)
	if cheapSlip > m.cfg.MaxSlippageBps {
		return Result{Reason: fmt.Sprintf("%s slippage %.1f bps exceeds max %.1f",
			req.Cheap.Name(), cheapSlip, m.cfg.MaxSlippageBps)}
	}
	expSlip := basis.SlippageBps(req.ExpensivePrice, expFill.AvgPrice, domain.OrderSideSell)
	if expSlip > m.cfg.MaxSlippageBps {
		return Result{Reason: fmt.Sprintf("%s slippage %.1f bps exceeds max %.1f",
			req.Expensive.Name(), expSlip, m.cfg.MaxSlippageBps)}
	}

	// The trade must still be profitable at depth-adjusted prices, not just
	// at quoted mids.
	execGap := basis.ExecutionGap(cheapFill.AvgPrice, expFill.AvgPrice)
	if execGap <= 0 {
		return Result{Reason: fmt.Sprintf("execution gap %.2f non-positive after depth", execGap)}
	}

	m.logger.DebugContext(ctx, "risk: pre-trade check passed",
		slog.Float64("cheap_vwap", cheapFill.AvgPrice),
		slog.Float64("expensive_vwap", expFill.AvgPrice),
		slog.Float64("execution_gap", execGap),
	)
	return Result{Passed: true}
}
