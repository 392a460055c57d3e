package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/basisbot/internal/domain"
)

// TradeLister is the read side of the trade service used by the API.
type TradeLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.CompletedTrade, error)
	TotalNetPnL(ctx context.Context) (float64, error)
}

// TradeHandler serves completed-trade endpoints.
type TradeHandler struct {
	trades TradeLister
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades TradeLister, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, logger: logger}
}

// tradeView is the wire shape of a completed trade.
type tradeView struct {
	ID             string  `json:"id"`
	Symbol         string  `json:"symbol"`
	CheapVenue     string  `json:"cheap_venue"`
	ExpensiveVenue string  `json:"expensive_venue"`
	Size           float64 `json:"size"`
	EntryGapUSD    float64 `json:"entry_gap_usd"`
	ExitGapUSD     float64 `json:"exit_gap_usd"`
	GrossPnLUSD    float64 `json:"gross_pnl_usd"`
	NetPnLUSD      float64 `json:"net_pnl_usd"`
	FeesUSD        float64 `json:"fees_usd"`
	HoldSeconds    int64   `json:"hold_seconds"`
	OpenedAt       string  `json:"opened_at"`
	ClosedAt       string  `json:"closed_at"`
}

// ListTrades returns the most recently closed trades.
// GET /api/trades?limit=N
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	trades, err := h.trades.ListRecent(r.Context(), opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list trades failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	views := make([]tradeView, 0, len(trades))
	for _, t := range trades {
		views = append(views, tradeView{
			ID:             t.ID,
			Symbol:         t.Symbol,
			CheapVenue:     t.CheapVenue,
			ExpensiveVenue: t.ExpensiveVenue,
			Size:           t.Size,
			EntryGapUSD:    t.EntryGapUSD,
			ExitGapUSD:     t.ExitGapUSD,
			GrossPnLUSD:    t.GrossPnLUSD,
			NetPnLUSD:      t.NetPnLUSD,
			FeesUSD:        t.EntryFeesUSD + t.ExitFeesUSD,
			HoldSeconds:    t.HoldSeconds,
			OpenedAt:       t.OpenedAt.UTC().Format(time.RFC3339),
			ClosedAt:       t.ClosedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"trades": views,
		"count":  len(views),
	})
}

// GetPnL returns the all-time net P&L across recorded trades.
// GET /api/trades/pnl
func (h *TradeHandler) GetPnL(w http.ResponseWriter, r *http.Request) {
	total, err := h.trades.TotalNetPnL(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "sum pnl failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to compute pnl")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"net_pnl_usd": total})
}
