package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/basisbot/internal/domain"
)

// StatusProvider exposes a snapshot of the engine state. Implemented by the
// strategy engine.
type StatusProvider interface {
	Status() domain.EngineStatus
}

// StatusHandler serves the engine status endpoint.
type StatusHandler struct {
	engine StatusProvider
	mode   string
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(engine StatusProvider, mode string, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{engine: engine, mode: mode, logger: logger}
}

// statusResponse is the wire shape of the engine status.
type statusResponse struct {
	Mode          string        `json:"mode"`
	State         string        `json:"state"`
	Executing     bool          `json:"executing"`
	CurrentGapUSD float64       `json:"current_gap_usd"`
	LastTickAt    string        `json:"last_tick_at,omitempty"`
	Position      *positionView `json:"position,omitempty"`
	Stats         statsView     `json:"stats"`
}

type positionView struct {
	Symbol       string  `json:"symbol"`
	Size         float64 `json:"size"`
	LongVenue    string  `json:"long_venue"`
	ShortVenue   string  `json:"short_venue"`
	LongEntry    float64 `json:"long_entry_price"`
	ShortEntry   float64 `json:"short_entry_price"`
	EntryGapUSD  float64 `json:"entry_gap_usd"`
	EntryFeesUSD float64 `json:"entry_fees_usd"`
	OpenedAt     string  `json:"opened_at"`
	HoldSeconds  int64   `json:"hold_seconds"`
}

type statsView struct {
	Trades       int     `json:"trades"`
	Wins         int     `json:"wins"`
	NetPnLUSD    float64 `json:"net_pnl_usd"`
	TotalFeesUSD float64 `json:"total_fees_usd"`
	UptimeSec    int64   `json:"uptime_seconds"`
}

// GetStatus returns the current engine state, open position (if any) and
// session statistics.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not running")
		return
	}
	st := h.engine.Status()

	resp := statusResponse{
		Mode:          h.mode,
		State:         string(st.State),
		Executing:     st.Executing,
		CurrentGapUSD: st.CurrentGapUSD,
		Stats: statsView{
			Trades:       int(st.Stats.Trades),
			Wins:         int(st.Stats.Wins),
			NetPnLUSD:    st.Stats.NetPnLUSD,
			TotalFeesUSD: st.Stats.TotalFeesUSD,
			UptimeSec:    int64(time.Since(st.Stats.StartedAt).Seconds()),
		},
	}
	if !st.LastTickAt.IsZero() {
		resp.LastTickAt = st.LastTickAt.UTC().Format(time.RFC3339)
	}
	if p := st.Position; p != nil {
		resp.Position = &positionView{
			Symbol:       p.Symbol,
			Size:         p.Size,
			LongVenue:    p.CheapVenue,
			ShortVenue:   p.ExpensiveVenue,
			LongEntry:    p.CheapEntryPrice,
			ShortEntry:   p.ExpensiveEntryPrice,
			EntryGapUSD:  p.EntryGapUSD,
			EntryFeesUSD: p.EntryFeesUSD,
			OpenedAt:     p.OpenedAt.UTC().Format(time.RFC3339),
			HoldSeconds:  int64(time.Since(p.OpenedAt).Seconds()),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
