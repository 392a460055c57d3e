// Package metrics exposes Prometheus instrumentation for the trading engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/basisbot/internal/domain"
)

// Metrics holds all engine collectors, registered on a private registry so
// tests can create instances freely.
type Metrics struct {
	registry *prometheus.Registry

	ticks       prometheus.Counter
	gapUSD      prometheus.Gauge
	engineOpen  prometheus.Gauge
	trades      prometheus.Counter
	wins        prometheus.Counter
	netPnLUSD   prometheus.Gauge
	feesUSD     prometheus.Counter
	entrySkips  *prometheus.CounterVec
	holdSeconds prometheus.Histogram
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "basisbot_ticks_total",
			Help: "Strategy ticks evaluated.",
		}),
		gapUSD: factory.NewGauge(prometheus.GaugeOpts{
			Name: "basisbot_gap_usd",
			Help: "Latest observed cross-venue mid gap in USD.",
		}),
		engineOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "basisbot_engine_open",
			Help: "1 when a hedge position is open, 0 when flat.",
		}),
		trades: factory.NewCounter(prometheus.CounterOpts{
			Name: "basisbot_trades_total",
			Help: "Completed round-trip trades.",
		}),
		wins: factory.NewCounter(prometheus.CounterOpts{
			Name: "basisbot_trade_wins_total",
			Help: "Completed trades with positive net P&L.",
		}),
		netPnLUSD: factory.NewGauge(prometheus.GaugeOpts{
			Name: "basisbot_net_pnl_usd",
			Help: "Cumulative net P&L in USD since start.",
		}),
		feesUSD: factory.NewCounter(prometheus.CounterOpts{
			Name: "basisbot_fees_usd_total",
			Help: "Cumulative fees paid in USD.",
		}),
		entrySkips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "basisbot_entry_skips_total",
			Help: "Entry evaluations skipped, by reason.",
		}, []string{"reason"}),
		holdSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "basisbot_hold_seconds",
			Help:    "Hold duration of completed trades.",
			Buckets: prometheus.ExponentialBuckets(30, 2, 12),
		}),
	}
}

// ObserveTick records one strategy evaluation and the gap it saw.
func (m *Metrics) ObserveTick(gapUSD float64) {
	m.ticks.Inc()
	m.gapUSD.Set(gapUSD)
}

// ObserveState records the engine lifecycle state.
func (m *Metrics) ObserveState(st domain.EngineState) {
	if st == domain.EngineStateOpen {
		m.engineOpen.Set(1)
	} else {
		m.engineOpen.Set(0)
	}
}

// ObserveTrade records a completed round trip.
func (m *Metrics) ObserveTrade(trade domain.CompletedTrade) {
	m.trades.Inc()
	if trade.NetPnLUSD > 0 {
		m.wins.Inc()
	}
	m.netPnLUSD.Add(trade.NetPnLUSD)
	m.feesUSD.Add(trade.EntryFeesUSD + trade.ExitFeesUSD)
	m.holdSeconds.Observe(float64(trade.HoldSeconds))
}

// ObserveEntrySkipped records a skipped entry evaluation.
func (m *Metrics) ObserveEntrySkipped(reason string) {
	m.entrySkips.WithLabelValues(reason).Inc()
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
