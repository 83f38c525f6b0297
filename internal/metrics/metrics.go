// Package metrics exposes the bot's Prometheus instrumentation:
//   - bot_orders_total{type,side}          – orders placed at the broker
//   - bot_signals_total{signal}            – decision engine outcomes
//   - bot_stop_moves_total                 – trailing stop replacements
//   - bot_failsafe_total                   – emergency market liquidations
//   - bot_exits_total{reason}              – position closes by reason
//   - bot_cycles_skipped_total{reason}     – gated/skipped bar cycles
//   - bot_daily_pnl_eur                    – realized PnL for the day (gauge)
//
// Serve registers everything and exposes /metrics in the Prometheus
// text format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_orders_total",
			Help: "Orders placed",
		},
		[]string{"type", "side"},
	)

	Signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_signals_total",
			Help: "Decision engine signals",
		},
		[]string{"signal"},
	)

	StopMoves = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_stop_moves_total",
			Help: "Trailing stop cancel-and-replace operations",
		},
	)

	Failsafes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_failsafe_total",
			Help: "Failsafe market liquidations",
		},
	)

	Exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_exits_total",
			Help: "Position exits by reason",
		},
		[]string{"reason"},
	)

	CyclesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_cycles_skipped_total",
			Help: "Bar cycles skipped by gate",
		},
		[]string{"reason"},
	)

	DailyPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_daily_pnl_eur",
			Help: "Realized PnL for the current trading day",
		},
	)
)

func init() {
	prometheus.MustRegister(
		Orders,
		Signals,
		StopMoves,
		Failsafes,
		Exits,
		CyclesSkipped,
		DailyPnL,
	)
}

// Serve starts the metrics endpoint on addr. Blocks; run in a goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
