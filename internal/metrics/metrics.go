package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradebot_cycles_total",
			Help: "Total trading cycles completed (by market).",
		},
		[]string{"market"},
	)

	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradebot_orders_submitted_total",
			Help: "Total market orders filled (by market and side).",
		},
		[]string{"market", "side"},
	)

	RegimeSwitches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradebot_regime_switches_total",
			Help: "Regime lock switches (by market and new regime).",
		},
		[]string{"market", "regime"},
	)

	PositionsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradebot_positions_open",
			Help: "Current number of open positions per market.",
		},
		[]string{"market"},
	)

	EquityGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradebot_equity",
			Help: "Last computed account equity per market.",
		},
		[]string{"market"},
	)

	LayersPaused = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradebot_layers_paused",
			Help: "Number of paused portfolio layers per market.",
		},
		[]string{"market"},
	)
)

func init() {
	prometheus.MustRegister(
		CyclesTotal,
		OrdersSubmitted,
		RegimeSwitches,
		PositionsOpen,
		EquityGauge,
		LayersPaused,
	)
}

// Serve exposes /metrics on addr. Runs until the process exits.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
