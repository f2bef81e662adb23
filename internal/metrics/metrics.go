// Package metrics exposes Prometheus metrics for the live loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksEvaluated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rebalancer_ticks_evaluated_total",
			Help: "Tick evaluations performed",
		},
	)

	Triggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rebalancer_triggers_total",
			Help: "Fired triggers by direction",
		},
		[]string{"direction"},
	)

	GuardrailBlocks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rebalancer_guardrail_blocks_total",
			Help: "Trades blocked or skipped by guardrails and sizing rules",
		},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rebalancer_orders_total",
			Help: "Orders submitted by side",
		},
		[]string{"side"},
	)

	Fills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rebalancer_fills_total",
			Help: "Fills applied by side",
		},
		[]string{"side"},
	)

	PositionValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rebalancer_position_value",
			Help: "Total position value (cash plus stock) at last evaluation",
		},
		[]string{"position"},
	)

	StockAllocation = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rebalancer_stock_allocation",
			Help: "Stock fraction of total value at last evaluation",
		},
		[]string{"position"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksEvaluated,
		Triggers,
		GuardrailBlocks,
		Orders,
		Fills,
		PositionValue,
		StockAllocation,
	)
}

// Serve starts the /metrics endpoint on addr. Blocks; run in a goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
