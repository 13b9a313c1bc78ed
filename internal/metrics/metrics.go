package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	OrdersPlaced        *prometheus.CounterVec
	LeverageRetries     prometheus.Counter
	BreakevenMoves      *prometheus.CounterVec
	StopRepairs         *prometheus.CounterVec
	OrphanCancels       prometheus.Counter
	LiquidationAlerts   prometheus.Counter
	TradesClosed        *prometheus.CounterVec
	MonitoredPositions  prometheus.Gauge
	StreamReconnects    *prometheus.CounterVec
	ReconcileDuration   prometheus.Histogram
	OrderStatusRequests prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersPlaced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_orders_placed_total",
				Help: "Orders sent to the exchange",
			},
			[]string{"type", "result"},
		),
		LeverageRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "engine_leverage_retries_total",
				Help: "Entry retries after a position value limit rejection",
			},
		),
		BreakevenMoves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_breakeven_moves_total",
				Help: "Stop moves to breakeven",
			},
			[]string{"result"},
		),
		StopRepairs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_stop_repairs_total",
				Help: "Protective stops recreated by reconciliation",
			},
			[]string{"result"},
		),
		OrphanCancels: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "engine_orphan_orders_cancelled_total",
				Help: "Open orders cancelled for lack of a position",
			},
		),
		LiquidationAlerts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "engine_liquidation_alerts_total",
				Help: "Stops found beyond the liquidation price",
			},
		),
		TradesClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_trades_closed_total",
				Help: "Trades marked closed",
			},
			[]string{"reason"},
		),
		MonitoredPositions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "engine_monitored_positions",
				Help: "Positions currently tracked by the reconciler",
			},
		),
		StreamReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_stream_reconnects_total",
				Help: "Price stream reconnect attempts",
			},
			[]string{"symbol"},
		),
		ReconcileDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "engine_reconcile_duration_seconds",
				Help:    "Duration of a position reconciliation cycle",
				Buckets: prometheus.DefBuckets,
			},
		),
		OrderStatusRequests: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "engine_order_status_requests_total",
				Help: "Order status polls issued by the trade processor",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.OrdersPlaced, m.LeverageRetries, m.BreakevenMoves, m.StopRepairs,
			m.OrphanCancels, m.LiquidationAlerts, m.TradesClosed, m.MonitoredPositions,
			m.StreamReconnects, m.ReconcileDuration, m.OrderStatusRequests,
		)
	}
	return m
}

// Result labels a success or failure.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
