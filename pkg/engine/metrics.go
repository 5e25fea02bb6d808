package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus metrics.
type Metrics struct {
	OrdersPlaced   prometheus.Counter
	OrdersFilled   prometheus.Counter
	OrdersCanceled prometheus.Counter
	OrdersSold     prometheus.Counter
	BuyRejections  prometheus.Counter
	SellFailures   prometheus.Counter

	ActiveOrders prometheus.Gauge

	StreamReconnects   *prometheus.CounterVec // labels: channel
	ReconcilerRepairs  *prometheus.CounterVec // labels: kind
	ReconcilerFailures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hourtrade_orders_placed_total",
			Help: "Limit buy orders placed on the exchange.",
		}),
		OrdersFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hourtrade_orders_filled_total",
			Help: "Orders observed filled or partially filled.",
		}),
		OrdersCanceled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hourtrade_orders_canceled_total",
			Help: "Orders canceled by the fill timeout.",
		}),
		OrdersSold: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hourtrade_orders_sold_total",
			Help: "Positions liquidated at bar close.",
		}),
		BuyRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hourtrade_buy_rejections_total",
			Help: "Buy placements rejected by the exchange.",
		}),
		SellFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hourtrade_sell_failures_total",
			Help: "Sell attempts that failed and left the row retry-eligible.",
		}),
		ActiveOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hourtrade_active_orders",
			Help: "Ledger entries currently tracked.",
		}),
		StreamReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hourtrade_stream_reconnects_total",
			Help: "Websocket (re)connections per channel.",
		}, []string{"channel"}),
		ReconcilerRepairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hourtrade_reconciler_repairs_total",
			Help: "Ledger/store divergences repaired, by kind.",
		}, []string{"kind"}),
		ReconcilerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hourtrade_reconciler_failures_total",
			Help: "Reconcile passes that errored and were deferred to the next cycle.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.OrdersPlaced, m.OrdersFilled, m.OrdersCanceled, m.OrdersSold,
			m.BuyRejections, m.SellFailures, m.ActiveOrders,
			m.StreamReconnects, m.ReconcilerRepairs, m.ReconcilerFailures,
		)
	}
	return m
}
