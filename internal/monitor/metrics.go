// Package monitor exposes Prometheus metrics for the trading core.
package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the core.
type Metrics struct {
	UpdatesIngested *prometheus.CounterVec // labels: account
	UpdatesDropped  *prometheus.CounterVec // labels: account, reason
	EventsPublished *prometheus.CounterVec // labels: account, category
	AdapterErrors   *prometheus.CounterVec // labels: account, op
	OrdersOpen      *prometheus.GaugeVec   // labels: account
	OutOfSync       *prometheus.GaugeVec   // labels: account
	Degraded        *prometheus.GaugeVec   // labels: account
	IngestDuration  prometheus.Histogram

	APIRequests *prometheus.CounterVec // labels: method, status
	APILatency  prometheus.Histogram
}

// NewMetrics registers and returns all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		UpdatesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_order_updates_ingested_total",
			Help: "Order updates accepted by the orders manager",
		}, []string{"account"}),
		UpdatesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_order_updates_dropped_total",
			Help: "Order updates dropped (stale, duplicate or unattributable)",
		}, []string{"account", "reason"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_events_published_total",
			Help: "Events published on core channels",
		}, []string{"account", "category"}),
		AdapterErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_adapter_errors_total",
			Help: "Errors returned by venue adapters",
		}, []string{"account", "op"}),
		OrdersOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trading_orders_open",
			Help: "Currently open orders per account",
		}, []string{"account"}),
		OutOfSync: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trading_portfolio_out_of_sync",
			Help: "1 when the account portfolio diverged from the venue",
		}, []string{"account"}),
		Degraded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trading_adapter_degraded",
			Help: "1 when the venue adapter is unreachable and retrying",
		}, []string{"account"}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trading_ingest_duration_seconds",
			Help:    "Time spent reconciling one order update",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_api_requests_total",
			Help: "HTTP API requests served",
		}, []string{"method", "status"}),
		APILatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trading_api_request_duration_seconds",
			Help:    "HTTP API request handling time",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
	}

	prometheus.MustRegister(
		m.UpdatesIngested,
		m.UpdatesDropped,
		m.EventsPublished,
		m.AdapterErrors,
		m.OrdersOpen,
		m.OutOfSync,
		m.Degraded,
		m.IngestDuration,
		m.APIRequests,
		m.APILatency,
	)
	return m
}
