package monitor

import "testing"

func TestMetricsLabels(t *testing.T) {
	m := NewMetrics()

	// Label cardinality must match the declared sets; a mismatch panics.
	m.UpdatesIngested.WithLabelValues("acct").Inc()
	m.UpdatesDropped.WithLabelValues("acct", "stale_or_duplicate").Inc()
	m.EventsPublished.WithLabelValues("acct", "orders").Inc()
	m.AdapterErrors.WithLabelValues("acct", "poll_orders").Inc()
	m.OrdersOpen.WithLabelValues("acct").Set(3)
	m.OutOfSync.WithLabelValues("acct").Set(1)
	m.Degraded.WithLabelValues("acct").Set(0)
	m.IngestDuration.Observe(0.001)
	m.APIRequests.WithLabelValues("GET", "200").Inc()
	m.APILatency.Observe(0.002)
}
