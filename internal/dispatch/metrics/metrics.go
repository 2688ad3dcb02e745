// Package metrics exposes Prometheus instrumentation for the dispatcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	delivered       prometheus.Counter
	failed          prometheus.Counter
	retries         prometheus.Counter
	rateLimited     prometheus.Counter
	attemptDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		delivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "beacon_dispatch_delivered_total",
			Help: "Deliveries that reached the channel webhook.",
		}),
		failed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "beacon_dispatch_failed_total",
			Help: "Deliveries abandoned after a permanent failure or retry exhaustion.",
		}),
		retries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "beacon_dispatch_retries_total",
			Help: "Delivery attempts scheduled for retry.",
		}),
		rateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "beacon_dispatch_throttled_total",
			Help: "Attempts answered 429 by the channel webhook.",
		}),
		attemptDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "beacon_dispatch_attempt_duration_seconds",
			Help:    "Wall clock duration of one webhook delivery attempt.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) RecordDelivered() {
	if m == nil {
		return
	}
	m.delivered.Inc()
}

func (m *Metrics) RecordFailed() {
	if m == nil {
		return
	}
	m.failed.Inc()
}

func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) RecordThrottled() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) ObserveAttemptDuration(seconds float64) {
	if m == nil {
		return
	}
	m.attemptDuration.Observe(seconds)
}
