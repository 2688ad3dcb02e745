// Package metrics exposes Prometheus instrumentation for event intake.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	accepted *prometheus.CounterVec
	rejected prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		accepted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_intake_events_accepted_total",
			Help: "Events accepted at intake, by source.",
		}, []string{"source"}),
		rejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "beacon_intake_events_rejected_total",
			Help: "Events rejected at intake validation.",
		}),
	}
}

func (m *Metrics) RecordAccepted(source string) {
	if m == nil {
		return
	}
	m.accepted.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}
