// Package metrics exposes Prometheus instrumentation for the audit trail.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	recordsCreated  prometheus.Counter
	attemptsByState *prometheus.CounterVec
	acknowledgments prometheus.Counter
	duplicateAcks   prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		recordsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "beacon_audit_records_created_total",
			Help: "Delivery records created by event intake.",
		}),
		attemptsByState: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_audit_attempts_total",
			Help: "Delivery attempt outcomes recorded, by resulting status.",
		}, []string{"status"}),
		acknowledgments: promauto.NewCounter(prometheus.CounterOpts{
			Name: "beacon_audit_acknowledgments_total",
			Help: "Acknowledgments applied to delivery records.",
		}),
		duplicateAcks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "beacon_audit_duplicate_acknowledgments_total",
			Help: "Acknowledgment callbacks rejected because the record was already acknowledged.",
		}),
	}
}

func (m *Metrics) RecordCreated() {
	if m == nil {
		return
	}
	m.recordsCreated.Inc()
}

func (m *Metrics) RecordAttempt(status string) {
	if m == nil {
		return
	}
	m.attemptsByState.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordAcknowledgment() {
	if m == nil {
		return
	}
	m.acknowledgments.Inc()
}

func (m *Metrics) RecordDuplicateAcknowledgment() {
	if m == nil {
		return
	}
	m.duplicateAcks.Inc()
}
