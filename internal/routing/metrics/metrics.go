package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	UnresolvedGroups prometheus.Counter
	EventsRouted     prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		UnresolvedGroups: promauto.NewCounter(prometheus.CounterOpts{
			Name: "beacon_routing_unresolved_groups_total",
			Help: "Total number of stakeholder groups that had no resolvable channel",
		}),
		EventsRouted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "beacon_routing_events_routed_total",
			Help: "Total number of events fanned out to at least one channel",
		}),
	}
}

func (m *Metrics) IncrementUnresolvedGroups() {
	m.UnresolvedGroups.Inc()
}

func (m *Metrics) IncrementEventsRouted() {
	m.EventsRouted.Inc()
}
