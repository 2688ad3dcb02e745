package routing

import (
	"context"
	"log/slog"

	"beacon/internal/event"
	"beacon/internal/routing/metrics"
)

// Unit is one independently delivered (event, channel) pair. Fan-out produces
// one Unit per resolved channel so per-channel success and failure never
// influence each other.
type Unit struct {
	Event   event.Event
	Channel Channel
}

// Router resolves an event's stakeholder set into dispatch units.
type Router struct {
	resolver ChannelResolver
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Router)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

func New(resolver ChannelResolver, opts ...Option) *Router {
	r := &Router{
		resolver: resolver,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route fans the event out to every resolvable channel. A stakeholder group
// that cannot be resolved is a configuration problem: it is logged as a
// warning and counted, and delivery proceeds to the remaining channels.
// Duplicate channels (two groups sharing a destination) collapse to one unit.
func (r *Router) Route(ctx context.Context, e event.Event) []Unit {
	var units []Unit
	seen := make(map[string]bool)

	for _, group := range e.Stakeholders {
		channels, err := r.resolver.Channels(ctx, group)
		if err != nil {
			r.logger.WarnContext(ctx, "stakeholder group has no resolvable channel",
				"correlation_id", e.CorrelationID,
				"group", group,
				"error", err,
			)
			if r.metrics != nil {
				r.metrics.IncrementUnresolvedGroups()
			}
			continue
		}
		for _, ch := range channels {
			if seen[ch.ID.String()] {
				continue
			}
			seen[ch.ID.String()] = true
			units = append(units, Unit{Event: e, Channel: ch})
		}
	}
	return units
}
