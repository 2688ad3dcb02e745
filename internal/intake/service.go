// Package intake accepts events, fans them out to channels, and hands the
// resulting delivery units to the dispatcher. Acceptance is immediate: the
// caller gets an ack as soon as the units are durable and queued, and
// delivery progress is observable only through the audit trail.
package intake

import (
	"context"
	"log/slog"

	"beacon/internal/audit"
	"beacon/internal/card"
	"beacon/internal/dispatch"
	"beacon/internal/event"
	"beacon/internal/intake/metrics"
	"beacon/internal/routing"
	id "beacon/pkg/domain"
	dErrors "beacon/pkg/domain-errors"
	"beacon/pkg/requestcontext"
)

// Enqueuer is the dispatcher surface intake needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, task dispatch.Task) error
}

// Result is the immediate acceptance ack.
type Result struct {
	CorrelationID    id.CorrelationID
	ChannelsResolved int
}

type Service struct {
	router     *routing.Router
	renderer   *card.Renderer
	records    *audit.Service
	dispatcher Enqueuer
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(router *routing.Router, renderer *card.Renderer, records *audit.Service, dispatcher Enqueuer, opts ...Option) *Service {
	s := &Service{
		router:     router,
		renderer:   renderer,
		records:    records,
		dispatcher: dispatcher,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the event, renders its card once, creates one durable
// delivery record per resolved channel, and queues each unit. Submission is
// at-least-once safe: a duplicate correlation id finds its records already
// created and re-queues units the dispatcher will skip if terminal.
func (s *Service) Submit(ctx context.Context, e event.Event, source string) (*Result, error) {
	e = e.WithDefaults(requestcontext.Now(ctx))
	if err := e.Validate(); err != nil {
		s.metrics.RecordRejected()
		return nil, err
	}

	units := s.router.Route(ctx, e)

	payload, err := s.renderer.Render(e).Encode()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "render notification card")
	}

	for _, unit := range units {
		_, _, err := s.records.Create(ctx, &audit.Record{
			CorrelationID: e.CorrelationID,
			EventType:     e.Type,
			Priority:      e.Priority,
			Stakeholders:  e.Stakeholders,
			Channel:       unit.Channel.ID,
			Payload:       payload,
		})
		if err != nil {
			return nil, err
		}
		if err := s.dispatcher.Enqueue(ctx, dispatch.Task{
			CorrelationID: e.CorrelationID,
			Channel:       unit.Channel.ID,
		}); err != nil {
			return nil, err
		}
	}

	s.metrics.RecordAccepted(source)
	s.logger.InfoContext(ctx, "event accepted",
		"correlation_id", e.CorrelationID,
		"event_type", e.Type,
		"priority", e.Priority,
		"channels_resolved", len(units),
		"source", source,
	)

	return &Result{CorrelationID: e.CorrelationID, ChannelsResolved: len(units)}, nil
}
