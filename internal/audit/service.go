package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"beacon/internal/audit/metrics"
	id "beacon/pkg/domain"
	"beacon/pkg/platform/sentinel"
)

// Service fronts the audit store with logging and instrumentation. The
// dispatcher, the action callback service, and the query handlers all go
// through it so every state transition is logged once, in one place.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create inserts the delivery record for one (event, channel) unit. Safe to
// call repeatedly with the same unit; only the first call creates a row.
func (s *Service) Create(ctx context.Context, record *Record) (*Record, bool, error) {
	stored, created, err := s.store.CreateOrGet(ctx, record)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.metrics.RecordCreated()
		s.logger.InfoContext(ctx, "delivery record created",
			"correlation_id", stored.CorrelationID,
			"channel", stored.Channel,
			"event_type", stored.EventType,
			"priority", stored.Priority,
		)
	}
	return stored, created, nil
}

// Attempt records one delivery attempt outcome.
func (s *Service) Attempt(ctx context.Context, correlationID id.CorrelationID, channel id.ChannelID, attempt Attempt) (*Record, error) {
	record, err := s.store.RecordAttempt(ctx, correlationID, channel, attempt)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAttempt(string(record.Status))
	s.logger.InfoContext(ctx, "delivery attempt recorded",
		"correlation_id", correlationID,
		"channel", channel,
		"status", record.Status,
		"status_code", record.LastStatusCode,
		"retry_count", record.RetryCount,
	)
	return record, nil
}

// Acknowledge applies an acknowledgment; the first writer wins. The returned
// record reflects the winning acknowledgment either way, and the boolean
// reports whether this call was the winner.
func (s *Service) Acknowledge(ctx context.Context, correlationID id.CorrelationID, channel id.ChannelID, by string, at time.Time) (*Record, bool, error) {
	record, err := s.store.Acknowledge(ctx, correlationID, channel, by, at)
	if errors.Is(err, sentinel.ErrAlreadyUsed) {
		s.metrics.RecordDuplicateAcknowledgment()
		s.logger.InfoContext(ctx, "duplicate acknowledgment ignored",
			"correlation_id", correlationID,
			"channel", channel,
			"acknowledged_by", record.AcknowledgedBy,
		)
		return record, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	s.metrics.RecordAcknowledgment()
	s.logger.InfoContext(ctx, "delivery acknowledged",
		"correlation_id", correlationID,
		"channel", channel,
		"acknowledged_by", by,
	)
	return record, true, nil
}

// Action stores the verb an operator took and any collaborator result data.
func (s *Service) Action(ctx context.Context, correlationID id.CorrelationID, channel id.ChannelID, action string, data map[string]any) (*Record, error) {
	return s.store.RecordAction(ctx, correlationID, channel, action, data)
}

func (s *Service) Get(ctx context.Context, correlationID id.CorrelationID, channel id.ChannelID) (*Record, error) {
	return s.store.Get(ctx, correlationID, channel)
}

func (s *Service) ByCorrelation(ctx context.Context, correlationID id.CorrelationID) ([]*Record, error) {
	return s.store.ListByCorrelation(ctx, correlationID)
}

// Records answers the operator query surface: records of one event type
// within a time window.
func (s *Service) Records(ctx context.Context, q Query) ([]*Record, error) {
	return s.store.ListByTypeWindow(ctx, q)
}

// Escalations lists unacknowledged records at or above the given priority.
func (s *Service) Escalations(ctx context.Context, minPriority id.Priority) ([]*Record, error) {
	return s.store.ListUnacknowledged(ctx, minPriority)
}

// Failures lists records whose delivery exhausted all retries.
func (s *Service) Failures(ctx context.Context) ([]*Record, error) {
	return s.store.ListFailed(ctx)
}

// NonTerminal lists records still in flight, for startup recovery.
func (s *Service) NonTerminal(ctx context.Context) ([]*Record, error) {
	return s.store.ListNonTerminal(ctx)
}
