package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"beacon/internal/audit"
	"beacon/internal/card"
	"beacon/internal/routing"
	"beacon/internal/signing"
	id "beacon/pkg/domain"
	dErrors "beacon/pkg/domain-errors"
	"beacon/pkg/platform/sentinel"
	"beacon/pkg/requestcontext"
)

// Service executes action callbacks. The flow is strict: resolve the record,
// verify the signature against the channel's secret, check the verb is
// offered at the record's priority, and only then mutate state. A callback
// that fails verification changes nothing.
type Service struct {
	records   *audit.Service
	resolver  routing.ChannelResolver
	renderer  *card.Renderer
	escalator Escalator
	jobQueue  JobQueue
	archiver  Archiver
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithEscalator wires the paging collaborator for the escalate verb.
func WithEscalator(e Escalator) Option {
	return func(s *Service) { s.escalator = e }
}

// WithJobQueue wires the re-enqueue collaborator for the retry verb.
func WithJobQueue(q JobQueue) Option {
	return func(s *Service) { s.jobQueue = q }
}

// WithArchiver wires the archive collaborator for the discard verb.
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

func NewService(records *audit.Service, resolver routing.ChannelResolver, renderer *card.Renderer, opts ...Option) *Service {
	s := &Service{
		records:  records,
		resolver: resolver,
		renderer: renderer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle processes one callback. rawBody is the exact bytes received and
// signature the value of the signature header; both are needed because the
// HMAC covers the wire bytes, not the decoded struct.
func (s *Service) Handle(ctx context.Context, req Request, rawBody []byte, signature string) (*Response, error) {
	if !req.Verb.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown action verb %q", req.Verb))
	}
	if req.CorrelationID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "correlation_id is required")
	}

	rec, err := s.resolveRecord(ctx, req)
	if err != nil {
		return nil, err
	}

	channel, err := s.channelFor(ctx, rec)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "channel configuration unavailable")
	}

	if !signing.Verify(channel.Secret, rawBody, signature) {
		s.logger.WarnContext(ctx, "action callback failed signature verification",
			"correlation_id", rec.CorrelationID,
			"channel", rec.Channel,
			"verb", req.Verb,
		)
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid callback signature")
	}

	if err := s.verbAllowed(req.Verb, rec); err != nil {
		return nil, err
	}

	switch req.Verb {
	case id.VerbAcknowledge:
		return s.acknowledge(ctx, req, rec)
	case id.VerbEscalate:
		return s.escalate(ctx, req, rec)
	case id.VerbRetry:
		return s.retry(ctx, req, rec)
	case id.VerbDiscard:
		return s.discard(ctx, req, rec)
	default:
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown action verb %q", req.Verb))
	}
}

// resolveRecord finds the audit record the callback refers to. When the
// platform echoes the channel the lookup is direct; otherwise the correlation
// id must map to exactly one channel.
func (s *Service) resolveRecord(ctx context.Context, req Request) (*audit.Record, error) {
	if req.Channel != "" {
		rec, err := s.records.Get(ctx, req.CorrelationID, req.Channel)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no delivery record for this callback")
		}
		return rec, err
	}

	records, err := s.records.ByCorrelation(ctx, req.CorrelationID)
	if err != nil {
		return nil, err
	}
	switch len(records) {
	case 0:
		return nil, dErrors.New(dErrors.CodeNotFound, "no delivery record for this callback")
	case 1:
		return records[0], nil
	default:
		return nil, dErrors.New(dErrors.CodeConflict, "correlation id maps to several channels; channel is required")
	}
}

// verbAllowed enforces the same tiers the renderer offers as buttons, plus
// the state rule that retry only applies to failed deliveries.
func (s *Service) verbAllowed(verb id.ActionVerb, rec *audit.Record) error {
	offered := false
	for _, v := range card.AllowedVerbs(rec.Priority) {
		if v == verb {
			offered = true
			break
		}
	}
	if !offered {
		return dErrors.New(dErrors.CodeConflict,
			fmt.Sprintf("verb %q is not offered at priority %s", verb, rec.Priority))
	}
	if verb == id.VerbRetry && rec.Status != audit.StatusFailed {
		return dErrors.New(dErrors.CodeConflict, "retry applies only to failed deliveries")
	}
	return nil
}

func (s *Service) acknowledge(ctx context.Context, req Request, rec *audit.Record) (*Response, error) {
	updated, won, err := s.records.Acknowledge(ctx, rec.CorrelationID, rec.Channel, req.Actor, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if won {
		if _, err := s.records.Action(ctx, rec.CorrelationID, rec.Channel, req.Verb.String(), req.Payload); err != nil {
			return nil, err
		}
	}
	return s.respond(req, updated, !won), nil
}

func (s *Service) escalate(ctx context.Context, req Request, rec *audit.Record) (*Response, error) {
	// Escalating implies the actor has seen the notification.
	updated, won, err := s.records.Acknowledge(ctx, rec.CorrelationID, rec.Channel, req.Actor, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	data := map[string]any{"escalated": true}
	for k, v := range req.Payload {
		data[k] = v
	}
	if s.escalator != nil {
		if err := s.escalator.Escalate(ctx, rec, req.Actor); err != nil {
			// Best effort: the action stands even if the pager is down.
			s.logger.ErrorContext(ctx, "escalation collaborator failed", "error", err,
				"correlation_id", rec.CorrelationID, "channel", rec.Channel)
			data["escalated"] = false
			data["escalation_error"] = err.Error()
		}
	}

	updated, err = s.records.Action(ctx, rec.CorrelationID, rec.Channel, req.Verb.String(), data)
	if err != nil {
		return nil, err
	}
	return s.respond(req, updated, !won), nil
}

func (s *Service) retry(ctx context.Context, req Request, rec *audit.Record) (*Response, error) {
	data := map[string]any{"requeued": false}
	if s.jobQueue != nil {
		if err := s.jobQueue.EnqueueRetry(ctx, rec, req.Actor); err != nil {
			s.logger.ErrorContext(ctx, "retry collaborator failed", "error", err,
				"correlation_id", rec.CorrelationID, "channel", rec.Channel)
			data["requeue_error"] = err.Error()
		} else {
			data["requeued"] = true
		}
	}

	updated, err := s.records.Action(ctx, rec.CorrelationID, rec.Channel, req.Verb.String(), data)
	if err != nil {
		return nil, err
	}
	return s.respond(req, updated, false), nil
}

func (s *Service) discard(ctx context.Context, req Request, rec *audit.Record) (*Response, error) {
	data := map[string]any{"archived": false}
	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, rec, req.Actor); err != nil {
			s.logger.ErrorContext(ctx, "archive collaborator failed", "error", err,
				"correlation_id", rec.CorrelationID, "channel", rec.Channel)
			data["archive_error"] = err.Error()
		} else {
			data["archived"] = true
		}
	}

	updated, err := s.records.Action(ctx, rec.CorrelationID, rec.Channel, req.Verb.String(), data)
	if err != nil {
		return nil, err
	}
	return s.respond(req, updated, false), nil
}

func (s *Service) respond(req Request, rec *audit.Record, alreadyActioned bool) *Response {
	ack := card.Acknowledgment{Action: rec.ActionTaken}
	if rec.AcknowledgedAt != nil {
		ack.By = rec.AcknowledgedBy
		ack.At = *rec.AcknowledgedAt
	}
	return &Response{
		CorrelationID:   rec.CorrelationID,
		Channel:         rec.Channel,
		Verb:            req.Verb,
		AlreadyActioned: alreadyActioned,
		Card:            s.renderer.Confirmation(req.Verb, req.Actor, ack, alreadyActioned),
	}
}

// channelFor resolves the channel configuration holding the inbound secret.
func (s *Service) channelFor(ctx context.Context, rec *audit.Record) (routing.Channel, error) {
	var lastErr error
	for _, group := range rec.Stakeholders {
		channels, err := s.resolver.Channels(ctx, group)
		if err != nil {
			lastErr = err
			continue
		}
		for _, ch := range channels {
			if ch.ID == rec.Channel {
				return ch, nil
			}
		}
	}
	if lastErr != nil {
		return routing.Channel{}, lastErr
	}
	return routing.Channel{}, sentinel.ErrNotFound
}
