// Package event defines the operational event accepted at intake. Events are
// immutable once created; producers own the semantics of Type and Data, the
// engine validates only priority and stakeholder well-formedness.
package event

import (
	"time"

	id "beacon/pkg/domain"
	dErrors "beacon/pkg/domain-errors"
)

// Event is an internal operational occurrence (security incident, job failure,
// claim transition, infrastructure alert) to be delivered to stakeholders.
type Event struct {
	CorrelationID id.CorrelationID       `json:"correlation_id"`
	Type          id.EventType           `json:"type"`
	Priority      id.Priority            `json:"priority"`
	Stakeholders  []id.StakeholderGroup  `json:"stakeholders"`
	Data          map[string]any         `json:"data,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// Validate checks intake well-formedness. Type and Data contents are the
// producer's responsibility.
func (e Event) Validate() error {
	if e.CorrelationID.IsEmpty() {
		return dErrors.New(dErrors.CodeBadRequest, "correlation_id is required")
	}
	if e.Type == "" {
		return dErrors.New(dErrors.CodeBadRequest, "type is required")
	}
	if !e.Priority.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "unknown priority")
	}
	if len(e.Stakeholders) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "at least one stakeholder group is required")
	}
	for _, g := range e.Stakeholders {
		if g == "" {
			return dErrors.New(dErrors.CodeBadRequest, "stakeholder group must not be empty")
		}
	}
	return nil
}

// WithDefaults returns a copy with CreatedAt stamped when the producer left it
// zero. Events are otherwise never mutated after intake.
func (e Event) WithDefaults(now time.Time) Event {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return e
}

// StringField reads a string value from Data, returning fallback when the key
// is absent or not a string. Card templates rely on this to degrade gracefully
// instead of failing a notification over a missing optional field.
func (e Event) StringField(key, fallback string) string {
	if e.Data == nil {
		return fallback
	}
	v, ok := e.Data[key]
	if !ok {
		return fallback
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return fallback
	}
	return s
}
