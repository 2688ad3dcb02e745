// Package audit owns the durable record of every delivery and every follow-up
// action. One logical row exists per (correlation_id, channel); retries and
// acknowledgments update that row in place. The engine never deletes records;
// retention is an external policy.
package audit

import (
	"time"

	"github.com/google/uuid"

	id "beacon/pkg/domain"
)

// Status is the delivery state machine position of one (event, channel) unit.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSending   Status = "sending"
	StatusRetrying  Status = "retrying"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the unit has finished delivery.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// Record is the durable, queryable audit row for one delivery. Created once
// at first dispatch attempt, updated in place by retries and action callbacks.
type Record struct {
	ID            uuid.UUID
	CorrelationID id.CorrelationID
	EventType     id.EventType
	Priority      id.Priority
	Stakeholders  []id.StakeholderGroup
	Channel       id.ChannelID

	// Payload is the final rendered card; PayloadHash references the exact
	// bytes sent so retries don't duplicate the body.
	Payload     []byte
	PayloadHash string

	Status         Status
	SentAt         time.Time
	LastStatusCode int
	RetryCount     int
	ErrorMessage   string

	// Acknowledgment fields. AcknowledgedAt is set at most once; the first
	// acknowledgment wins and later ones are no-ops.
	AcknowledgedBy string
	AcknowledgedAt *time.Time
	ActionTaken    string
	ActionData     map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Acknowledged reports whether the record has been acknowledged.
func (r *Record) Acknowledged() bool {
	return r.AcknowledgedAt != nil
}

// Attempt captures the outcome of one delivery attempt, applied to the record
// atomically by the store.
type Attempt struct {
	PayloadHash string
	SentAt      time.Time
	StatusCode  int
	RetryCount  int
	Err         string
	Status      Status
}
