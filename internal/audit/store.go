package audit

import (
	"context"
	"time"

	id "beacon/pkg/domain"
)

// Query selects records by event type within a time window.
type Query struct {
	EventType id.EventType
	From      time.Time
	To        time.Time
}

// Store persists audit records. Implementations must apply every write as a
// single atomic row operation keyed by (correlation_id, channel) so a
// concurrent retry-write and acknowledgment-write never lose updates.
//
// Sentinel contract: lookups return sentinel.ErrNotFound for missing rows;
// Acknowledge returns sentinel.ErrAlreadyUsed (with the existing record) when
// the row was already acknowledged.
type Store interface {
	// CreateOrGet inserts the record unless a row for its
	// (correlation_id, channel) already exists, making event intake safe
	// under at-least-once submission. Returns the stored row and whether
	// this call created it.
	CreateOrGet(ctx context.Context, record *Record) (*Record, bool, error)

	// RecordAttempt applies one delivery attempt outcome. retry_count never
	// decreases; a terminal row is not resurrected by a late writer.
	RecordAttempt(ctx context.Context, correlationID id.CorrelationID, channel id.ChannelID, attempt Attempt) (*Record, error)

	// Acknowledge sets the acknowledgment fields if and only if the row has
	// not been acknowledged yet (first writer wins).
	Acknowledge(ctx context.Context, correlationID id.CorrelationID, channel id.ChannelID, by string, at time.Time) (*Record, error)

	// RecordAction stores the taken action verb and its data. Does not touch
	// acknowledgment fields.
	RecordAction(ctx context.Context, correlationID id.CorrelationID, channel id.ChannelID, action string, data map[string]any) (*Record, error)

	Get(ctx context.Context, correlationID id.CorrelationID, channel id.ChannelID) (*Record, error)

	// ListByCorrelation returns every channel row for one correlation id.
	ListByCorrelation(ctx context.Context, correlationID id.CorrelationID) ([]*Record, error)

	ListByTypeWindow(ctx context.Context, q Query) ([]*Record, error)

	// ListUnacknowledged returns unacknowledged records at or above the given
	// priority: the escalation view.
	ListUnacknowledged(ctx context.Context, minPriority id.Priority) ([]*Record, error)

	// ListFailed returns records whose delivery ended in failure.
	ListFailed(ctx context.Context) ([]*Record, error)

	// ListNonTerminal returns records still pending, sending, or retrying.
	// Used at startup to resume deliveries interrupted by a crash.
	ListNonTerminal(ctx context.Context) ([]*Record, error)
}
