// Package memory implements audit.Store with an in-process map. It is the
// default for tests and local development; production uses the postgres store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"beacon/internal/audit"
	id "beacon/pkg/domain"
	"beacon/pkg/platform/sentinel"
)

type Store struct {
	mu      sync.RWMutex
	records map[string]*audit.Record
}

func New() *Store {
	return &Store{records: make(map[string]*audit.Record)}
}

func key(correlationID id.CorrelationID, channel id.ChannelID) string {
	return correlationID.String() + "\x00" + channel.String()
}

func (s *Store) CreateOrGet(_ context.Context, record *audit.Record) (*audit.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(record.CorrelationID, record.Channel)
	if existing, ok := s.records[k]; ok {
		return copyRecord(existing), false, nil
	}

	stored := copyRecord(record)
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.Status == "" {
		stored.Status = audit.StatusPending
	}
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	s.records[k] = stored
	return copyRecord(stored), true, nil
}

func (s *Store) RecordAttempt(_ context.Context, correlationID id.CorrelationID, channel id.ChannelID, attempt audit.Attempt) (*audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key(correlationID, channel)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if rec.Status.Terminal() {
		// Late writer after a terminal state: keep the terminal outcome.
		return copyRecord(rec), nil
	}

	if attempt.PayloadHash != "" {
		rec.PayloadHash = attempt.PayloadHash
	}
	rec.SentAt = attempt.SentAt
	rec.LastStatusCode = attempt.StatusCode
	rec.ErrorMessage = attempt.Err
	if attempt.RetryCount > rec.RetryCount {
		rec.RetryCount = attempt.RetryCount
	}
	rec.Status = attempt.Status
	rec.UpdatedAt = time.Now()

	return copyRecord(rec), nil
}

func (s *Store) Acknowledge(_ context.Context, correlationID id.CorrelationID, channel id.ChannelID, by string, at time.Time) (*audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key(correlationID, channel)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if rec.AcknowledgedAt != nil {
		return copyRecord(rec), sentinel.ErrAlreadyUsed
	}

	ackAt := at
	rec.AcknowledgedBy = by
	rec.AcknowledgedAt = &ackAt
	rec.UpdatedAt = time.Now()

	return copyRecord(rec), nil
}

func (s *Store) RecordAction(_ context.Context, correlationID id.CorrelationID, channel id.ChannelID, action string, data map[string]any) (*audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key(correlationID, channel)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	rec.ActionTaken = action
	rec.ActionData = copyData(data)
	rec.UpdatedAt = time.Now()

	return copyRecord(rec), nil
}

func (s *Store) Get(_ context.Context, correlationID id.CorrelationID, channel id.ChannelID) (*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key(correlationID, channel)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *Store) ListByCorrelation(_ context.Context, correlationID id.CorrelationID) ([]*audit.Record, error) {
	return s.list(func(r *audit.Record) bool {
		return r.CorrelationID == correlationID
	}), nil
}

func (s *Store) ListByTypeWindow(_ context.Context, q audit.Query) ([]*audit.Record, error) {
	return s.list(func(r *audit.Record) bool {
		if q.EventType != "" && r.EventType != q.EventType {
			return false
		}
		if !q.From.IsZero() && r.CreatedAt.Before(q.From) {
			return false
		}
		if !q.To.IsZero() && r.CreatedAt.After(q.To) {
			return false
		}
		return true
	}), nil
}

func (s *Store) ListUnacknowledged(_ context.Context, minPriority id.Priority) ([]*audit.Record, error) {
	return s.list(func(r *audit.Record) bool {
		return r.AcknowledgedAt == nil && r.Priority.AtLeast(minPriority)
	}), nil
}

func (s *Store) ListFailed(_ context.Context) ([]*audit.Record, error) {
	return s.list(func(r *audit.Record) bool {
		return r.Status == audit.StatusFailed
	}), nil
}

func (s *Store) ListNonTerminal(_ context.Context) ([]*audit.Record, error) {
	return s.list(func(r *audit.Record) bool {
		return !r.Status.Terminal()
	}), nil
}

func (s *Store) list(match func(*audit.Record) bool) []*audit.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*audit.Record
	for _, rec := range s.records {
		if match(rec) {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return key(out[i].CorrelationID, out[i].Channel) < key(out[j].CorrelationID, out[j].Channel)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func copyRecord(r *audit.Record) *audit.Record {
	dup := *r
	dup.Stakeholders = append([]id.StakeholderGroup(nil), r.Stakeholders...)
	dup.Payload = append([]byte(nil), r.Payload...)
	dup.ActionData = copyData(r.ActionData)
	if r.AcknowledgedAt != nil {
		at := *r.AcknowledgedAt
		dup.AcknowledgedAt = &at
	}
	return &dup
}

func copyData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	dup := make(map[string]any, len(data))
	for k, v := range data {
		dup[k] = v
	}
	return dup
}
