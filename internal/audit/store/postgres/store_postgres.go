// Package postgres implements audit.Store on PostgreSQL. Every write is a
// single-row statement keyed by (correlation_id, channel) so concurrent
// dispatcher and callback writers never lose updates.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"beacon/internal/audit"
	id "beacon/pkg/domain"
	"beacon/pkg/platform/sentinel"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const recordColumns = `
	id, correlation_id, event_type, priority, stakeholders, channel,
	payload, payload_hash, status, sent_at, last_status_code, retry_count,
	error_message, acknowledged_by, acknowledged_at, action_taken, action_data,
	created_at, updated_at`

func (s *Store) CreateOrGet(ctx context.Context, record *audit.Record) (*audit.Record, bool, error) {
	stakeholders, err := json.Marshal(record.Stakeholders)
	if err != nil {
		return nil, false, fmt.Errorf("marshal stakeholders: %w", err)
	}

	recordID := record.ID
	if recordID == uuid.Nil {
		recordID = uuid.New()
	}
	status := record.Status
	if status == "" {
		status = audit.StatusPending
	}

	query := `
		INSERT INTO delivery_records (
			id, correlation_id, event_type, priority, stakeholders, channel,
			payload, payload_hash, status, retry_count, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, NOW(), NOW())
		ON CONFLICT (correlation_id, channel) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		recordID,
		record.CorrelationID.String(),
		record.EventType.String(),
		record.Priority.String(),
		stakeholders,
		record.Channel.String(),
		record.Payload,
		record.PayloadHash,
		string(status),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert delivery record: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert delivery record: rows affected: %w", err)
	}

	stored, err := s.Get(ctx, record.CorrelationID, record.Channel)
	if err != nil {
		return nil, false, err
	}
	return stored, inserted == 1, nil
}

func (s *Store) RecordAttempt(ctx context.Context, correlationID id.CorrelationID, channel id.ChannelID, attempt audit.Attempt) (*audit.Record, error) {
	// Terminal rows are excluded from the WHERE clause so a late writer
	// cannot resurrect a finished delivery.
	query := `
		UPDATE delivery_records
		SET payload_hash    = CASE WHEN $3 <> '' THEN $3 ELSE payload_hash END,
		    sent_at         = $4,
		    last_status_code = $5,
		    retry_count     = GREATEST(retry_count, $6),
		    error_message   = $7,
		    status          = $8,
		    updated_at      = NOW()
		WHERE correlation_id = $1 AND channel = $2
		  AND status NOT IN ('delivered', 'failed')
		RETURNING` + recordColumns

	row := s.db.QueryRowContext(ctx, query,
		correlationID.String(),
		channel.String(),
		attempt.PayloadHash,
		nullTime(attempt.SentAt),
		attempt.StatusCode,
		attempt.RetryCount,
		attempt.Err,
		string(attempt.Status),
	)
	record, err := scanRecord(row)
	if err == nil {
		return record, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("record attempt: %w", err)
	}

	// Either the row is terminal or it does not exist.
	return s.Get(ctx, correlationID, channel)
}

func (s *Store) Acknowledge(ctx context.Context, correlationID id.CorrelationID, channel id.ChannelID, by string, at time.Time) (*audit.Record, error) {
	query := `
		UPDATE delivery_records
		SET acknowledged_by = $3,
		    acknowledged_at = $4,
		    updated_at      = NOW()
		WHERE correlation_id = $1 AND channel = $2
		  AND acknowledged_at IS NULL
		RETURNING` + recordColumns

	row := s.db.QueryRowContext(ctx, query, correlationID.String(), channel.String(), by, at)
	record, err := scanRecord(row)
	if err == nil {
		return record, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("acknowledge delivery record: %w", err)
	}

	// Lost the race or the row is already acknowledged; return the winner.
	existing, err := s.Get(ctx, correlationID, channel)
	if err != nil {
		return nil, err
	}
	return existing, sentinel.ErrAlreadyUsed
}

func (s *Store) RecordAction(ctx context.Context, correlationID id.CorrelationID, channel id.ChannelID, action string, data map[string]any) (*audit.Record, error) {
	actionData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal action data: %w", err)
	}

	query := `
		UPDATE delivery_records
		SET action_taken = $3,
		    action_data  = $4,
		    updated_at   = NOW()
		WHERE correlation_id = $1 AND channel = $2
		RETURNING` + recordColumns

	row := s.db.QueryRowContext(ctx, query, correlationID.String(), channel.String(), action, actionData)
	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("record action: %w", err)
	}
	return record, nil
}

func (s *Store) Get(ctx context.Context, correlationID id.CorrelationID, channel id.ChannelID) (*audit.Record, error) {
	query := `SELECT` + recordColumns + `
		FROM delivery_records
		WHERE correlation_id = $1 AND channel = $2`

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, correlationID.String(), channel.String()))
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery record: %w", err)
	}
	return record, nil
}

func (s *Store) ListByCorrelation(ctx context.Context, correlationID id.CorrelationID) ([]*audit.Record, error) {
	query := `SELECT` + recordColumns + `
		FROM delivery_records
		WHERE correlation_id = $1
		ORDER BY created_at, channel`

	return s.queryRecords(ctx, query, correlationID.String())
}

func (s *Store) ListByTypeWindow(ctx context.Context, q audit.Query) ([]*audit.Record, error) {
	var (
		conds []string
		args  []any
	)
	if q.EventType != "" {
		args = append(args, q.EventType.String())
		conds = append(conds, fmt.Sprintf("event_type = $%d", len(args)))
	}
	if !q.From.IsZero() {
		args = append(args, q.From)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	query := `SELECT` + recordColumns + ` FROM delivery_records`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, correlation_id, channel"

	return s.queryRecords(ctx, query, args...)
}

func (s *Store) ListUnacknowledged(ctx context.Context, minPriority id.Priority) ([]*audit.Record, error) {
	priorities := id.PrioritiesAtLeast(minPriority)
	placeholders := make([]string, len(priorities))
	args := make([]any, len(priorities))
	for i, p := range priorities {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = p.String()
	}

	query := `SELECT` + recordColumns + `
		FROM delivery_records
		WHERE acknowledged_at IS NULL
		  AND priority IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY created_at, correlation_id, channel`

	return s.queryRecords(ctx, query, args...)
}

func (s *Store) ListFailed(ctx context.Context) ([]*audit.Record, error) {
	query := `SELECT` + recordColumns + `
		FROM delivery_records
		WHERE status = 'failed'
		ORDER BY created_at, correlation_id, channel`

	return s.queryRecords(ctx, query)
}

func (s *Store) ListNonTerminal(ctx context.Context) ([]*audit.Record, error) {
	query := `SELECT` + recordColumns + `
		FROM delivery_records
		WHERE status NOT IN ('delivered', 'failed')
		ORDER BY created_at, correlation_id, channel`

	return s.queryRecords(ctx, query)
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]*audit.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query delivery records: %w", err)
	}
	defer rows.Close()

	var records []*audit.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery records: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*audit.Record, error) {
	var (
		record          audit.Record
		correlationID   string
		eventType       string
		priority        string
		stakeholders    []byte
		channel         string
		status          string
		sentAt          sql.NullTime
		lastStatusCode  sql.NullInt64
		errorMessage    sql.NullString
		acknowledgedBy  sql.NullString
		acknowledgedAt  sql.NullTime
		actionTaken     sql.NullString
		actionData      []byte
	)

	err := row.Scan(
		&record.ID,
		&correlationID,
		&eventType,
		&priority,
		&stakeholders,
		&channel,
		&record.Payload,
		&record.PayloadHash,
		&status,
		&sentAt,
		&lastStatusCode,
		&record.RetryCount,
		&errorMessage,
		&acknowledgedBy,
		&acknowledgedAt,
		&actionTaken,
		&actionData,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.CorrelationID = id.CorrelationID(correlationID)
	record.EventType = id.EventType(eventType)
	record.Priority = id.Priority(priority)
	record.Channel = id.ChannelID(channel)
	record.Status = audit.Status(status)
	if sentAt.Valid {
		record.SentAt = sentAt.Time
	}
	if lastStatusCode.Valid {
		record.LastStatusCode = int(lastStatusCode.Int64)
	}
	record.ErrorMessage = errorMessage.String
	record.AcknowledgedBy = acknowledgedBy.String
	if acknowledgedAt.Valid {
		at := acknowledgedAt.Time
		record.AcknowledgedAt = &at
	}
	record.ActionTaken = actionTaken.String

	if len(stakeholders) > 0 {
		if err := json.Unmarshal(stakeholders, &record.Stakeholders); err != nil {
			return nil, fmt.Errorf("unmarshal stakeholders: %w", err)
		}
	}
	if len(actionData) > 0 {
		if err := json.Unmarshal(actionData, &record.ActionData); err != nil {
			return nil, fmt.Errorf("unmarshal action data: %w", err)
		}
	}

	return &record, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
