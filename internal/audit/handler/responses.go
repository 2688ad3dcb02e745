package handler

import (
	"time"

	"beacon/internal/audit"
	id "beacon/pkg/domain"
)

// RecordResponse is the wire form of one audit record. The rendered payload
// is omitted; operators inspect delivery state, not card bodies.
type RecordResponse struct {
	ID             string                `json:"id"`
	CorrelationID  id.CorrelationID      `json:"correlation_id"`
	EventType      id.EventType          `json:"event_type"`
	Priority       id.Priority           `json:"priority"`
	Stakeholders   []id.StakeholderGroup `json:"stakeholders"`
	Channel        id.ChannelID          `json:"channel"`
	PayloadHash    string                `json:"payload_hash,omitempty"`
	Status         audit.Status          `json:"status"`
	SentAt         *time.Time            `json:"sent_at,omitempty"`
	LastStatusCode int                   `json:"last_status_code,omitempty"`
	RetryCount     int                   `json:"retry_count"`
	ErrorMessage   string                `json:"error_message,omitempty"`
	AcknowledgedBy string                `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time            `json:"acknowledged_at,omitempty"`
	ActionTaken    string                `json:"action_taken,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// ListResponse wraps a record list with its count.
type ListResponse struct {
	Records []RecordResponse `json:"records"`
	Count   int              `json:"count"`
}

func toListResponse(records []*audit.Record) ListResponse {
	out := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, fromRecord(rec))
	}
	return ListResponse{Records: out, Count: len(out)}
}

func fromRecord(rec *audit.Record) RecordResponse {
	resp := RecordResponse{
		ID:             rec.ID.String(),
		CorrelationID:  rec.CorrelationID,
		EventType:      rec.EventType,
		Priority:       rec.Priority,
		Stakeholders:   rec.Stakeholders,
		Channel:        rec.Channel,
		PayloadHash:    rec.PayloadHash,
		Status:         rec.Status,
		LastStatusCode: rec.LastStatusCode,
		RetryCount:     rec.RetryCount,
		ErrorMessage:   rec.ErrorMessage,
		AcknowledgedBy: rec.AcknowledgedBy,
		AcknowledgedAt: rec.AcknowledgedAt,
		ActionTaken:    rec.ActionTaken,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
	if !rec.SentAt.IsZero() {
		sentAt := rec.SentAt
		resp.SentAt = &sentAt
	}
	return resp
}
