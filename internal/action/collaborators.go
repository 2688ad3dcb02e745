package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"beacon/internal/audit"
	id "beacon/pkg/domain"
)

// Escalator notifies a human beyond the original channel, typically a paging
// system. Failures are logged and recorded but never roll back the action.
type Escalator interface {
	Escalate(ctx context.Context, record *audit.Record, actor string) error
}

// JobQueue re-enqueues the work a failed delivery was about. Used by the
// retry verb on records whose delivery exhausted its budget.
type JobQueue interface {
	EnqueueRetry(ctx context.Context, record *audit.Record, actor string) error
}

// Archiver files a discarded notification with an external archive.
type Archiver interface {
	Archive(ctx context.Context, record *audit.Record, actor string) error
}

// collaboratorPayload is the JSON body posted to every collaborator endpoint.
type collaboratorPayload struct {
	CorrelationID id.CorrelationID `json:"correlation_id"`
	Channel       id.ChannelID     `json:"channel"`
	EventType     id.EventType     `json:"event_type"`
	Priority      id.Priority      `json:"priority"`
	Actor         string           `json:"actor"`
	RequestedAt   time.Time        `json:"requested_at"`
}

func newCollaboratorClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func postCollaborator(ctx context.Context, client *http.Client, url string, record *audit.Record, actor string) error {
	body, err := json.Marshal(collaboratorPayload{
		CorrelationID: record.CorrelationID,
		Channel:       record.Channel,
		EventType:     record.EventType,
		Priority:      record.Priority,
		Actor:         actor,
		RequestedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal collaborator payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build collaborator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("call collaborator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collaborator returned %d", resp.StatusCode)
	}
	return nil
}

// HTTPEscalator pages through a webhook.
type HTTPEscalator struct {
	url    string
	client *http.Client
}

func NewHTTPEscalator(url string, timeout time.Duration) *HTTPEscalator {
	return &HTTPEscalator{url: url, client: newCollaboratorClient(timeout)}
}

func (e *HTTPEscalator) Escalate(ctx context.Context, record *audit.Record, actor string) error {
	return postCollaborator(ctx, e.client, e.url, record, actor)
}

// HTTPJobQueue re-enqueues work through a job-queue webhook.
type HTTPJobQueue struct {
	url    string
	client *http.Client
}

func NewHTTPJobQueue(url string, timeout time.Duration) *HTTPJobQueue {
	return &HTTPJobQueue{url: url, client: newCollaboratorClient(timeout)}
}

func (q *HTTPJobQueue) EnqueueRetry(ctx context.Context, record *audit.Record, actor string) error {
	return postCollaborator(ctx, q.client, q.url, record, actor)
}

// HTTPArchiver files discards with an archive service.
type HTTPArchiver struct {
	url    string
	client *http.Client
}

func NewHTTPArchiver(url string, timeout time.Duration) *HTTPArchiver {
	return &HTTPArchiver{url: url, client: newCollaboratorClient(timeout)}
}

func (a *HTTPArchiver) Archive(ctx context.Context, record *audit.Record, actor string) error {
	return postCollaborator(ctx, a.client, a.url, record, actor)
}
