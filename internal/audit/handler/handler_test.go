package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"beacon/internal/audit"
	"beacon/internal/audit/store/memory"
	id "beacon/pkg/domain"
)

// HandlerSuite exercises the audit query endpoints against a real in-memory
// store so filtering behavior is validated end to end.
type HandlerSuite struct {
	suite.Suite
	records *audit.Service
	router  http.Handler
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	s.records = audit.NewService(memory.New(), audit.WithLogger(logger))

	r := chi.NewRouter()
	New(s.records, logger).Register(r)
	s.router = r
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) seed(corr id.CorrelationID, eventType id.EventType, priority id.Priority) *audit.Record {
	record, _, err := s.records.Create(s.T().Context(), &audit.Record{
		CorrelationID: corr,
		EventType:     eventType,
		Priority:      priority,
		Stakeholders:  []id.StakeholderGroup{"oncall"},
		Channel:       "slack-oncall",
		Payload:       []byte(`{"title":"seed"}`),
	})
	require.NoError(s.T(), err)
	return record
}

func (s *HandlerSuite) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decodeList(rec *httptest.ResponseRecorder) ListResponse {
	var resp ListResponse
	require.NoError(s.T(), json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func (s *HandlerSuite) TestRecords_FiltersByEventType() {
	s.seed("corr-1", "security_incident", id.PriorityCritical)
	s.seed("corr-2", "job_failure", id.PriorityMedium)

	rec := s.get("/v1/audit/records?event_type=job_failure")

	require.Equal(s.T(), http.StatusOK, rec.Code)
	resp := s.decodeList(rec)
	require.Equal(s.T(), 1, resp.Count)
	assert.Equal(s.T(), id.CorrelationID("corr-2"), resp.Records[0].CorrelationID)
}

func (s *HandlerSuite) TestRecords_TimeWindow() {
	s.seed("corr-1", "job_failure", id.PriorityMedium)

	past := time.Now().Add(-time.Hour).Format(time.RFC3339)
	future := time.Now().Add(time.Hour).Format(time.RFC3339)

	inside := s.decodeList(s.get("/v1/audit/records?from=" + past + "&to=" + future))
	assert.Equal(s.T(), 1, inside.Count, "record inside window")

	outside := s.decodeList(s.get("/v1/audit/records?from=" + future))
	assert.Equal(s.T(), 0, outside.Count, "record before window start")
}

func (s *HandlerSuite) TestRecords_RejectsMalformedTime() {
	rec := s.get("/v1/audit/records?from=yesterday")
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestRecords_OmitsRenderedPayload() {
	s.seed("corr-1", "job_failure", id.PriorityMedium)

	rec := s.get("/v1/audit/records")

	require.Equal(s.T(), http.StatusOK, rec.Code)
	assert.NotContains(s.T(), rec.Body.String(), "seed",
		"rendered card body must not leak into the query surface")
}

func (s *HandlerSuite) TestEscalations_UnacknowledgedHighAndAbove() {
	s.seed("corr-critical", "security_incident", id.PriorityCritical)
	s.seed("corr-high", "infra_alert", id.PriorityHigh)
	s.seed("corr-medium", "job_failure", id.PriorityMedium)

	acked := s.seed("corr-acked", "security_incident", id.PriorityCritical)
	_, won, err := s.records.Acknowledge(s.T().Context(), acked.CorrelationID, acked.Channel, "op-1", time.Now())
	require.NoError(s.T(), err)
	require.True(s.T(), won)

	resp := s.decodeList(s.get("/v1/audit/escalations"))

	require.Equal(s.T(), 2, resp.Count)
	for _, r := range resp.Records {
		assert.True(s.T(), r.Priority.AtLeast(id.PriorityHigh), "priority %s below floor", r.Priority)
		assert.Nil(s.T(), r.AcknowledgedAt)
	}
}

func (s *HandlerSuite) TestFailures_OnlyFailedRecords() {
	s.seed("corr-ok", "job_failure", id.PriorityMedium)
	failed := s.seed("corr-failed", "job_failure", id.PriorityMedium)
	_, err := s.records.Attempt(s.T().Context(), failed.CorrelationID, failed.Channel, audit.Attempt{
		Status:     audit.StatusFailed,
		StatusCode: http.StatusBadGateway,
		RetryCount: 3,
		Err:        "retry budget exhausted: 502",
	})
	require.NoError(s.T(), err)

	resp := s.decodeList(s.get("/v1/audit/failures"))

	require.Equal(s.T(), 1, resp.Count)
	assert.Equal(s.T(), id.CorrelationID("corr-failed"), resp.Records[0].CorrelationID)
	assert.Equal(s.T(), 3, resp.Records[0].RetryCount)
	assert.Equal(s.T(), http.StatusBadGateway, resp.Records[0].LastStatusCode)
}

func (s *HandlerSuite) TestRecords_SentAtOmittedUntilFirstAttempt() {
	s.seed("corr-1", "job_failure", id.PriorityMedium)

	resp := s.decodeList(s.get("/v1/audit/records"))

	require.Equal(s.T(), 1, resp.Count)
	assert.Nil(s.T(), resp.Records[0].SentAt)
}
