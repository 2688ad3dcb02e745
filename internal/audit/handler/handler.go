// Package handler exposes the operator audit-query surface.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"beacon/internal/audit"
	id "beacon/pkg/domain"
	dErrors "beacon/pkg/domain-errors"
	"beacon/pkg/platform/httputil"
	"beacon/pkg/requestcontext"
)

// escalationFloor is the lowest priority the escalation view surfaces.
const escalationFloor = id.PriorityHigh

// Service defines the query interface the handler needs.
type Service interface {
	Records(ctx context.Context, q audit.Query) ([]*audit.Record, error)
	Escalations(ctx context.Context, minPriority id.Priority) ([]*audit.Record, error)
	Failures(ctx context.Context) ([]*audit.Record, error)
}

// Handler wires the audit query endpoints to the audit service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an audit handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the audit endpoints on the router. The caller wraps the
// router in operator auth; the handler assumes it.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/audit/records", h.HandleRecords)
	r.Get("/v1/audit/escalations", h.HandleEscalations)
	r.Get("/v1/audit/failures", h.HandleFailures)
}

// HandleRecords handles GET /v1/audit/records?event_type=&from=&to=.
func (h *Handler) HandleRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q := audit.Query{EventType: id.EventType(r.URL.Query().Get("event_type"))}
	var err error
	if q.From, err = parseTimeParam(r, "from"); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if q.To, err = parseTimeParam(r, "to"); err != nil {
		httputil.WriteError(w, err)
		return
	}

	records, err := h.service.Records(ctx, q)
	if err != nil {
		h.writeListError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(records))
}

// HandleEscalations handles GET /v1/audit/escalations: unacknowledged
// records at HIGH priority or above.
func (h *Handler) HandleEscalations(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.Escalations(r.Context(), escalationFloor)
	if err != nil {
		h.writeListError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(records))
}

// HandleFailures handles GET /v1/audit/failures: deliveries that exhausted
// their retry budget or were rejected permanently.
func (h *Handler) HandleFailures(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.Failures(r.Context())
	if err != nil {
		h.writeListError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(records))
}

func (h *Handler) writeListError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	h.logger.ErrorContext(ctx, "audit query failed",
		"request_id", requestcontext.RequestID(ctx),
		"operator_id", requestcontext.OperatorID(ctx),
		"path", r.URL.Path,
		"error", err,
	)
	httputil.WriteError(w, err)
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeBadRequest, name+" must be RFC 3339")
	}
	return t, nil
}
