// Package handler wires the HTTP event intake to the intake service.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"beacon/internal/event"
	"beacon/internal/intake"
	id "beacon/pkg/domain"
	"beacon/pkg/platform/httputil"
	"beacon/pkg/requestcontext"
)

// Service defines the interface for event submission.
type Service interface {
	Submit(ctx context.Context, e event.Event, source string) (*intake.Result, error)
}

// Handler wires the intake endpoint to the intake service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an intake handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the intake endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/events", h.HandleSubmit)
}

// SubmitResponse is the immediate acceptance ack for POST /v1/events.
type SubmitResponse struct {
	CorrelationID    id.CorrelationID `json:"correlation_id"`
	ChannelsResolved int              `json:"channels_resolved"`
}

// HandleSubmit handles POST /v1/events. Returns 202: the event is accepted
// and queued, and delivery is observable through the audit endpoints.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	e, ok := httputil.DecodeAndPrepare[event.Event](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Submit(ctx, e, "http")
	if err != nil {
		h.logger.WarnContext(ctx, "event rejected",
			"request_id", requestID,
			"correlation_id", e.CorrelationID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, SubmitResponse{
		CorrelationID:    result.CorrelationID,
		ChannelsResolved: result.ChannelsResolved,
	})
}
