// Package handler wires the action callback endpoint to the action service.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"beacon/internal/action"
	"beacon/internal/signing"
	dErrors "beacon/pkg/domain-errors"
	"beacon/pkg/platform/httputil"
	"beacon/pkg/requestcontext"
)

// maxCallbackBody bounds the callback body; cards are small and collaboration
// platforms echo little beyond the pressed button.
const maxCallbackBody = 1 << 20

// Service defines the interface for action callback processing.
type Service interface {
	Handle(ctx context.Context, req action.Request, rawBody []byte, signature string) (*action.Response, error)
}

// Handler wires the callback endpoint to the action service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an action handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the action endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/actions/callback", h.HandleCallback)
}

// HandleCallback handles POST /v1/actions/callback. The body is read raw
// first because the signature covers the exact wire bytes.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unreadable request body"))
		return
	}

	var req action.Request
	if err := json.Unmarshal(rawBody, &req); err != nil {
		h.logger.WarnContext(ctx, "callback decode failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed JSON body"))
		return
	}

	resp, err := h.service.Handle(ctx, req, rawBody, r.Header.Get(signing.Header))
	if err != nil {
		h.logger.ErrorContext(ctx, "action callback failed",
			"request_id", requestID,
			"correlation_id", req.CorrelationID,
			"verb", req.Verb,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "action callback processed",
		"request_id", requestID,
		"correlation_id", resp.CorrelationID,
		"channel", resp.Channel,
		"verb", resp.Verb,
		"already_actioned", resp.AlreadyActioned,
	)
	httputil.WriteJSON(w, http.StatusOK, resp)
}
