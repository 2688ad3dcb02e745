// Package httptransport assembles the engine's HTTP surface: intake and
// action callbacks on the public group, audit queries behind operator auth,
// and the operational endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	actionhandler "beacon/internal/action/handler"
	audithandler "beacon/internal/audit/handler"
	intakehandler "beacon/internal/intake/handler"
	dErrors "beacon/pkg/domain-errors"
	"beacon/pkg/platform/httputil"
	"beacon/pkg/platform/middleware/operatorauth"
	"beacon/pkg/platform/middleware/requestid"
	"beacon/pkg/platform/middleware/requesttime"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps are the wired handlers and middleware collaborators.
type Deps struct {
	Logger    *slog.Logger
	Intake    *intakehandler.Handler
	Action    *actionhandler.Handler
	Audit     *audithandler.Handler
	Validator operatorauth.TokenValidator

	// Health dependencies by name; nil entries are skipped so optional
	// backends (redis, postgres) don't fail the check when not configured.
	Health map[string]HealthChecker
}

// NewRouter wires all endpoints.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", healthHandler(deps))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	deps.Intake.Register(r)
	deps.Action.Register(r)

	r.Group(func(r chi.Router) {
		r.Use(operatorauth.RequireOperator(deps.Validator, deps.Logger))
		deps.Audit.Register(r)
	})

	return r
}

func healthHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		for name, checker := range deps.Health {
			if checker == nil {
				continue
			}
			if err := checker.Health(ctx); err != nil {
				deps.Logger.ErrorContext(ctx, "health check failed", "dependency", name, "error", err)
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, name+" is unreachable"))
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
