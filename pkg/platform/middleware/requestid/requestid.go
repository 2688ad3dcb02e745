// Package requestid assigns each request an identifier carried through logs
// and responses so one delivery can be traced across services.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"beacon/pkg/requestcontext"
)

// Header carries the request id in both directions: honored when a caller
// supplies it, generated otherwise, and always echoed back.
const Header = "X-Request-Id"

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(Header)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(Header, requestID)

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
