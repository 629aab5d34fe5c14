package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/platinummonkey/permsync/pkg/observability"
)

// RequestIDHeader carries the request ID on responses and inbound requests
const RequestIDHeader = "X-Request-Id"

// RequestID assigns each request a UUID (or reuses the inbound header) and
// threads it through the context so log lines can be correlated.
func RequestID(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}

			w.Header().Set(RequestIDHeader, requestID)

			ctx := observability.WithRequestID(r.Context(), requestID)
			ctx = observability.WithLogger(ctx, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
