package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"

	apperrors "github.com/Infantselva015/eci-payment-service/internal"
	pkglogger "github.com/Infantselva015/eci-payment-service/pkg/logger"
)

// RecoveryMiddleware converts panics into the service's standard error
// envelope instead of dropping the connection. The panic value and stack
// stay in the logs; the client only gets the generic internal error.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log := logger
					if pkglogger.TraceID(r.Context()) != "" {
						log = pkglogger.From(r.Context())
					}
					log.Error("panic recovered",
						"panic", rec,
						"method", r.Method,
						"url", r.URL.String(),
						"stack", string(debug.Stack()))

					appErr := apperrors.NewInternalError("The payment service failed to process this request", nil)
					status, body := appErr.ToHTTPResponse()
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(status)
					json.NewEncoder(w).Encode(body)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
