package middleware

import (
	"net/http"
	"runtime/debug"

	apperrors "sentinel/pkg/errors"
	"sentinel/pkg/logger"
)

func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("Panic recovered",
						"request_id", requestIDFrom(r),
						"error", err,
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"` + apperrors.FaultMessage + `","code":"` + apperrors.CodeSentinelFault + `"}`))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
