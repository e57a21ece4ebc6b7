package middleware

import (
	"bytes"
	"io"
	"net/http"

	apperrors "sentinel/pkg/errors"
	httputil "sentinel/pkg/http"
)

// MaxRequestSize buffers the body up to limit bytes and rejects anything
// larger with 413 before any downstream parsing or signature work happens.
func MaxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.ContentLength > limit {
				if r.ContentLength > limit {
					_ = httputil.WriteError(w, apperrors.PayloadTooLarge())
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
			r.Body.Close()
			if err != nil {
				_ = httputil.WriteError(w, apperrors.InvalidPayload("failed to read request body"))
				return
			}
			if int64(len(body)) > limit {
				_ = httputil.WriteError(w, apperrors.PayloadTooLarge())
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
