package middleware

import (
	"net/http"

	"github.com/emeraldgrove/grove-relay/internal/models"
)

const (
	// DefaultMaxRequestSize is the default maximum request body size (4MB, room for inline images)
	DefaultMaxRequestSize int64 = 4 << 20
)

// MaxRequestSize limits the size of request bodies
func MaxRequestSize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Check Content-Length header early if present
			if r.ContentLength > maxBytes {
				_ = writeJSON(w, http.StatusRequestEntityTooLarge, models.ErrorBody{Error: "Request entity too large"})
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			defer r.Body.Close()

			next.ServeHTTP(w, r)
		})
	}
}
