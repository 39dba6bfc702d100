package middleware

import (
	"net/http"
	"time"

	logpkg "github.com/emeraldgrove/grove-relay/internal/logger"
	"github.com/emeraldgrove/grove-relay/internal/request"
	"go.uber.org/zap"
)

// Logging creates logging middleware
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := newStatusRecorder(w)

			next.ServeHTTP(wrapped, r)

			logger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.Int("status_code", wrapped.statusCode),
				zap.Int64("bytes", wrapped.bytes),
				zap.String("client_id", logpkg.SanitizeClientID(request.ClientIdentifier(r))),
				zap.String("request_id", request.RequestIDFromContext(r.Context())),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}
