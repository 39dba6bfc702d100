package middleware

import (
	"net/http"

	"github.com/emeraldgrove/grove-relay/internal/models"
	"go.uber.org/zap"
)

// ErrorHandler creates error handling middleware.
// A panic before anything was written becomes a 500 JSON body. After that the
// connection is aborted, since a second status cannot be sent.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := newStatusRecorder(w)

			defer func() {
				err := recover()
				if err == nil {
					return
				}
				if err == http.ErrAbortHandler {
					panic(err)
				}

				// Log panic details server-side but don't expose to client
				logger.Error("panic_recovered",
					zap.Any("error", err),
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.Bool("headers_sent", wrapped.wroteHeader),
				)
				if wrapped.wroteHeader {
					panic(http.ErrAbortHandler)
				}

				body := models.ErrorBody{Error: "Internal server error", Details: "An unexpected error occurred"}
				if err := writeJSON(w, http.StatusInternalServerError, body); err != nil {
					logger.Error("failed_to_encode_error_response",
						zap.Error(err),
						zap.String("path", r.URL.Path),
					)
				}
			}()

			next.ServeHTTP(wrapped, r)
		})
	}
}
