package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	logpkg "github.com/emeraldgrove/grove-relay/internal/logger"
	"github.com/emeraldgrove/grove-relay/internal/models"
	"github.com/emeraldgrove/grove-relay/internal/ratelimit"
	"github.com/emeraldgrove/grove-relay/internal/request"
	"go.uber.org/zap"
)

// RateLimit consumes one unit of the client's quota before next runs and
// reports the outcome in X-RateLimit-* headers. Denied requests get a 429.
// A failing store lets the request through.
func RateLimit(limiter ratelimit.Limiter, maxRequests int, window time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := request.ClientIdentifier(r)
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(maxRequests))

			decision, err := limiter.Check(r.Context(), id, maxRequests, window)
			if err != nil {
				logger.Error("rate_limit_store_error",
					zap.String("client_id", logpkg.SanitizeClientID(id)),
					zap.String("error", logpkg.SanitizeError(err)),
				)
				next.ServeHTTP(w, r)
				return
			}

			h.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			h.Set("X-RateLimit-Reset", ratelimit.FormatResetTime(decision.ResetAt))

			if !decision.Allowed {
				h.Set("Retry-After", strconv.Itoa(decision.RetryAfter))
				body := models.RateLimitBody{
					Error:      "Rate limit exceeded",
					Message:    fmt.Sprintf("Too many requests. Please try again in %d seconds.", decision.RetryAfter),
					RetryAfter: decision.RetryAfter,
				}
				if err := writeJSON(w, http.StatusTooManyRequests, body); err != nil {
					logger.Error("failed_to_encode_rate_limit_response", zap.Error(err))
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(request.WithDecision(r.Context(), decision)))
		})
	}
}
