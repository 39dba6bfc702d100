package middleware

import (
	"net/http"
	"time"
)

const (
	// DefaultRequestTimeout is the default request timeout (30 seconds)
	DefaultRequestTimeout = 30 * time.Second
)

// Timeout bounds handlers that produce a single buffered response.
// http.TimeoutHandler does not support flushing, so streaming routes must not use it.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, `{"error":"Request timeout"}`)
	}
}
