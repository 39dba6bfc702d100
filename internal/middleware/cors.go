package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS creates CORS middleware for the browser origins allowed to call the relay
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		// Browsers hide these from scripts unless exposed
		ExposedHeaders: []string{
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
			"Retry-After",
			"X-Request-ID",
		},
		MaxAge: 86400,
	})
	return c.Handler
}
