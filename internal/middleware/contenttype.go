package middleware

import (
	"net/http"
	"strings"

	"github.com/emeraldgrove/grove-relay/internal/models"
)

// ContentType requires a JSON Content-Type on POST requests
func ContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			contentType := r.Header.Get("Content-Type")

			if contentType == "" {
				_ = writeJSON(w, http.StatusBadRequest, models.ErrorBody{Error: "Content-Type header is required"})
				return
			}

			// Allow charset parameters
			if !strings.HasPrefix(strings.ToLower(contentType), "application/json") {
				_ = writeJSON(w, http.StatusUnsupportedMediaType, models.ErrorBody{Error: "Content-Type must be application/json"})
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
