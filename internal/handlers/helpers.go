package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/emeraldgrove/grove-relay/internal/models"
)

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondJSONError sends an {"error", "details"} body
func respondJSONError(w http.ResponseWriter, status int, message string, details any) {
	respondJSON(w, status, models.ErrorBody{Error: message, Details: details})
}

// sanitizeErrorMessage keeps client-facing error details short
func sanitizeErrorMessage(message string) string {
	const maxLen = 200
	runes := []rune(message)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return message
}
