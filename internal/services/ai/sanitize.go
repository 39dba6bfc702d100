package ai

import (
	"github.com/emeraldgrove/grove-relay/internal/logger"
	"github.com/emeraldgrove/grove-relay/internal/models"
)

// RedactedValue is the value used to replace sensitive data
const RedactedValue = "[REDACTED]"

// SanitizeAPIKey sanitizes an API key for logging
func SanitizeAPIKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	if len(apiKey) <= 8 {
		return RedactedValue
	}
	// Show first 4 and last 4 characters, redact the middle
	return apiKey[:4] + RedactedValue + apiKey[len(apiKey)-4:]
}

// SanitizeMessages creates sanitized previews of messages for logging
func SanitizeMessages(messages []models.Message, fullLog bool) []string {
	sanitized := make([]string, 0, len(messages))
	for _, msg := range messages {
		sanitized = append(sanitized, msg.Role+": "+logger.SanitizePreview(msg.Content.PlainText(), fullLog))
	}
	return sanitized
}
