package ai

import (
	"context"
	"net/http"

	"github.com/emeraldgrove/grove-relay/internal/models"
)

// Provider relays chat completions to an OpenAI-compatible upstream.
// Returned responses are 2xx with an unread body the caller must close.
type Provider interface {
	// ChatCompletion sends a relay request built from a validated chat body.
	ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*http.Response, error)

	// Forward sends a caller-supplied request body unchanged.
	Forward(ctx context.Context, body []byte) (*http.Response, error)

	// Configured reports whether an API key is available.
	Configured() bool
}

// ChatCompletionRequest is the upstream request body.
type ChatCompletionRequest struct {
	Model       string           `json:"model"`
	Messages    []models.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
	Stream      bool             `json:"stream"`
}

// ApplySystemPrompt replaces the content of a leading system message, or prepends one.
// An empty prompt leaves messages unchanged. The input slice is never modified.
func ApplySystemPrompt(messages []models.Message, prompt string) []models.Message {
	if prompt == "" {
		return messages
	}
	if len(messages) > 0 && messages[0].Role == models.RoleSystem {
		out := make([]models.Message, len(messages))
		copy(out, messages)
		out[0].Content = models.TextContent(prompt)
		return out
	}

	out := make([]models.Message, 0, len(messages)+1)
	out = append(out, models.Message{Role: models.RoleSystem, Content: models.TextContent(prompt)})
	return append(out, messages...)
}
