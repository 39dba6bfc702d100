package ai

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured indicates no upstream API key is set
	ErrNotConfigured = errors.New("OpenRouter API key not configured")
)

// UpstreamError is a non-2xx answer from the upstream, with its body already read.
type UpstreamError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (status %d)", e.StatusCode)
}

// Details returns the upstream body as JSON, or an empty object when it is not valid JSON.
func (e *UpstreamError) Details() json.RawMessage {
	if len(e.Body) == 0 || !json.Valid(e.Body) {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(e.Body)
}

// IsRateLimitError checks if an error is an upstream 429
func IsRateLimitError(err error) bool {
	var upErr *UpstreamError
	return errors.As(err, &upErr) && upErr.StatusCode == 429
}
