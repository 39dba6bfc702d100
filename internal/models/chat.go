package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Message roles accepted from the browser
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content part types for vision-capable exchanges
const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// ChatRequest is the body of POST /api/chat.
// Messages stays raw until the handler has confirmed it is a JSON array.
type ChatRequest struct {
	Messages     json.RawMessage `json:"messages"`
	Model        string          `json:"model,omitempty"`
	Stream       bool            `json:"stream,omitempty"`
	Temperature  *float64        `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens    *int            `json:"max_tokens,omitempty" validate:"omitempty,gte=1"`
	SystemPrompt string          `json:"system_prompt,omitempty"`
}

// Message is one conversational turn, earliest first.
type Message struct {
	Role    string         `json:"role" validate:"required,chat_role"`
	Content MessageContent `json:"content"`
	// Extra holds the fields the relay does not interpret (name, tool_call_id, ...).
	// They are forwarded upstream unchanged.
	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes role and content and keeps every other field in Extra.
func (m *Message) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("message: %w", err)
	}

	*m = Message{}
	if raw, ok := fields["role"]; ok {
		if err := json.Unmarshal(raw, &m.Role); err != nil {
			return fmt.Errorf("message role: %w", err)
		}
		delete(fields, "role")
	}
	if raw, ok := fields["content"]; ok {
		if err := json.Unmarshal(raw, &m.Content); err != nil {
			return err
		}
		delete(fields, "content")
	}
	if len(fields) > 0 {
		m.Extra = fields
	}
	return nil
}

// MarshalJSON writes role, content and any Extra fields.
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Extra) == 0 {
		type plain Message
		return json.Marshal(plain(m))
	}
	out := make(map[string]any, len(m.Extra)+2)
	for k, v := range m.Extra {
		out[k] = v
	}
	out["role"] = m.Role
	out["content"] = m.Content
	return json.Marshal(out)
}

// MessageContent is either plain text or a list of typed parts.
type MessageContent struct {
	Text  string
	Parts []ContentPart `validate:"dive"`
	// IsParts records which JSON shape was received so it round-trips unchanged.
	IsParts bool

	present bool
}

// ContentPart is a text fragment or an image reference.
type ContentPart struct {
	Type     string    `json:"type" validate:"required,content_part"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image by URL or data URI.
type ImageURL struct {
	URL    string `json:"url" validate:"required"`
	Detail string `json:"detail,omitempty"`
}

// TextContent builds plain-text content.
func TextContent(text string) MessageContent {
	return MessageContent{Text: text, present: true}
}

// Present reports whether content was supplied at all.
func (c MessageContent) Present() bool {
	return c.present
}

// UnmarshalJSON accepts a string or an array of parts.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return errors.New("message content is required")
	}
	switch trimmed[0] {
	case '"':
		*c = MessageContent{present: true}
		return json.Unmarshal(trimmed, &c.Text)
	case '[':
		var parts []ContentPart
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return fmt.Errorf("message content parts: %w", err)
		}
		*c = MessageContent{Parts: parts, IsParts: true, present: true}
		return nil
	default:
		return errors.New("message content must be a string or an array of parts")
	}
}

// MarshalJSON writes the same shape that was received.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.IsParts {
		parts := c.Parts
		if parts == nil {
			parts = []ContentPart{}
		}
		return json.Marshal(parts)
	}
	return json.Marshal(c.Text)
}

// PlainText joins the text of c, skipping image parts.
func (c MessageContent) PlainText() string {
	if !c.IsParts {
		return c.Text
	}
	var buf bytes.Buffer
	for _, p := range c.Parts {
		if p.Type != PartTypeText || p.Text == "" {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(p.Text)
	}
	return buf.String()
}

// ChatResponse is the non-streaming reply of POST /api/chat.
type ChatResponse struct {
	Message string          `json:"message"`
	Model   string          `json:"model"`
	Usage   json.RawMessage `json:"usage,omitempty"`
}

// ErrorBody is the error shape shared by every relay route.
type ErrorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// RateLimitBody is returned with HTTP 429.
type RateLimitBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// StatusResponse is returned by GET /api/chat/status.
type StatusResponse struct {
	Limit     int     `json:"limit"`
	Remaining int     `json:"remaining"`
	ResetAt   *string `json:"resetAt"`
}
