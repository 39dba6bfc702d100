package ai

import (
	"encoding/json"
	"testing"

	"github.com/emeraldgrove/grove-relay/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestApplySystemPrompt(t *testing.T) {
	t.Parallel()

	user := models.Message{Role: models.RoleUser, Content: models.TextContent("Hi")}
	oldSystem := models.Message{Role: models.RoleSystem, Content: models.TextContent("old")}

	t.Run("empty prompt leaves messages alone", func(t *testing.T) {
		t.Parallel()
		in := []models.Message{user}
		assert.Equal(t, in, ApplySystemPrompt(in, ""))
	})

	t.Run("prepends when no system message leads", func(t *testing.T) {
		t.Parallel()
		out := ApplySystemPrompt([]models.Message{user}, "Be brief")
		assert.Len(t, out, 2)
		assert.Equal(t, models.RoleSystem, out[0].Role)
		assert.Equal(t, "Be brief", out[0].Content.PlainText())
		assert.Equal(t, user, out[1])
	})

	t.Run("replaces a leading system message", func(t *testing.T) {
		t.Parallel()
		in := []models.Message{oldSystem, user}
		out := ApplySystemPrompt(in, "Be brief")
		assert.Len(t, out, 2)
		assert.Equal(t, "Be brief", out[0].Content.PlainText())
		assert.Equal(t, "old", in[0].Content.PlainText(), "input must not be modified")
	})

	t.Run("replacing keeps the system message's other fields", func(t *testing.T) {
		t.Parallel()
		named := models.Message{
			Role:    models.RoleSystem,
			Content: models.TextContent("old"),
			Extra:   map[string]json.RawMessage{"name": json.RawMessage(`"grove"`)},
		}
		out := ApplySystemPrompt([]models.Message{named, user}, "Be brief")
		assert.Equal(t, "Be brief", out[0].Content.PlainText())
		assert.JSONEq(t, `"grove"`, string(out[0].Extra["name"]))
	})
}

func TestParseCompletion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      string
		wantMsg   string
		wantModel string
		wantUsage string
	}{
		{
			name:      "full completion",
			body:      `{"model":"anthropic/claude-3.5-sonnet","choices":[{"message":{"role":"assistant","content":"Hello"}}],"usage":{"prompt_tokens":3,"completion_tokens":1}}`,
			wantMsg:   "Hello",
			wantModel: "anthropic/claude-3.5-sonnet",
			wantUsage: `{"prompt_tokens":3,"completion_tokens":1}`,
		},
		{name: "no choices", body: `{"model":"m","choices":[]}`, wantMsg: NoResponseMessage, wantModel: "m"},
		{name: "null content", body: `{"model":"m","choices":[{"message":{"content":null}}]}`, wantMsg: NoResponseMessage, wantModel: "m"},
		{name: "empty content", body: `{"model":"m","choices":[{"message":{"content":""}}]}`, wantMsg: NoResponseMessage, wantModel: "m"},
		{name: "not json", body: `oops`, wantMsg: NoResponseMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := ParseCompletion([]byte(tt.body))
			assert.Equal(t, tt.wantMsg, c.Message)
			assert.Equal(t, tt.wantModel, c.Model)
			if tt.wantUsage == "" {
				assert.Nil(t, c.Usage)
			} else {
				assert.JSONEq(t, tt.wantUsage, string(c.Usage))
			}
		})
	}
}

func TestSanitizeAPIKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", SanitizeAPIKey(""))
	assert.Equal(t, RedactedValue, SanitizeAPIKey("short"))
	assert.Equal(t, "sk-o"+RedactedValue+"cdef", SanitizeAPIKey("sk-or-v1-abcdef"))
}

func TestIsRateLimitError(t *testing.T) {
	t.Parallel()

	assert.True(t, IsRateLimitError(&UpstreamError{StatusCode: 429}))
	assert.False(t, IsRateLimitError(&UpstreamError{StatusCode: 500}))
	assert.False(t, IsRateLimitError(ErrNotConfigured))
}
