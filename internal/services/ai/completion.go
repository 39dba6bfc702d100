package ai

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// NoResponseMessage is returned when the upstream completion carries no text.
const NoResponseMessage = "No response generated"

// Completion is the subset of a non-streaming completion the relay returns.
type Completion struct {
	Message string
	Model   string
	Usage   json.RawMessage
}

// ParseCompletion extracts the first choice text, model, and raw usage object.
func ParseCompletion(body []byte) Completion {
	fields := gjson.GetManyBytes(body, "choices.0.message.content", "model", "usage")

	c := Completion{Message: NoResponseMessage, Model: fields[1].String()}
	if content := fields[0]; content.Type == gjson.String && content.Str != "" {
		c.Message = content.Str
	}
	if usage := fields[2]; usage.IsObject() {
		c.Usage = json.RawMessage(usage.Raw)
	}
	return c
}
