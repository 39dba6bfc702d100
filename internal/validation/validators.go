package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/emeraldgrove/grove-relay/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate

	// ErrInvalidMessages means the messages field is absent, not an array, empty, or holds a malformed turn.
	ErrInvalidMessages = errors.New("invalid messages format")
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("chat_role", validateChatRole); err != nil {
		panic(fmt.Sprintf("failed to register chat_role validator: %v", err))
	}
	if err := Validate.RegisterValidation("content_part", validateContentPart); err != nil {
		panic(fmt.Sprintf("failed to register content_part validator: %v", err))
	}
}

// ParamsError reports out-of-range sampling parameters, keyed by JSON field name.
type ParamsError struct {
	Fields map[string]string
}

func (e *ParamsError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, reason := range e.Fields {
		parts = append(parts, field+": "+reason)
	}
	return "invalid request parameters: " + strings.Join(parts, ", ")
}

// validateChatRole validates that a string is a supported message role
func validateChatRole(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case models.RoleSystem, models.RoleUser, models.RoleAssistant:
		return true
	default:
		return false
	}
}

// validateContentPart checks the part type against the payload it carries.
func validateContentPart(fl validator.FieldLevel) bool {
	part, ok := fl.Parent().Interface().(models.ContentPart)
	if !ok {
		return false
	}
	switch part.Type {
	case models.PartTypeText:
		return true
	case models.PartTypeImageURL:
		return part.ImageURL != nil && part.ImageURL.URL != ""
	default:
		return false
	}
}

// ValidateChatRequest checks a decoded chat body and returns its parsed messages.
// Errors are ErrInvalidMessages or *ParamsError.
func ValidateChatRequest(req *models.ChatRequest) ([]models.Message, error) {
	raw := bytes.TrimSpace(req.Messages)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, ErrInvalidMessages
	}

	var messages []models.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessages, err)
	}
	if len(messages) == 0 {
		return nil, ErrInvalidMessages
	}
	for _, m := range messages {
		if !m.Content.Present() {
			return nil, ErrInvalidMessages
		}
	}
	if err := Validate.Var(messages, "dive"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessages, err)
	}

	if err := Validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[jsonFieldName(fe.Field())] = describe(fe)
		}
		return nil, &ParamsError{Fields: fields}
	}

	return messages, nil
}

func jsonFieldName(field string) string {
	switch field {
	case "Temperature":
		return "temperature"
	case "MaxTokens":
		return "max_tokens"
	default:
		return strings.ToLower(field)
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	// Remove control characters except newline and tab
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}
