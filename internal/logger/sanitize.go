package logger

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxPathLength caps URL paths in logs
	MaxPathLength = 500
	// MaxClientIDLength caps client identifiers (forwarded header values are attacker-controlled)
	MaxClientIDLength = 128
	// MaxErrorMessageLength caps error strings
	MaxErrorMessageLength = 1000
	// MaxGeneralStringLength is used when no explicit limit is given
	MaxGeneralStringLength = 2000
	// MaxPreviewLength caps prompt/response previews outside debug mode
	MaxPreviewLength = 200
	// MaxDebugContentLength caps prompt/response content in debug mode
	MaxDebugContentLength = 10000
)

// SanitizePath makes a URL path safe to log
func SanitizePath(path string) string {
	return SanitizeString(path, MaxPathLength)
}

// SanitizeClientID makes a rate-limit identifier safe to log
func SanitizeClientID(id string) string {
	return SanitizeString(id, MaxClientIDLength)
}

// SanitizeError makes an error message safe to log
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error(), MaxErrorMessageLength)
}

// SanitizePreview returns a bounded preview of model input or output.
// Debug mode raises the bound but never removes it.
func SanitizePreview(content string, debugMode bool) string {
	if debugMode {
		return SanitizeString(content, MaxDebugContentLength)
	}
	return SanitizeString(content, MaxPreviewLength)
}

// SanitizeString repairs UTF-8, drops control characters other than whitespace, and truncates.
func SanitizeString(s string, maxLength int) string {
	if s == "" {
		return ""
	}
	if maxLength <= 0 {
		maxLength = MaxGeneralStringLength
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	var builder strings.Builder
	builder.Grow(len(s))
	for _, r := range s {
		if unicode.IsPrint(r) || r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			builder.WriteRune(r)
		}
	}
	s = builder.String()
	if len(s) > maxLength {
		s = truncateUTF8(s, maxLength) + "..."
	}
	return s
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
