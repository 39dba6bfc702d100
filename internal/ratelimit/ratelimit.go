// Package ratelimit bounds how many chat requests a client may issue per window.
package ratelimit

import (
	"context"
	"time"
)

// UnknownIdentifier is the quota key for requests that carry no forwarding headers.
const UnknownIdentifier = "unknown"

// Decision is the outcome of a single Check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	// RetryAfter is whole seconds until the window resets. Zero when Allowed.
	RetryAfter int
}

// Status is a read-only view of a client's quota.
type Status struct {
	Remaining int
	// ResetAt is nil when the client has no active window.
	ResetAt *time.Time
}

// Limiter consumes and reports per-client quota.
type Limiter interface {
	// Check consumes one request from identifier's quota if any is left.
	Check(ctx context.Context, identifier string, maxRequests int, window time.Duration) (Decision, error)
	// Status reports identifier's quota without consuming it.
	Status(ctx context.Context, identifier string, maxRequests int) (Status, error)
}

// retryAfterSeconds rounds the time until resetAt up to whole seconds, never below one.
func retryAfterSeconds(resetAt, now time.Time) int {
	d := resetAt.Sub(now)
	secs := int(d / time.Second)
	if d%time.Second > 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}

func normalizeIdentifier(identifier string) string {
	if identifier == "" {
		return UnknownIdentifier
	}
	return identifier
}

// resetTimeLayout matches JavaScript's Date.toISOString.
const resetTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatResetTime renders t as an ISO-8601 UTC timestamp with milliseconds.
func FormatResetTime(t time.Time) string {
	return t.UTC().Format(resetTimeLayout)
}
