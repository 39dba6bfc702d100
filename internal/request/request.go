package request

import (
	"context"
	"net/http"
	"strings"

	"github.com/emeraldgrove/grove-relay/internal/ratelimit"
	"github.com/seancfoley/ipaddress-go/ipaddr"
)

type contextKey string

const (
	requestIDContextKey contextKey = "request_id"
	decisionContextKey  contextKey = "ratelimit_decision"
)

// RequestIDHeader carries the per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

// ClientIdentifier derives the rate-limit key for r: the first X-Forwarded-For entry, else
// X-Real-IP, else "unknown". The proxy in front of the relay is trusted to set these headers.
func ClientIdentifier(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if id := NormalizeIdentifier(first); id != "" {
			return id
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if id := NormalizeIdentifier(xri); id != "" {
			return id
		}
	}
	return ratelimit.UnknownIdentifier
}

// NormalizeIdentifier canonicalizes single IP addresses so that different spellings of the same IPv6
// address share a quota. Anything else is returned trimmed but otherwise untouched.
func NormalizeIdentifier(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	addr, err := ipaddr.NewIPAddressString(value).ToAddress()
	if err != nil || addr == nil || addr.IsMultiple() {
		return value
	}
	if !addr.IsIPv4() && !addr.IsIPv6() {
		return value
	}
	return addr.ToCanonicalString()
}

// WithRequestID returns a context carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestIDFromContext returns the request ID, or "" when none was assigned.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// WithDecision returns a context carrying the rate-limit decision made for this request.
func WithDecision(ctx context.Context, d ratelimit.Decision) context.Context {
	return context.WithValue(ctx, decisionContextKey, d)
}

// DecisionFromContext returns the decision stored by the rate-limit middleware.
func DecisionFromContext(ctx context.Context) (ratelimit.Decision, bool) {
	d, ok := ctx.Value(decisionContextKey).(ratelimit.Decision)
	return d, ok
}
