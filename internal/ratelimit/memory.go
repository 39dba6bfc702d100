package ratelimit

import (
	"context"
	"sync"
	"time"
)

// quotaRecord tracks one client's consumption inside its current window.
type quotaRecord struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a fixed-window limiter backed by a process-local map.
// Expired records are swept on every Check, so memory stays proportional to active clients.
type MemoryLimiter struct {
	mu      sync.Mutex
	records map[string]*quotaRecord
	now     func() time.Time
}

// MemoryOption configures a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryLimiter) {
		m.now = now
	}
}

// NewMemoryLimiter creates an empty in-process limiter.
func NewMemoryLimiter(opts ...MemoryOption) *MemoryLimiter {
	m := &MemoryLimiter{
		records: make(map[string]*quotaRecord),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Check implements Limiter. It never returns an error.
func (m *MemoryLimiter) Check(_ context.Context, identifier string, maxRequests int, window time.Duration) (Decision, error) {
	identifier = normalizeIdentifier(identifier)

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)

	rec, ok := m.records[identifier]
	if !ok || now.After(rec.resetAt) {
		rec = &quotaRecord{count: 1, resetAt: now.Add(window)}
		m.records[identifier] = rec
		return Decision{
			Allowed:   true,
			Remaining: maxRequests - 1,
			ResetAt:   rec.resetAt,
		}, nil
	}

	if rec.count >= maxRequests {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    rec.resetAt,
			RetryAfter: retryAfterSeconds(rec.resetAt, now),
		}, nil
	}

	rec.count++
	return Decision{
		Allowed:   true,
		Remaining: maxRequests - rec.count,
		ResetAt:   rec.resetAt,
	}, nil
}

// Status implements Limiter. It does not sweep or otherwise mutate state.
func (m *MemoryLimiter) Status(_ context.Context, identifier string, maxRequests int) (Status, error) {
	identifier = normalizeIdentifier(identifier)

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[identifier]
	if !ok || m.now().After(rec.resetAt) {
		return Status{Remaining: maxRequests}, nil
	}

	resetAt := rec.resetAt
	return Status{
		Remaining: max(0, maxRequests-rec.count),
		ResetAt:   &resetAt,
	}, nil
}

// Len returns the number of tracked clients, including any not yet swept.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// sweep drops every record whose window has elapsed. Caller holds m.mu.
func (m *MemoryLimiter) sweep(now time.Time) {
	for key, rec := range m.records {
		if now.After(rec.resetAt) {
			delete(m.records, key)
		}
	}
}
