package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryLimiter_QuotaMonotonicity(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := NewMemoryLimiter(WithClock(clock.Now))
	ctx := context.Background()
	start := clock.Now()

	for i := 1; i <= 5; i++ {
		d, err := l.Check(ctx, "1.2.3.4", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d should be allowed", i)
		assert.Equal(t, 5-i, d.Remaining)
		assert.Zero(t, d.RetryAfter)
		assert.Equal(t, start.Add(time.Minute), d.ResetAt)
		clock.Advance(time.Second)
	}

	for i := 0; i < 3; i++ {
		d, err := l.Check(ctx, "1.2.3.4", 5, time.Minute)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Zero(t, d.Remaining)
		assert.Positive(t, d.RetryAfter)
	}
}

func TestMemoryLimiter_DeniedDoesNotIncrement(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := NewMemoryLimiter(WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := l.Check(ctx, "client", 2, time.Minute)
		require.NoError(t, err)
	}

	l.mu.Lock()
	count := l.records["client"].count
	l.mu.Unlock()
	assert.Equal(t, 2, count)
}

func TestMemoryLimiter_RetryAfterRoundsUp(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := NewMemoryLimiter(WithClock(clock.Now))
	ctx := context.Background()

	_, err := l.Check(ctx, "client", 1, 10*time.Second)
	require.NoError(t, err)

	clock.Advance(2500 * time.Millisecond)
	d, err := l.Check(ctx, "client", 1, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 8, d.RetryAfter)

	// Exactly at the reset instant the window is still active; retry is never zero.
	clock.Advance(7500 * time.Millisecond)
	d, err = l.Check(ctx, "client", 1, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 1, d.RetryAfter)
}

func TestMemoryLimiter_WindowReset(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := NewMemoryLimiter(WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Check(ctx, "client", 3, time.Hour)
		require.NoError(t, err)
	}
	d, err := l.Check(ctx, "client", 3, time.Hour)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	clock.Advance(time.Hour + time.Millisecond)

	d, err = l.Check(ctx, "client", 3, time.Hour)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining)
	assert.Equal(t, clock.Now().Add(time.Hour), d.ResetAt)
}

func TestMemoryLimiter_IndependentIdentifiers(t *testing.T) {
	t.Parallel()

	l := NewMemoryLimiter()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := l.Check(ctx, "a", 2, time.Minute)
		require.NoError(t, err)
	}
	denied, err := l.Check(ctx, "a", 2, time.Minute)
	require.NoError(t, err)
	require.False(t, denied.Allowed)

	d, err := l.Check(ctx, "b", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
}

func TestMemoryLimiter_EmptyIdentifierIsUnknown(t *testing.T) {
	t.Parallel()

	l := NewMemoryLimiter()
	ctx := context.Background()

	_, err := l.Check(ctx, "", 5, time.Minute)
	require.NoError(t, err)

	st, err := l.Status(ctx, UnknownIdentifier, 5)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Remaining)
}

func TestMemoryLimiter_StatusIsReadOnly(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := NewMemoryLimiter(WithClock(clock.Now))
	ctx := context.Background()

	st, err := l.Status(ctx, "client", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Remaining)
	assert.Nil(t, st.ResetAt)
	assert.Zero(t, l.Len(), "status must not create records")

	first, err := l.Check(ctx, "client", 3, time.Minute)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		st, err = l.Status(ctx, "client", 3)
		require.NoError(t, err)
		assert.Equal(t, 2, st.Remaining)
		require.NotNil(t, st.ResetAt)
		assert.Equal(t, first.ResetAt, *st.ResetAt)
	}

	second, err := l.Check(ctx, "client", 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Remaining)
	assert.Equal(t, first.ResetAt, second.ResetAt)
}

func TestMemoryLimiter_StatusAfterExpiry(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := NewMemoryLimiter(WithClock(clock.Now))
	ctx := context.Background()

	_, err := l.Check(ctx, "client", 3, time.Minute)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	st, err := l.Status(ctx, "client", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Remaining)
	assert.Nil(t, st.ResetAt)
	assert.Equal(t, 1, l.Len(), "status leaves expired records for the next check to sweep")
}

func TestMemoryLimiter_SweepsExpiredRecords(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := NewMemoryLimiter(WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_, err := l.Check(ctx, fmt.Sprintf("10.0.0.%d", i), 5, time.Minute)
		require.NoError(t, err)
	}
	require.Equal(t, 100, l.Len())

	clock.Advance(time.Minute + time.Second)
	_, err := l.Check(ctx, "10.0.1.1", 5, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, l.Len())
}

func TestMemoryLimiter_ConcurrentChecksNeverExceedQuota(t *testing.T) {
	t.Parallel()

	l := NewMemoryLimiter()
	ctx := context.Background()

	const workers = 50
	const maxRequests = 20

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Check(ctx, "shared", maxRequests, time.Minute)
			if err != nil || !d.Allowed {
				return
			}
			mu.Lock()
			allowed++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, maxRequests, allowed)
}

func TestRetryAfterSeconds(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		delta time.Duration
		want  int
	}{
		{"whole seconds", 30 * time.Second, 30},
		{"fraction rounds up", 30*time.Second + time.Millisecond, 31},
		{"sub-second", 10 * time.Millisecond, 1},
		{"zero", 0, 1},
		{"past", -time.Second, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, retryAfterSeconds(now.Add(tt.delta), now))
		})
	}
}

func TestFormatResetTime(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2024, 5, 1, 14, 30, 0, 5_000_000, loc)
	assert.Equal(t, "2024-05-01T12:30:00.005Z", FormatResetTime(ts))
}
