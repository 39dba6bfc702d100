package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

// DefaultKeyPrefix namespaces quota keys in shared stores.
const DefaultKeyPrefix = "grove_relay"

// StoreLimiter adapts a ulule/limiter store so quota can be shared across relay instances.
// Windows are fixed and start with a client's first request, like MemoryLimiter. Unlike
// MemoryLimiter, the store keeps counting denied requests; clients still see Remaining=0.
type StoreLimiter struct {
	store  limiter.Store
	client *redis.Client
	now    func() time.Time
}

// NewStoreLimiter wraps an existing ulule/limiter store.
func NewStoreLimiter(store limiter.Store) *StoreLimiter {
	return &StoreLimiter{store: store, now: time.Now}
}

// NewRedisLimiter connects to Redis and returns a limiter backed by it.
func NewRedisLimiter(ctx context.Context, redisURL string) (*StoreLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: DefaultKeyPrefix})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create Redis rate limit store: %w", err)
	}

	return &StoreLimiter{store: store, client: client, now: time.Now}, nil
}

// Check implements Limiter.
func (s *StoreLimiter) Check(ctx context.Context, identifier string, maxRequests int, window time.Duration) (Decision, error) {
	lctx, err := s.store.Get(ctx, normalizeIdentifier(identifier), rateFor(maxRequests, window))
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit store get: %w", err)
	}

	resetAt := time.Unix(lctx.Reset, 0)
	if lctx.Reached {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfterSeconds(resetAt, s.now()),
		}, nil
	}
	return Decision{
		Allowed:   true,
		Remaining: int(lctx.Remaining),
		ResetAt:   resetAt,
	}, nil
}

// Status implements Limiter.
func (s *StoreLimiter) Status(ctx context.Context, identifier string, maxRequests int) (Status, error) {
	// The window length only matters for keys that do not exist yet, and those report no reset time.
	lctx, err := s.store.Peek(ctx, normalizeIdentifier(identifier), rateFor(maxRequests, time.Second))
	if err != nil {
		return Status{}, fmt.Errorf("rate limit store peek: %w", err)
	}
	if lctx.Remaining >= int64(maxRequests) {
		return Status{Remaining: maxRequests}, nil
	}
	resetAt := time.Unix(lctx.Reset, 0)
	return Status{Remaining: int(lctx.Remaining), ResetAt: &resetAt}, nil
}

// Reset clears identifier's window.
func (s *StoreLimiter) Reset(ctx context.Context, identifier string) error {
	if _, err := s.store.Reset(ctx, normalizeIdentifier(identifier), rateFor(1, time.Second)); err != nil {
		return fmt.Errorf("rate limit store reset: %w", err)
	}
	return nil
}

// Ping checks the backing Redis connection. Stores without one are always reachable.
func (s *StoreLimiter) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis connection, if any.
func (s *StoreLimiter) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

func rateFor(maxRequests int, window time.Duration) limiter.Rate {
	return limiter.Rate{Period: window, Limit: int64(maxRequests)}
}
