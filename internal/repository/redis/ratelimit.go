package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "chat-relay:ratelimit"

// Scope separates independent counters for the same caller
type Scope string

const (
	// ScopeAPI counts every authenticated request
	ScopeAPI Scope = "api"
	// ScopeExchange counts message exchanges, which cost model tokens
	ScopeExchange Scope = "exchange"
)

// Decision is the outcome of a rate limit check
type Decision struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// RateLimiter counts requests per caller in fixed one-minute windows
type RateLimiter struct {
	client *Client
	limits map[Scope]int
}

// NewRateLimiter creates a rate limiter. The API scope allows requestsPerMinute+burst
// requests per window and the exchange scope allows exchangesPerMinute.
func NewRateLimiter(client *Client, requestsPerMinute, burst, exchangesPerMinute int) *RateLimiter {
	return &RateLimiter{
		client: client,
		limits: map[Scope]int{
			ScopeAPI:      requestsPerMinute + burst,
			ScopeExchange: exchangesPerMinute,
		},
	}
}

func windowKey(scope Scope, key string, window time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%d", keyPrefix, scope, key, window.Unix())
}

// Allow records one request by key in scope. A scope without a positive limit is unlimited.
func (r *RateLimiter) Allow(ctx context.Context, scope Scope, key string) (Decision, error) {
	now := time.Now()
	window := now.Truncate(time.Minute)
	reset := window.Add(time.Minute)

	limit := r.limits[scope]
	if limit <= 0 {
		return Decision{Allowed: true, Remaining: -1, Reset: reset}, nil
	}

	fullKey := windowKey(scope, key, window)
	pipe := r.client.rdb.TxPipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Decision{}, fmt.Errorf("failed to execute rate limit check: %w", err)
	}

	count := int(incr.Val())
	return Decision{
		Allowed:   count <= limit,
		Remaining: max(limit-count, 0),
		Reset:     reset,
	}, nil
}

