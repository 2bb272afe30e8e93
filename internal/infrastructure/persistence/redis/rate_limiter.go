package redis

import (
	"context"
	"log/slog"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiter is a fixed-window rate limiter backed by Redis INCR with a
// TTL on the window key. Counters are shared across instances, so the limit
// holds for a horizontally scaled deployment.
//
// The limiter fails open: when Redis is unreachable the request is allowed.
// Shedding legitimate traffic because the counter store is down would turn
// a cache outage into an API outage.
type RateLimiter struct {
	cache  *Cache
	limit  int64
	window time.Duration
	logger *slog.Logger
}

// NewRateLimiter creates a rate limiter allowing limit requests per window
// per key.
func NewRateLimiter(cache *Cache, limit int, window time.Duration, logger *slog.Logger) *RateLimiter {
	if window <= 0 {
		window = TTLRateLimitWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		cache:  cache,
		limit:  int64(limit),
		window: window,
		logger: logger,
	}
}

// Allow reports whether the client identified by key may proceed.
func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	if rl.limit <= 0 {
		return true
	}

	count, err := rl.cache.Incr(ctx, RateLimitKey(key), rl.window)
	if err != nil {
		rl.logger.Warn("rate limiter unavailable, allowing request",
			"key", key,
			"error", err,
		)
		return true
	}

	return count <= rl.limit
}
