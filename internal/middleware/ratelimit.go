package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Counter is the fixed-window store behind RateLimiter. *cache.RedisCache
// satisfies it.
type Counter interface {
	Increment(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
}

// RateLimiter applies a fixed-window rate limit backed by Redis.
type RateLimiter struct {
	counter Counter
	scope   string
	limit   int
	window  time.Duration
}

// NewRateLimiter constructs a RateLimiter with the given limit and window.
// scope separates the counters of limiters mounted on different routes.
func NewRateLimiter(counter Counter, scope string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		counter: counter,
		scope:   scope,
		limit:   limit,
		window:  window,
	}
}

// Limit enforces the rate limit, keyed by client IP and, when available, user ID.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := fmt.Sprintf("ratelimit:%s:%s", rl.scope, clientIP(r))
		if userID, ok := UserIDFromContext(r.Context()); ok && userID != uuid.Nil {
			key = fmt.Sprintf("ratelimit:%s:user:%s", rl.scope, userID.String())
		}

		count, err := rl.counter.Increment(r.Context(), key)
		if err != nil {
			// fail open; the engine has its own guards
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			_ = rl.counter.Expire(r.Context(), key, rl.window)
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		if count > int64(rl.limit) {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			jsonError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.limit-int(count)))

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
