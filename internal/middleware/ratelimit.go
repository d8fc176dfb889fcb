package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jordansalagala21/GymTribe/internal/handlers"
	"github.com/jordansalagala21/GymTribe/internal/logging"
)

// Counter is the subset of the redis client the limiter needs.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RateLimiter is a fixed window counter keyed per caller.
type RateLimiter struct {
	counter  Counter
	limit    int
	window   time.Duration
	prefix   string
	keyFunc  func(r *http.Request) string
	failOpen bool
	now      func() time.Time
}

func NewRateLimiter(counter Counter, limit int, window time.Duration, prefix string, keyFunc func(r *http.Request) string, failOpen bool) *RateLimiter {
	if keyFunc == nil {
		keyFunc = GetClientIP
	}
	return &RateLimiter{
		counter:  counter,
		limit:    limit,
		window:   window,
		prefix:   prefix,
		keyFunc:  keyFunc,
		failOpen: failOpen,
		now:      time.Now,
	}
}

// NewMessageRateLimiter limits message sends per authenticated user.
func NewMessageRateLimiter(counter Counter, limit int, window time.Duration) *RateLimiter {
	return NewRateLimiter(counter, limit, window, "ratelimit:messages:", userKey, true)
}

func userKey(r *http.Request) string {
	if userID, ok := handlers.GetUserIDFromContext(r.Context()); ok {
		return userID.String()
	}
	return GetClientIP(r)
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.counter == nil || rl.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := rl.prefix + rl.keyFunc(r)
		allowed, remaining, resetAt, err := rl.isAllowed(r.Context(), key)
		if err != nil {
			logging.Warn("Rate limiter unavailable", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
			if rl.failOpen {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetAt.Unix()))

		if !allowed {
			retry := int(resetAt.Sub(rl.now()).Seconds())
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retry))
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) isAllowed(ctx context.Context, key string) (bool, int, time.Time, error) {
	windowStart := rl.now().Truncate(rl.window)
	resetAt := windowStart.Add(rl.window)
	key = fmt.Sprintf("%s:%d", key, windowStart.Unix())

	count, err := rl.counter.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, resetAt, err
	}
	if count == 1 {
		if err := rl.counter.Expire(ctx, key, rl.window).Err(); err != nil {
			return false, 0, resetAt, err
		}
	}

	remaining := rl.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return int(count) <= rl.limit, remaining, resetAt, nil
}

// GetClientIP returns the caller's address, preferring proxy headers.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
