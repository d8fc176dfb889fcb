package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jordansalagala21/GymTribe/internal/handlers"
)

type fakeCounter struct {
	mu      sync.Mutex
	counts  map[string]int64
	expires map[string]time.Duration
	err     error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: make(map[string]int64), expires: make(map[string]time.Duration)}
}

func (f *fakeCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeCounter) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expires[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiter_Middleware_NilCounter(t *testing.T) {
	limiter := NewRateLimiter(nil, 10, time.Hour, "test:", func(r *http.Request) string {
		return "test-key"
	}, true)

	rr := httptest.NewRecorder()
	limiter.Middleware(okHandler()).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("expected status OK, got %d", rr.Code)
	}
}

func TestRateLimiter_Middleware_LimitsPerKey(t *testing.T) {
	counter := newFakeCounter()
	limiter := NewRateLimiter(counter, 2, time.Minute, "test:", func(r *http.Request) string {
		return r.Header.Get("X-Key")
	}, true)
	limiter.now = func() time.Time { return time.Date(2026, 5, 1, 7, 0, 30, 0, time.UTC) }
	handler := limiter.Middleware(okHandler())

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/messages", nil)
		req.Header.Set("X-Key", key)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	for i := range 2 {
		if rr := send("a"); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i, rr.Code)
		}
	}
	rr := send("a")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("expected Retry-After 30, got %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected no remaining requests, got %q", got)
	}

	if rr := send("b"); rr.Code != http.StatusOK {
		t.Fatalf("expected other key to pass, got %d", rr.Code)
	}
	for key, ttl := range counter.expires {
		if ttl != time.Minute {
			t.Fatalf("expected %s to expire after a minute, got %s", key, ttl)
		}
	}
}

func TestRateLimiter_Middleware_CounterError(t *testing.T) {
	tests := []struct {
		name     string
		failOpen bool
		status   int
	}{
		{"fail open", true, http.StatusOK},
		{"fail closed", false, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := newFakeCounter()
			counter.err = errors.New("connection refused")
			limiter := NewRateLimiter(counter, 1, time.Minute, "test:", nil, tt.failOpen)

			rr := httptest.NewRecorder()
			limiter.Middleware(okHandler()).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
			if rr.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rr.Code)
			}
		})
	}
}

func TestMessageRateLimiter_KeysByUser(t *testing.T) {
	counter := newFakeCounter()
	limiter := NewMessageRateLimiter(counter, 1, time.Minute)
	handler := limiter.Middleware(okHandler())
	userID := uuid.New()

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest("POST", "/api/messages", nil)
		req = req.WithContext(handlers.SetUserIDInContext(req.Context(), userID))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != want {
			t.Fatalf("request %d: expected status %d, got %d", i, want, rr.Code)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		remote   string
		expected string
	}{
		{
			name:     "X-Forwarded-For Single",
			headers:  map[string]string{"X-Forwarded-For": "10.0.0.1"},
			remote:   "192.168.1.1:1234",
			expected: "10.0.0.1",
		},
		{
			name:     "X-Forwarded-For Multiple",
			headers:  map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"},
			remote:   "192.168.1.1:1234",
			expected: "10.0.0.1",
		},
		{
			name:     "X-Real-IP",
			headers:  map[string]string{"X-Real-IP": "10.0.0.2"},
			remote:   "192.168.1.1:1234",
			expected: "10.0.0.2",
		},
		{
			name:     "No Headers",
			headers:  map[string]string{},
			remote:   "192.168.1.1:1234",
			expected: "192.168.1.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			req.RemoteAddr = tt.remote

			if ip := GetClientIP(req); ip != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, ip)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, http.StatusTooManyRequests, "Rate limit exceeded")

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %q", ct)
	}
	if body := rr.Body.String(); body != "{\"error\":\"Rate limit exceeded\"}\n" {
		t.Fatalf("unexpected body %q", body)
	}
}
