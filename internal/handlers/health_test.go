package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) Health(ctx context.Context) error {
	return m.err
}

func TestHealthHandler_Health(t *testing.T) {
	down := errors.New("connection refused")
	tests := []struct {
		name        string
		store       error
		redis       error
		wantCode    int
		wantStatus  string
		wantChecked string
	}{
		{"all healthy", nil, nil, http.StatusOK, "healthy", "healthy"},
		{"store down", down, nil, http.StatusServiceUnavailable, "unhealthy", "unhealthy: connection refused"},
		{"redis down", nil, down, http.StatusServiceUnavailable, "unhealthy", "healthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(&mockHealthChecker{err: tt.store}, &mockHealthChecker{err: tt.redis})
			rr := httptest.NewRecorder()
			handler.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rr.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d", tt.wantCode, rr.Code)
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Fatalf("expected application/json, got %q", ct)
			}
			var response HealthResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if response.Status != tt.wantStatus {
				t.Errorf("expected status %q, got %q", tt.wantStatus, response.Status)
			}
			if response.Checks["store"] != tt.wantChecked {
				t.Errorf("expected store check %q, got %q", tt.wantChecked, response.Checks["store"])
			}
			if _, err := time.Parse(time.RFC3339, response.Timestamp); err != nil {
				t.Errorf("expected RFC3339 timestamp, got %q", response.Timestamp)
			}
		})
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	handler := NewHealthHandler(&mockHealthChecker{}, &mockHealthChecker{})
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ready" {
		t.Fatalf("expected ready, got %d %q", rr.Code, rr.Body.String())
	}

	handler = NewHealthHandler(&mockHealthChecker{}, &mockHealthChecker{err: errors.New("timeout")})
	rr = httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "not ready") {
		t.Fatalf("expected not ready, got %d %q", rr.Code, rr.Body.String())
	}
}

func TestHealthHandler_Live(t *testing.T) {
	handler := NewHealthHandler(&mockHealthChecker{err: errors.New("down")}, &mockHealthChecker{})
	rr := httptest.NewRecorder()
	handler.Live(rr, httptest.NewRequest(http.MethodGet, "/live", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "alive" {
		t.Fatalf("expected alive regardless of dependencies, got %d %q", rr.Code, rr.Body.String())
	}
}
