package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type fakeSessionStore struct {
	values    map[string]string
	getErr    error
	expireErr error
	expired   map[string]time.Duration
}

func (f *fakeSessionStore) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	val, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (f *fakeSessionStore) Expire(_ context.Context, key string, d time.Duration) *redis.BoolCmd {
	if f.expired == nil {
		f.expired = map[string]time.Duration{}
	}
	if f.expireErr != nil {
		return redis.NewBoolResult(false, f.expireErr)
	}
	f.expired[key] = d
	return redis.NewBoolResult(true, nil)
}

func TestSessionService_Resolve(t *testing.T) {
	userID := uuid.New()
	store := &fakeSessionStore{values: map[string]string{sessionKey("tok"): userID.String()}}
	svc := NewSessionService(store)

	got, err := svc.Resolve(context.Background(), "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != userID {
		t.Fatalf("expected %s, got %s", userID, got)
	}
	if store.expired[sessionKey("tok")] != SessionDuration {
		t.Fatal("expected session expiry to slide")
	}
}

func TestSessionService_Resolve_NotFound(t *testing.T) {
	svc := NewSessionService(&fakeSessionStore{values: map[string]string{sessionKey("bad"): "not-a-uuid"}})

	for _, token := range []string{"", "missing", "bad"} {
		if _, err := svc.Resolve(context.Background(), token); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound for %q, got %v", token, err)
		}
	}
}

func TestSessionService_Resolve_RedisDown(t *testing.T) {
	svc := NewSessionService(&fakeSessionStore{getErr: errors.New("connection refused")})

	if _, err := svc.Resolve(context.Background(), "tok"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestSessionService_Resolve_RedisDownOnRefresh(t *testing.T) {
	userID := uuid.New()
	svc := NewSessionService(&fakeSessionStore{
		values:    map[string]string{sessionKey("tok"): userID.String()},
		expireErr: errors.New("i/o timeout"),
	})

	_, err := svc.Resolve(context.Background(), "tok")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected refresh failure not to read as a missing session, got %v", err)
	}
}

func TestSessionKey_HashesToken(t *testing.T) {
	key := sessionKey("secret")
	if key == "session:secret" || len(key) != len("session:")+64 {
		t.Fatalf("expected hashed key, got %q", key)
	}
}
