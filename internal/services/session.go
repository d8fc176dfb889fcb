package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionDuration matches the lifetime the auth subsystem gives new sessions.
const SessionDuration = 30 * 24 * time.Hour

// SessionStore is the subset of the redis client used to resolve sessions.
type SessionStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// SessionService resolves session tokens issued by the auth subsystem to the
// acting user. Tokens are stored hashed.
type SessionService struct {
	redis SessionStore
}

func NewSessionService(redis SessionStore) *SessionService {
	return &SessionService{redis: redis}
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func sessionKey(token string) string {
	return "session:" + hashToken(token)
}

// Resolve returns the user a token belongs to and slides its expiry.
func (s *SessionService) Resolve(ctx context.Context, token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, ErrSessionNotFound
	}
	key := sessionKey(token)
	val, err := s.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrSessionNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("getting session: %w: %w", ErrStoreUnavailable, err)
	}
	userID, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, ErrSessionNotFound
	}
	if err := s.redis.Expire(ctx, key, SessionDuration).Err(); err != nil {
		return uuid.Nil, fmt.Errorf("refreshing session: %w: %w", ErrStoreUnavailable, err)
	}
	return userID, nil
}
