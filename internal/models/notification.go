package models

import (
	"time"

	"github.com/google/uuid"
)

type AlertKind string

const (
	AlertMessage         AlertKind = "message"
	AlertFriendRequest   AlertKind = "friend_request"
	AlertRequestAccepted AlertKind = "friend_request_accepted"
)

// NotificationAlert is a transient, process-local banner. It is never
// persisted.
type NotificationAlert struct {
	ID        uuid.UUID `json:"id"`
	Kind      AlertKind `json:"kind"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a NotificationAlert) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}
