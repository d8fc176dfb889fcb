package models

import (
	"time"

	"github.com/google/uuid"
)

type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestDeclined FriendRequestStatus = "declined"
)

type FriendRequest struct {
	ID         uuid.UUID           `json:"id"`
	SenderID   uuid.UUID           `json:"sender_id"`
	ReceiverID uuid.UUID           `json:"receiver_id"`
	Status     FriendRequestStatus `json:"status"`
	CreatedAt  time.Time           `json:"created_at"`
}

// PendingRequest is an incoming request annotated for display.
type PendingRequest struct {
	FriendRequest
	SenderName string `json:"sender_name"`
}

// Friendship is one directed half of a friendship edge.
type Friendship struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	PeerID    uuid.UUID `json:"peer_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Friend is a friendship resolved against the peer's profile.
type Friend struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	PhotoRef    *string   `json:"photo_ref,omitempty"`
	Since       time.Time `json:"since"`
}

type RequestEventKind string

const (
	RequestReceived RequestEventKind = "received"
	RequestAccepted RequestEventKind = "accepted"
)

// RequestEvent is a friend request transition observed by a live watch.
type RequestEvent struct {
	Kind    RequestEventKind `json:"kind"`
	Request FriendRequest    `json:"request"`
	// PeerName is the display name of the other party.
	PeerName string `json:"peer_name"`
}
