package models

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID           uuid.UUID   `json:"id"`
	SenderID     uuid.UUID   `json:"sender_id"`
	ReceiverID   uuid.UUID   `json:"receiver_id"`
	Body         string      `json:"body"`
	Participants []uuid.UUID `json:"participants"`
	SentAt       time.Time   `json:"sent_at"`
}

// MessageKey is the total order over messages: sent time, then ID.
type MessageKey struct {
	SentAt time.Time
	ID     uuid.UUID
}

func (m Message) Key() MessageKey {
	return MessageKey{SentAt: m.SentAt, ID: m.ID}
}

// After reports whether k sorts strictly after other.
func (k MessageKey) After(other MessageKey) bool {
	if !k.SentAt.Equal(other.SentAt) {
		return k.SentAt.After(other.SentAt)
	}
	return bytes.Compare(k.ID[:], other.ID[:]) > 0
}

func (k MessageKey) IsZero() bool {
	return k.SentAt.IsZero() && k.ID == uuid.Nil
}

// InConversation reports whether m was exchanged between a and b.
func (m Message) InConversation(a, b uuid.UUID) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

type FeedEventKind string

const (
	FeedMessage      FeedEventKind = "message"
	FeedReconnecting FeedEventKind = "reconnecting"
	FeedReconnected  FeedEventKind = "reconnected"
)

// FeedEvent is one item of a live message feed. Live is false for messages
// replayed from history when the feed was opened.
type FeedEvent struct {
	Kind    FeedEventKind `json:"kind"`
	Message *Message      `json:"message,omitempty"`
	Live    bool          `json:"live"`
	Err     error         `json:"-"`
}
