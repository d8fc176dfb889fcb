package services

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jordansalagala21/GymTribe/internal/docstore"
	"github.com/jordansalagala21/GymTribe/internal/models"
)

const (
	collectionProfiles       = "profiles"
	collectionFriendRequests = "friendRequests"
	collectionFriendships    = "friendships"
	collectionPendingPairs   = "pendingPairs"
	collectionMessages       = "messages"
)

const (
	fieldSenderID     = "senderId"
	fieldReceiverID   = "receiverId"
	fieldStatus       = "status"
	fieldUserID       = "userId"
	fieldPeerID       = "peerId"
	fieldPreferences  = "preferences"
	fieldParticipants = "participants"
)

var (
	friendshipNamespace = uuid.MustParse("6f1c5c2e-8f0b-4d7e-9a51-2b0d3c7e4a10")
	pairNamespace       = uuid.MustParse("a3d9e2b4-1c6f-4e8a-b7d2-5f0e9c1a3b64")
)

// friendshipID is deterministic so materializing an edge twice overwrites
// instead of duplicating.
func friendshipID(user, peer uuid.UUID) string {
	return uuid.NewSHA1(friendshipNamespace, []byte(user.String()+":"+peer.String())).String()
}

// pairID names the lock document that allows one pending request per
// unordered pair.
func pairID(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if x > y {
		x, y = y, x
	}
	return uuid.NewSHA1(pairNamespace, []byte(x+":"+y)).String()
}

type profileRecord struct {
	DisplayName string       `json:"displayName"`
	Preferences []models.Tag `json:"preferences"`
	PhotoRef    *string      `json:"photoRef,omitempty"`
}

type requestRecord struct {
	SenderID   uuid.UUID                  `json:"senderId"`
	ReceiverID uuid.UUID                  `json:"receiverId"`
	Status     models.FriendRequestStatus `json:"status"`
}

type pairRecord struct {
	RequestID  uuid.UUID `json:"requestId"`
	SenderID   uuid.UUID `json:"senderId"`
	ReceiverID uuid.UUID `json:"receiverId"`
}

type friendshipRecord struct {
	UserID uuid.UUID `json:"userId"`
	PeerID uuid.UUID `json:"peerId"`
}

type messageRecord struct {
	SenderID     uuid.UUID   `json:"senderId"`
	ReceiverID   uuid.UUID   `json:"receiverId"`
	Body         string      `json:"body"`
	Participants []uuid.UUID `json:"participants"`
}

func encode(v any) (docstore.Fields, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	var fields docstore.Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return fields, nil
}

func decode(doc docstore.Document, v any) error {
	data, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("decoding %s/%s: %w", doc.Collection, doc.ID, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s/%s: %w", doc.Collection, doc.ID, err)
	}
	return nil
}

func parseDocID(doc docstore.Document) (uuid.UUID, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parsing id of %s/%s: %w", doc.Collection, doc.ID, err)
	}
	return id, nil
}

func profileFromDoc(doc docstore.Document) (models.UserProfile, error) {
	var rec profileRecord
	if err := decode(doc, &rec); err != nil {
		return models.UserProfile{}, err
	}
	id, err := parseDocID(doc)
	if err != nil {
		return models.UserProfile{}, err
	}
	return models.UserProfile{
		ID:          id,
		DisplayName: rec.DisplayName,
		Preferences: rec.Preferences,
		PhotoRef:    rec.PhotoRef,
	}, nil
}

func requestFromDoc(doc docstore.Document) (models.FriendRequest, error) {
	var rec requestRecord
	if err := decode(doc, &rec); err != nil {
		return models.FriendRequest{}, err
	}
	id, err := parseDocID(doc)
	if err != nil {
		return models.FriendRequest{}, err
	}
	return models.FriendRequest{
		ID:         id,
		SenderID:   rec.SenderID,
		ReceiverID: rec.ReceiverID,
		Status:     rec.Status,
		CreatedAt:  doc.CreatedAt,
	}, nil
}

func friendshipFromDoc(doc docstore.Document) (models.Friendship, error) {
	var rec friendshipRecord
	if err := decode(doc, &rec); err != nil {
		return models.Friendship{}, err
	}
	id, err := parseDocID(doc)
	if err != nil {
		return models.Friendship{}, err
	}
	return models.Friendship{ID: id, UserID: rec.UserID, PeerID: rec.PeerID, CreatedAt: doc.CreatedAt}, nil
}

func messageFromDoc(doc docstore.Document) (models.Message, error) {
	var rec messageRecord
	if err := decode(doc, &rec); err != nil {
		return models.Message{}, err
	}
	id, err := parseDocID(doc)
	if err != nil {
		return models.Message{}, err
	}
	return models.Message{
		ID:           id,
		SenderID:     rec.SenderID,
		ReceiverID:   rec.ReceiverID,
		Body:         rec.Body,
		Participants: rec.Participants,
		SentAt:       doc.CreatedAt,
	}, nil
}
