package services

import (
	"context"
	"iter"

	"github.com/google/uuid"

	"github.com/jordansalagala21/GymTribe/internal/models"
)

// NameLookup resolves a user id to a display name.
type NameLookup interface {
	DisplayName(ctx context.Context, id uuid.UUID) (string, error)
}

// FriendServiceInterface defines the contract for friend graph operations.
type FriendServiceInterface interface {
	SendRequest(ctx context.Context, senderID, receiverID uuid.UUID) (*models.FriendRequest, error)
	PendingRequests(ctx context.Context, receiverID uuid.UUID) iter.Seq2[models.PendingRequest, error]
	ListPendingRequests(ctx context.Context, receiverID uuid.UUID) ([]models.PendingRequest, error)
	ListSentRequests(ctx context.Context, senderID uuid.UUID) ([]models.FriendRequest, error)
	Accept(ctx context.Context, requestID, actorID uuid.UUID) (*models.FriendRequest, error)
	Decline(ctx context.Context, requestID, actorID uuid.UUID) (*models.FriendRequest, error)
	Retract(ctx context.Context, requestID, actorID uuid.UUID) error
	ListFriends(ctx context.Context, userID uuid.UUID) ([]models.Friend, error)
	IsFriend(ctx context.Context, userID, peerID uuid.UUID) (bool, error)
	RemoveFriend(ctx context.Context, userID, peerID uuid.UUID) error
	WatchRequests(ctx context.Context, userID uuid.UUID) (*RequestWatch, error)
}

// SuggestionServiceInterface defines the contract for suggestion operations.
type SuggestionServiceInterface interface {
	Rank(ctx context.Context, viewerID uuid.UUID) (*models.SuggestionResult, error)
	SendSuggestionRequest(ctx context.Context, viewerID, candidateID uuid.UUID) (models.SuggestionRequestOutcome, error)
}

// MessageServiceInterface defines the contract for direct messaging.
type MessageServiceInterface interface {
	Send(ctx context.Context, senderID, receiverID uuid.UUID, body string) (*models.Message, error)
	Conversation(ctx context.Context, userID, peerID uuid.UUID) ([]models.Message, error)
	Subscribe(ctx context.Context, userID uuid.UUID) (*Subscription, error)
}

// SessionServiceInterface resolves session tokens to users.
type SessionServiceInterface interface {
	Resolve(ctx context.Context, token string) (uuid.UUID, error)
}

var (
	_ FriendServiceInterface     = (*FriendService)(nil)
	_ SuggestionServiceInterface = (*SuggestionService)(nil)
	_ MessageServiceInterface    = (*MessageService)(nil)
	_ SessionServiceInterface    = (*SessionService)(nil)
	_ NameLookup                 = (*ProfileService)(nil)
)
