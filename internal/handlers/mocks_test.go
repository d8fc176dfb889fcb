package handlers

import (
	"context"
	"iter"

	"github.com/google/uuid"

	"github.com/jordansalagala21/GymTribe/internal/models"
	"github.com/jordansalagala21/GymTribe/internal/services"
)

type mockFriendService struct {
	SendRequestFunc         func(ctx context.Context, senderID, receiverID uuid.UUID) (*models.FriendRequest, error)
	ListPendingRequestsFunc func(ctx context.Context, receiverID uuid.UUID) ([]models.PendingRequest, error)
	ListSentRequestsFunc    func(ctx context.Context, senderID uuid.UUID) ([]models.FriendRequest, error)
	AcceptFunc              func(ctx context.Context, requestID, actorID uuid.UUID) (*models.FriendRequest, error)
	DeclineFunc             func(ctx context.Context, requestID, actorID uuid.UUID) (*models.FriendRequest, error)
	RetractFunc             func(ctx context.Context, requestID, actorID uuid.UUID) error
	ListFriendsFunc         func(ctx context.Context, userID uuid.UUID) ([]models.Friend, error)
	RemoveFriendFunc        func(ctx context.Context, userID, peerID uuid.UUID) error
}

func (m *mockFriendService) SendRequest(ctx context.Context, senderID, receiverID uuid.UUID) (*models.FriendRequest, error) {
	if m.SendRequestFunc != nil {
		return m.SendRequestFunc(ctx, senderID, receiverID)
	}
	return &models.FriendRequest{}, nil
}

func (m *mockFriendService) PendingRequests(ctx context.Context, receiverID uuid.UUID) iter.Seq2[models.PendingRequest, error] {
	return func(yield func(models.PendingRequest, error) bool) {
		reqs, err := m.ListPendingRequests(ctx, receiverID)
		if err != nil {
			yield(models.PendingRequest{}, err)
			return
		}
		for _, r := range reqs {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func (m *mockFriendService) ListPendingRequests(ctx context.Context, receiverID uuid.UUID) ([]models.PendingRequest, error) {
	if m.ListPendingRequestsFunc != nil {
		return m.ListPendingRequestsFunc(ctx, receiverID)
	}
	return []models.PendingRequest{}, nil
}

func (m *mockFriendService) ListSentRequests(ctx context.Context, senderID uuid.UUID) ([]models.FriendRequest, error) {
	if m.ListSentRequestsFunc != nil {
		return m.ListSentRequestsFunc(ctx, senderID)
	}
	return []models.FriendRequest{}, nil
}

func (m *mockFriendService) Accept(ctx context.Context, requestID, actorID uuid.UUID) (*models.FriendRequest, error) {
	if m.AcceptFunc != nil {
		return m.AcceptFunc(ctx, requestID, actorID)
	}
	return &models.FriendRequest{}, nil
}

func (m *mockFriendService) Decline(ctx context.Context, requestID, actorID uuid.UUID) (*models.FriendRequest, error) {
	if m.DeclineFunc != nil {
		return m.DeclineFunc(ctx, requestID, actorID)
	}
	return &models.FriendRequest{}, nil
}

func (m *mockFriendService) Retract(ctx context.Context, requestID, actorID uuid.UUID) error {
	if m.RetractFunc != nil {
		return m.RetractFunc(ctx, requestID, actorID)
	}
	return nil
}

func (m *mockFriendService) ListFriends(ctx context.Context, userID uuid.UUID) ([]models.Friend, error) {
	if m.ListFriendsFunc != nil {
		return m.ListFriendsFunc(ctx, userID)
	}
	return []models.Friend{}, nil
}

func (m *mockFriendService) IsFriend(ctx context.Context, userID, peerID uuid.UUID) (bool, error) {
	return false, nil
}

func (m *mockFriendService) RemoveFriend(ctx context.Context, userID, peerID uuid.UUID) error {
	if m.RemoveFriendFunc != nil {
		return m.RemoveFriendFunc(ctx, userID, peerID)
	}
	return nil
}

func (m *mockFriendService) WatchRequests(ctx context.Context, userID uuid.UUID) (*services.RequestWatch, error) {
	return nil, services.ErrStoreUnavailable
}

type mockSuggestionService struct {
	RankFunc                  func(ctx context.Context, viewerID uuid.UUID) (*models.SuggestionResult, error)
	SendSuggestionRequestFunc func(ctx context.Context, viewerID, candidateID uuid.UUID) (models.SuggestionRequestOutcome, error)
}

func (m *mockSuggestionService) Rank(ctx context.Context, viewerID uuid.UUID) (*models.SuggestionResult, error) {
	if m.RankFunc != nil {
		return m.RankFunc(ctx, viewerID)
	}
	return &models.SuggestionResult{Candidates: []models.SuggestionCandidate{}}, nil
}

func (m *mockSuggestionService) SendSuggestionRequest(ctx context.Context, viewerID, candidateID uuid.UUID) (models.SuggestionRequestOutcome, error) {
	if m.SendSuggestionRequestFunc != nil {
		return m.SendSuggestionRequestFunc(ctx, viewerID, candidateID)
	}
	return models.SuggestionRequestSent, nil
}

type mockMessageService struct {
	SendFunc         func(ctx context.Context, senderID, receiverID uuid.UUID, body string) (*models.Message, error)
	ConversationFunc func(ctx context.Context, userID, peerID uuid.UUID) ([]models.Message, error)
}

func (m *mockMessageService) Send(ctx context.Context, senderID, receiverID uuid.UUID, body string) (*models.Message, error) {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, senderID, receiverID, body)
	}
	return &models.Message{}, nil
}

func (m *mockMessageService) Conversation(ctx context.Context, userID, peerID uuid.UUID) ([]models.Message, error) {
	if m.ConversationFunc != nil {
		return m.ConversationFunc(ctx, userID, peerID)
	}
	return []models.Message{}, nil
}

func (m *mockMessageService) Subscribe(ctx context.Context, userID uuid.UUID) (*services.Subscription, error) {
	return nil, services.ErrStoreUnavailable
}
