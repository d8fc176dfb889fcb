package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jordansalagala21/GymTribe/internal/docstore"
	"github.com/jordansalagala21/GymTribe/internal/models"
)

// SuggestionService ranks people a viewer may want to befriend by shared
// workout preferences. It never writes.
type SuggestionService struct {
	profiles *ProfileService
	friends  *FriendService
}

func NewSuggestionService(profiles *ProfileService, friends *FriendService) *SuggestionService {
	return &SuggestionService{profiles: profiles, friends: friends}
}

// MatchRate is the share of the viewer's preferences the candidate has, as a
// rounded percentage.
func MatchRate(viewer, candidate []models.Tag) int {
	viewerSet := models.UserProfile{Preferences: viewer}.PreferenceSet()
	if len(viewerSet) == 0 {
		return 0
	}
	shared := 0
	for tag := range (models.UserProfile{Preferences: candidate}).PreferenceSet() {
		if _, ok := viewerSet[tag]; ok {
			shared++
		}
	}
	return int(math.Round(100 * float64(shared) / float64(len(viewerSet))))
}

func (s *SuggestionService) Rank(ctx context.Context, viewerID uuid.UUID) (*models.SuggestionResult, error) {
	start := time.Now()
	defer func() { suggestionRankDuration.Observe(time.Since(start).Seconds()) }()

	viewer, err := s.profiles.Get(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("loading viewer profile: %w", err)
	}
	if len(viewer.PreferenceSet()) == 0 {
		return &models.SuggestionResult{
			Candidates: []models.SuggestionCandidate{},
			Reason:     models.SuggestionReasonNoPreferences,
		}, nil
	}

	var (
		friendIDs map[uuid.UUID]struct{}
		sent      []models.FriendRequest
		received  []models.FriendRequest
		pool      []models.UserProfile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		friendIDs, err = s.friends.FriendIDs(gctx, viewerID)
		return err
	})
	g.Go(func() error {
		var err error
		sent, err = s.friends.ListSentRequests(gctx, viewerID)
		return err
	})
	g.Go(func() error {
		var err error
		received, err = s.friends.requestsWhere(gctx,
			docstore.Eq(fieldReceiverID, viewerID.String()),
			docstore.Eq(fieldStatus, string(models.FriendRequestPending)),
		)
		return err
	})
	g.Go(func() error {
		var err error
		pool, err = s.profiles.FindByAnyPreference(gctx, viewer.Preferences)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ranking suggestions: %w", err)
	}

	excluded := map[uuid.UUID]struct{}{viewerID: {}}
	for id := range friendIDs {
		excluded[id] = struct{}{}
	}
	for _, req := range sent {
		if req.Status == models.FriendRequestPending || req.Status == models.FriendRequestAccepted {
			excluded[req.ReceiverID] = struct{}{}
		}
	}
	for _, req := range received {
		excluded[req.SenderID] = struct{}{}
	}

	candidates := make([]models.SuggestionCandidate, 0, len(pool))
	for _, p := range pool {
		if _, skip := excluded[p.ID]; skip {
			continue
		}
		candidates = append(candidates, models.SuggestionCandidate{
			Profile:   p,
			MatchRate: MatchRate(viewer.Preferences, p.Preferences),
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.MatchRate != b.MatchRate {
			return a.MatchRate > b.MatchRate
		}
		if a.Profile.DisplayName != b.Profile.DisplayName {
			return a.Profile.DisplayName < b.Profile.DisplayName
		}
		return a.Profile.ID.String() < b.Profile.ID.String()
	})

	result := &models.SuggestionResult{Candidates: candidates}
	if len(candidates) == 0 {
		result.Reason = models.SuggestionReasonNoCandidates
	}
	return result, nil
}

// SendSuggestionRequest sends a friend request from a suggestion card. A
// request already pending between the two is an outcome, not an error.
func (s *SuggestionService) SendSuggestionRequest(ctx context.Context, viewerID, candidateID uuid.UUID) (models.SuggestionRequestOutcome, error) {
	_, err := s.friends.SendRequest(ctx, viewerID, candidateID)
	if errors.Is(err, ErrDuplicatePending) {
		return models.SuggestionRequestAlreadyPending, nil
	}
	if err != nil {
		return "", err
	}
	return models.SuggestionRequestSent, nil
}
