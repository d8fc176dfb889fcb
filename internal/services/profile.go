package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jordansalagala21/GymTribe/internal/docstore"
	"github.com/jordansalagala21/GymTribe/internal/logging"
	"github.com/jordansalagala21/GymTribe/internal/models"
)

// ProfileService reads profiles written by the profile subsystem. Save exists
// for seeding and tests.
type ProfileService struct {
	store docstore.Store
}

func NewProfileService(store docstore.Store) *ProfileService {
	return &ProfileService{store: store}
}

func (s *ProfileService) Get(ctx context.Context, id uuid.UUID) (*models.UserProfile, error) {
	doc, err := s.store.Get(ctx, collectionProfiles, id.String())
	if err != nil {
		return nil, storeError("getting profile", err)
	}
	profile, err := profileFromDoc(*doc)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *ProfileService) Save(ctx context.Context, profile models.UserProfile) error {
	fields, err := encode(profileRecord{
		DisplayName: profile.DisplayName,
		Preferences: profile.Preferences,
		PhotoRef:    profile.PhotoRef,
	})
	if err != nil {
		return err
	}
	if _, err := s.store.Put(ctx, collectionProfiles, profile.ID.String(), fields); err != nil {
		return storeError("saving profile", err)
	}
	return nil
}

// FindByAnyPreference returns every profile sharing at least one tag.
func (s *ProfileService) FindByAnyPreference(ctx context.Context, tags []models.Tag) ([]models.UserProfile, error) {
	if len(tags) == 0 {
		return []models.UserProfile{}, nil
	}
	values := make([]string, len(tags))
	for i, t := range tags {
		values[i] = string(t)
	}
	docs, err := s.store.Query(ctx, docstore.Query{
		Collection: collectionProfiles,
		Where:      []docstore.Predicate{docstore.ContainsAny(fieldPreferences, values...)},
	})
	if err != nil {
		return nil, storeError("finding profiles by preference", err)
	}
	profiles := make([]models.UserProfile, 0, len(docs))
	for _, doc := range docs {
		p, err := profileFromDoc(doc)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// DisplayName implements NameLookup.
func (s *ProfileService) DisplayName(ctx context.Context, id uuid.UUID) (string, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return p.DisplayName, nil
}

// displayName falls back when the profile is missing or unreadable.
func displayName(ctx context.Context, names NameLookup, id uuid.UUID, fallback string) string {
	if names == nil {
		return fallback
	}
	name, err := names.DisplayName(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logWarn("Display name lookup failed", id, err)
		}
		return fallback
	}
	if name == "" {
		return fallback
	}
	return name
}

func logWarn(msg string, id uuid.UUID, err error) {
	logging.Warn(msg, map[string]interface{}{
		"user_id": id.String(),
		"error":   err.Error(),
	})
}
