package models

import "github.com/google/uuid"

// Tag is a workout preference a user can pick on their profile.
type Tag string

// PreferenceTags lists the tags offered by the profile editor. The core does
// not reject tags outside this list.
var PreferenceTags = []Tag{
	"Cardio",
	"Swimming",
	"Push-Pull-Legs (PPL)",
	"Arnold Split",
	"Strength Training",
	"Yoga",
	"CrossFit",
	"HIIT",
	"Cycling",
	"Functional Training",
	"Athletic Training",
}

// UserProfile is owned by the profile subsystem and read-only to the social
// graph.
type UserProfile struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Preferences []Tag     `json:"preferences"`
	PhotoRef    *string   `json:"photo_ref,omitempty"`
}

// PreferenceSet returns the profile's preferences with duplicates removed.
func (p UserProfile) PreferenceSet() map[Tag]struct{} {
	set := make(map[Tag]struct{}, len(p.Preferences))
	for _, t := range p.Preferences {
		set[t] = struct{}{}
	}
	return set
}
