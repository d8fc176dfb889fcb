package services

import (
	"errors"
	"fmt"

	"github.com/jordansalagala21/GymTribe/internal/docstore"
)

var (
	ErrInvalidTarget    = errors.New("invalid target user")
	ErrDuplicatePending = errors.New("a pending friend request already exists between these users")
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("not allowed to act on this resource")
	ErrAlreadyResolved  = errors.New("friend request already resolved")
	ErrEmptyBody        = errors.New("message body is empty")
	ErrAlreadyFriends   = errors.New("users are already friends")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// storeError translates a docstore failure into the service taxonomy.
func storeError(action string, err error) error {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return fmt.Errorf("%s: %w", action, ErrNotFound)
	case errors.Is(err, docstore.ErrUnavailable):
		return fmt.Errorf("%s: %w: %w", action, ErrStoreUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", action, err)
	}
}
