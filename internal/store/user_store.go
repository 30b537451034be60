package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/meridianhq/tenantd/internal/models"
)

// ErrUserNotFound is returned when a referenced user does not exist in the
// identity mirror.
var ErrUserNotFound = errors.New("user not found")

// UserStore provides read-only access to the identity provider's user
// records. This service never creates users; the mirror exists so membership
// writes can verify the referenced user and so the role resolver can read
// the staff flag.
type UserStore interface {
	// Get retrieves a user profile by ID.
	// Returns ErrUserNotFound if the user doesn't exist.
	Get(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error)
}
