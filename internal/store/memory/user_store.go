package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/meridianhq/tenantd/internal/models"
	"github.com/meridianhq/tenantd/internal/store"
)

// UserStore implements store.UserStore using in-memory storage. Tests seed
// it with the user profiles the identity provider would supply.
type UserStore struct {
	mu sync.RWMutex

	users map[uuid.UUID]*models.UserProfile // user_id -> UserProfile
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		users: make(map[uuid.UUID]*models.UserProfile),
	}
}

// Put seeds or replaces a user profile. The real store is a read-only
// mirror; this exists so tests can arrange identities.
func (s *UserStore) Put(profile *models.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *profile
	s.users[profile.UserID] = &clone
}

// Get retrieves a user profile by ID.
func (s *UserStore) Get(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[userID]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	clone := *user
	return &clone, nil
}

// exists reports whether a user is present. Used by the membership store
// for referential checks.
func (s *UserStore) exists(userID uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.users[userID]
	return ok
}
