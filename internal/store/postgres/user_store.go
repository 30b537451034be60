package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/meridianhq/tenantd/internal/models"
	"github.com/meridianhq/tenantd/internal/store"
)

// UserStore implements store.UserStore over the identity mirror table.
// The table is populated by an external sync from the identity provider;
// this store only ever reads it.
type UserStore struct {
	db *DB
}

var _ store.UserStore = (*UserStore)(nil)

// NewUserStore creates a new PostgreSQL-backed user store.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

// Put inserts or replaces a user profile. This is the entry point for the
// identity provider sync; application code only reads the mirror.
func (s *UserStore) Put(ctx context.Context, profile *models.UserProfile) error {
	query := `
		INSERT INTO users (user_id, email, is_staff, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			is_staff = EXCLUDED.is_staff,
			updated_at = now()
	`

	_, err := s.db.q(ctx).Exec(ctx, query, profile.UserID, profile.Email, profile.IsStaff)
	if err != nil {
		return fmt.Errorf("failed to put user: %w", mapPostgresError(err))
	}

	return nil
}

// Get retrieves a user profile by ID.
func (s *UserStore) Get(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	query := `
		SELECT user_id, email, is_staff
		FROM users
		WHERE user_id = $1
	`

	var user models.UserProfile
	err := s.db.q(ctx).QueryRow(ctx, query, userID).Scan(
		&user.UserID,
		&user.Email,
		&user.IsStaff,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}
