package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/meridianhq/tenantd/internal/models"
	"github.com/meridianhq/tenantd/internal/store"
	"github.com/rs/zerolog/log"
)

// MembershipStore implements store.MembershipStore using PostgreSQL.
//
// Mutations that can violate the ownership invariant run inside a
// transaction that first takes a row lock on the tenant, so concurrent
// membership mutations for the same tenant serialize and two concurrent
// removals of the final two owners cannot both succeed.
type MembershipStore struct {
	db *DB
}

var _ store.MembershipStore = (*MembershipStore)(nil)

// NewMembershipStore creates a new PostgreSQL-backed membership store.
func NewMembershipStore(db *DB) *MembershipStore {
	return &MembershipStore{db: db}
}

// GetTenantMembership retrieves a user's tenant-level membership.
func (s *MembershipStore) GetTenantMembership(ctx context.Context, tenantID, userID uuid.UUID) (*models.TenantMembership, error) {
	query := `
		SELECT tenant_id, user_id, roles, created_at, updated_at
		FROM tenant_memberships
		WHERE tenant_id = $1 AND user_id = $2
	`

	m, err := scanTenantMembership(s.db.q(ctx).QueryRow(ctx, query, tenantID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to get tenant membership: %w", err)
	}

	return m, nil
}

// ListForUser returns all tenant memberships held by a user.
func (s *MembershipStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.TenantMembership, error) {
	query := `
		SELECT tenant_id, user_id, roles, created_at, updated_at
		FROM tenant_memberships
		WHERE user_id = $1
		ORDER BY created_at
	`
	return s.listTenantMemberships(ctx, query, userID)
}

// ListForTenant returns all tenant memberships within a tenant.
func (s *MembershipStore) ListForTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.TenantMembership, error) {
	query := `
		SELECT tenant_id, user_id, roles, created_at, updated_at
		FROM tenant_memberships
		WHERE tenant_id = $1
		ORDER BY created_at
	`
	return s.listTenantMemberships(ctx, query, tenantID)
}

func (s *MembershipStore) listTenantMemberships(ctx context.Context, query string, arg any) ([]*models.TenantMembership, error) {
	rows, err := s.db.q(ctx).Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*models.TenantMembership
	for rows.Next() {
		m, err := scanTenantMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant membership: %w", err)
		}
		memberships = append(memberships, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenant memberships: %w", err)
	}

	return memberships, nil
}

// UpsertTenantMembership inserts or replaces a tenant membership. Replacing
// an existing member's role set can strip an owner label, so the write is
// guarded by the ownership invariant like RemoveTenantMembership.
func (s *MembershipStore) UpsertTenantMembership(ctx context.Context, m *models.TenantMembership) error {
	query := `
		INSERT INTO tenant_memberships (
			tenant_id, user_id, roles, created_at, updated_at
		) VALUES (
			$1, $2, $3, now(), now()
		)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			roles = EXCLUDED.roles,
			updated_at = now()
	`

	err := s.withTenantLock(ctx, m.TenantID, func(tx querier) error {
		heldOwner, err := holdsOwner(ctx, tx, m.TenantID, m.UserID)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, query, m.TenantID, m.UserID, m.Roles)
		if err != nil {
			mapped := mapPostgresError(err)
			if errors.Is(mapped, store.ErrUserNotFound) {
				return mapped
			}
			return fmt.Errorf("failed to upsert tenant membership: %w", mapped)
		}

		if heldOwner {
			return ensureOwnersRemain(ctx, tx, m.TenantID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Debug().
		Str("tenant_id", m.TenantID.String()).
		Str("user_id", m.UserID.String()).
		Strs("roles", m.Roles).
		Msg("Upserted tenant membership")

	return nil
}

// RemoveTenantMembership deletes a user's tenant membership and their
// company memberships in that tenant, guarded by the ownership invariant.
func (s *MembershipStore) RemoveTenantMembership(ctx context.Context, tenantID, userID uuid.UUID) error {
	return s.withTenantLock(ctx, tenantID, func(tx querier) error {
		heldOwner, err := holdsOwner(ctx, tx, tenantID, userID)
		if err != nil {
			return err
		}

		result, err := tx.Exec(ctx, `
			DELETE FROM tenant_memberships
			WHERE tenant_id = $1 AND user_id = $2
		`, tenantID, userID)
		if err != nil {
			return fmt.Errorf("failed to delete tenant membership: %w", mapPostgresError(err))
		}
		if result.RowsAffected() == 0 {
			return store.ErrMembershipNotFound
		}

		_, err = tx.Exec(ctx, `
			DELETE FROM company_memberships
			WHERE tenant_id = $1 AND user_id = $2
		`, tenantID, userID)
		if err != nil {
			return fmt.Errorf("failed to delete company memberships: %w", mapPostgresError(err))
		}

		if heldOwner {
			return ensureOwnersRemain(ctx, tx, tenantID)
		}
		return nil
	})
}

// ReplaceTenantRoles overwrites a member's tenant-level role set, guarded by
// the ownership invariant when the change strips the last owner.
func (s *MembershipStore) ReplaceTenantRoles(ctx context.Context, tenantID, userID uuid.UUID, roles []string) error {
	return s.withTenantLock(ctx, tenantID, func(tx querier) error {
		heldOwner, err := holdsOwner(ctx, tx, tenantID, userID)
		if err != nil {
			return err
		}

		result, err := tx.Exec(ctx, `
			UPDATE tenant_memberships SET
				roles = $3,
				updated_at = now()
			WHERE tenant_id = $1 AND user_id = $2
		`, tenantID, userID, roles)
		if err != nil {
			return fmt.Errorf("failed to update tenant roles: %w", mapPostgresError(err))
		}
		if result.RowsAffected() == 0 {
			return store.ErrMembershipNotFound
		}

		if heldOwner {
			return ensureOwnersRemain(ctx, tx, tenantID)
		}
		return nil
	})
}

// CountOwners returns the number of distinct users holding an owner role in
// the tenant, at tenant level or in any of its companies.
func (s *MembershipStore) CountOwners(ctx context.Context, tenantID uuid.UUID, excludeUserID *uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM (
			SELECT user_id FROM tenant_memberships
			WHERE tenant_id = $1 AND 'owner' = ANY(roles)
			  AND ($2::uuid IS NULL OR user_id <> $2)
			UNION
			SELECT user_id FROM company_memberships
			WHERE tenant_id = $1 AND role = 'owner'
			  AND ($2::uuid IS NULL OR user_id <> $2)
		) owners
	`

	var count int
	if err := s.db.q(ctx).QueryRow(ctx, query, tenantID, excludeUserID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}

	return count, nil
}

// GetCompanyMembership retrieves a user's membership in a company.
func (s *MembershipStore) GetCompanyMembership(ctx context.Context, companyID, userID uuid.UUID) (*models.CompanyMembership, error) {
	query := `
		SELECT tenant_id, company_id, user_id, role, created_at, updated_at
		FROM company_memberships
		WHERE company_id = $1 AND user_id = $2
	`

	var m models.CompanyMembership
	err := s.db.q(ctx).QueryRow(ctx, query, companyID, userID).Scan(
		&m.TenantID,
		&m.CompanyID,
		&m.UserID,
		&m.Role,
		&m.CreatedAt,
		&m.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to get company membership: %w", err)
	}

	return &m, nil
}

// ListCompanyMembershipsForUser returns all company memberships a user
// holds within a tenant.
func (s *MembershipStore) ListCompanyMembershipsForUser(ctx context.Context, tenantID, userID uuid.UUID) ([]*models.CompanyMembership, error) {
	query := `
		SELECT tenant_id, company_id, user_id, role, created_at, updated_at
		FROM company_memberships
		WHERE tenant_id = $1 AND user_id = $2
		ORDER BY created_at
	`

	rows, err := s.db.q(ctx).Query(ctx, query, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list company memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*models.CompanyMembership
	for rows.Next() {
		var m models.CompanyMembership
		err := rows.Scan(
			&m.TenantID,
			&m.CompanyID,
			&m.UserID,
			&m.Role,
			&m.CreatedAt,
			&m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company membership: %w", err)
		}
		memberships = append(memberships, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating company memberships: %w", err)
	}

	return memberships, nil
}

// ListForCompany returns all memberships within a company.
func (s *MembershipStore) ListForCompany(ctx context.Context, companyID uuid.UUID) ([]*models.CompanyMembership, error) {
	query := `
		SELECT tenant_id, company_id, user_id, role, created_at, updated_at
		FROM company_memberships
		WHERE company_id = $1
		ORDER BY created_at
	`

	rows, err := s.db.q(ctx).Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list company memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*models.CompanyMembership
	for rows.Next() {
		var m models.CompanyMembership
		err := rows.Scan(
			&m.TenantID,
			&m.CompanyID,
			&m.UserID,
			&m.Role,
			&m.CreatedAt,
			&m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company membership: %w", err)
		}
		memberships = append(memberships, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating company memberships: %w", err)
	}

	return memberships, nil
}

// UpsertCompanyMembership inserts or replaces a company membership.
// Demoting a company owner is guarded like any other owner removal.
func (s *MembershipStore) UpsertCompanyMembership(ctx context.Context, m *models.CompanyMembership) error {
	return s.withTenantLock(ctx, m.TenantID, func(tx querier) error {
		var companyTenantID uuid.UUID
		err := tx.QueryRow(ctx, `
			SELECT tenant_id FROM companies WHERE company_id = $1
		`, m.CompanyID).Scan(&companyTenantID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrCompanyNotFound
			}
			return fmt.Errorf("failed to resolve company tenant: %w", err)
		}
		if companyTenantID != m.TenantID {
			return store.ErrCrossTenantMembership
		}

		heldOwner, err := holdsOwner(ctx, tx, m.TenantID, m.UserID)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO company_memberships (
				tenant_id, company_id, user_id, role, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, now(), now()
			)
			ON CONFLICT (company_id, user_id) DO UPDATE SET
				role = EXCLUDED.role,
				updated_at = now()
		`, m.TenantID, m.CompanyID, m.UserID, m.Role)
		if err != nil {
			mapped := mapPostgresError(err)
			if errors.Is(mapped, store.ErrUserNotFound) || errors.Is(mapped, store.ErrCrossTenantMembership) {
				return mapped
			}
			return fmt.Errorf("failed to upsert company membership: %w", mapped)
		}

		if heldOwner && m.Role != models.RoleLabelOwner {
			return ensureOwnersRemain(ctx, tx, m.TenantID)
		}
		return nil
	})
}

// RemoveCompanyMembership deletes a user's company membership, guarded by
// the ownership invariant.
func (s *MembershipStore) RemoveCompanyMembership(ctx context.Context, companyID, userID uuid.UUID) error {
	var tenantID uuid.UUID
	err := s.db.q(ctx).QueryRow(ctx, `
		SELECT tenant_id FROM company_memberships
		WHERE company_id = $1 AND user_id = $2
	`, companyID, userID).Scan(&tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrMembershipNotFound
		}
		return fmt.Errorf("failed to resolve membership tenant: %w", err)
	}

	return s.withTenantLock(ctx, tenantID, func(tx querier) error {
		var role string
		err := tx.QueryRow(ctx, `
			DELETE FROM company_memberships
			WHERE company_id = $1 AND user_id = $2
			RETURNING role
		`, companyID, userID).Scan(&role)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrMembershipNotFound
			}
			return fmt.Errorf("failed to delete company membership: %w", mapPostgresError(err))
		}

		if role == models.RoleLabelOwner {
			return ensureOwnersRemain(ctx, tx, tenantID)
		}
		return nil
	})
}

// withTenantLock runs fn inside a transaction holding a row lock on the
// tenant, serializing membership mutations per tenant. When the context
// already carries a scoped transaction the lock is taken there instead of
// opening a nested transaction.
func (s *MembershipStore) withTenantLock(ctx context.Context, tenantID uuid.UUID, fn func(tx querier) error) error {
	lock := func(tx querier) error {
		var locked uuid.UUID
		err := tx.QueryRow(ctx, `
			SELECT tenant_id FROM tenants WHERE tenant_id = $1 FOR UPDATE
		`, tenantID).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrTenantNotFound
			}
			return fmt.Errorf("failed to lock tenant: %w", err)
		}
		return fn(tx)
	}

	if tx, ok := ctx.Value(scopedTxKey{}).(pgx.Tx); ok {
		return lock(tx)
	}

	tx, err := s.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	if err := lock(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// holdsOwner reports whether the user currently holds an owner role anywhere
// in the tenant.
func holdsOwner(ctx context.Context, tx querier, tenantID, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM tenant_memberships
			WHERE tenant_id = $1 AND user_id = $2 AND 'owner' = ANY(roles)
		) OR EXISTS(
			SELECT 1 FROM company_memberships
			WHERE tenant_id = $1 AND user_id = $2 AND role = 'owner'
		)
	`

	var holds bool
	if err := tx.QueryRow(ctx, query, tenantID, userID).Scan(&holds); err != nil {
		return false, fmt.Errorf("failed to check owner role: %w", err)
	}
	return holds, nil
}

// ensureOwnersRemain fails the enclosing transaction with ErrLastOwner when
// the tenant has been left without any owner. Called after a mutation that
// removed or demoted an owner, under the tenant row lock.
func ensureOwnersRemain(ctx context.Context, tx querier, tenantID uuid.UUID) error {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM tenant_memberships
			WHERE tenant_id = $1 AND 'owner' = ANY(roles)
		) OR EXISTS(
			SELECT 1 FROM company_memberships
			WHERE tenant_id = $1 AND role = 'owner'
		)
	`

	var remain bool
	if err := tx.QueryRow(ctx, query, tenantID).Scan(&remain); err != nil {
		return fmt.Errorf("failed to verify remaining owners: %w", err)
	}
	if !remain {
		return store.ErrLastOwner
	}
	return nil
}

func scanTenantMembership(row pgx.Row) (*models.TenantMembership, error) {
	var m models.TenantMembership
	err := row.Scan(
		&m.TenantID,
		&m.UserID,
		&m.Roles,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
