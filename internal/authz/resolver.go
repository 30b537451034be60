package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/meridianhq/tenantd/internal/store"
	"github.com/rs/zerolog/log"
)

// Resolver computes the effective role a user holds in a tenant or company.
// The staff bypass lives here and nowhere else, so every access check in the
// system applies it uniformly.
type Resolver struct {
	users       store.UserStore
	memberships store.MembershipStore
}

// NewResolver creates a role resolver over the given stores.
func NewResolver(users store.UserStore, memberships store.MembershipStore) *Resolver {
	return &Resolver{
		users:       users,
		memberships: memberships,
	}
}

// EffectiveRole resolves the role userID holds for tenantID. When companyID
// is non-nil the operation is company-scoped and the company membership
// governs, falling back to the tenant-level role when the user has no
// company membership. Absence of any membership resolves to (0, false, nil),
// not an error.
//
// Staff users resolve to RoleOwner for every tenant, joined or not.
func (r *Resolver) EffectiveRole(ctx context.Context, userID, tenantID uuid.UUID, companyID *uuid.UUID) (Role, bool, error) {
	user, err := r.users.Get(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrUserNotFound) {
		return 0, false, fmt.Errorf("resolve user %s: %w", userID, err)
	}

	if user != nil && user.IsStaff {
		// Staff bypass grants implicit top-level access; log for audit.
		log.Info().
			Str("user_id", userID.String()).
			Str("tenant_id", tenantID.String()).
			Msg("staff bypass applied")
		return RoleOwner, true, nil
	}

	if companyID != nil {
		role, ok, err := r.companyRole(ctx, *companyID, userID)
		if err != nil {
			return 0, false, err
		}
		if ok {
			return role, true, nil
		}
		// No company membership - the tenant-level role governs.
	}

	membership, err := r.memberships.GetTenantMembership(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("resolve tenant membership: %w", err)
	}

	role, ok := EffectiveTenantRole(membership.Roles)
	if !ok {
		return 0, false, nil
	}
	return role, true, nil
}

func (r *Resolver) companyRole(ctx context.Context, companyID, userID uuid.UUID) (Role, bool, error) {
	membership, err := r.memberships.GetCompanyMembership(ctx, companyID, userID)
	if err != nil {
		if errors.Is(err, store.ErrMembershipNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("resolve company membership: %w", err)
	}

	role, err := ParseRole(membership.Role)
	if err != nil {
		return 0, false, fmt.Errorf("company membership for user %s: %w", userID, err)
	}
	return role, true, nil
}
