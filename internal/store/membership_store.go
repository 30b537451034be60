package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/meridianhq/tenantd/internal/models"
)

// Sentinel errors for membership store operations
var (
	ErrMembershipNotFound = errors.New("membership not found")

	// ErrLastOwner is returned when a removal or role change would leave a
	// tenant with members but no owner. The guard runs inside the same
	// transaction as the mutation, so two concurrent removals of the final
	// two owners cannot both succeed.
	ErrLastOwner = errors.New("cannot remove the only tenant owner")

	// ErrCrossTenantMembership is returned when a company membership's
	// tenant id does not match its company's tenant id.
	ErrCrossTenantMembership = errors.New("membership tenant does not match company tenant")
)

// MembershipStore defines the interface for tenant and company membership
// storage. It holds no authorization logic; callers go through the tenant
// service so the ownership invariant is always checked.
type MembershipStore interface {
	// GetTenantMembership retrieves a user's tenant-level membership.
	// Returns ErrMembershipNotFound if the user is not a member.
	GetTenantMembership(ctx context.Context, tenantID, userID uuid.UUID) (*models.TenantMembership, error)

	// ListForUser returns all tenant memberships held by a user.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.TenantMembership, error)

	// ListForTenant returns all tenant memberships within a tenant.
	ListForTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.TenantMembership, error)

	// UpsertTenantMembership inserts or replaces a tenant membership.
	// The operation is idempotent: repeating it with the same roles leaves
	// the store unchanged. Returns ErrTenantNotFound or ErrUserNotFound when
	// the referenced rows are missing, and ErrLastOwner when replacing an
	// existing member's roles would leave the tenant without an owner.
	UpsertTenantMembership(ctx context.Context, m *models.TenantMembership) error

	// RemoveTenantMembership deletes a user's tenant membership along with
	// their company memberships in that tenant, in a single transaction.
	// Returns ErrMembershipNotFound if the user is not a member, and
	// ErrLastOwner if the removal would leave the tenant without an owner.
	RemoveTenantMembership(ctx context.Context, tenantID, userID uuid.UUID) error

	// ReplaceTenantRoles overwrites a member's tenant-level role set.
	// Returns ErrMembershipNotFound if the user is not a member, and
	// ErrLastOwner if stripping "owner" would leave the tenant without one.
	ReplaceTenantRoles(ctx context.Context, tenantID, userID uuid.UUID, roles []string) error

	// CountOwners returns the number of distinct users holding an owner role
	// in the tenant, at tenant level or in any of the tenant's companies.
	// When excludeUserID is non-nil that user is not counted; this is the
	// counting rule the ownership guard applies.
	CountOwners(ctx context.Context, tenantID uuid.UUID, excludeUserID *uuid.UUID) (int, error)

	// GetCompanyMembership retrieves a user's membership in a company.
	// Returns ErrMembershipNotFound if the user is not a member.
	GetCompanyMembership(ctx context.Context, companyID, userID uuid.UUID) (*models.CompanyMembership, error)

	// ListCompanyMembershipsForUser returns all company memberships a user
	// holds within a tenant.
	ListCompanyMembershipsForUser(ctx context.Context, tenantID, userID uuid.UUID) ([]*models.CompanyMembership, error)

	// ListForCompany returns all memberships within a company.
	ListForCompany(ctx context.Context, companyID uuid.UUID) ([]*models.CompanyMembership, error)

	// UpsertCompanyMembership inserts or replaces a company membership.
	// Returns ErrCompanyNotFound or ErrUserNotFound when referenced rows are
	// missing, and ErrCrossTenantMembership if the membership's tenant id
	// does not match the company's.
	UpsertCompanyMembership(ctx context.Context, m *models.CompanyMembership) error

	// RemoveCompanyMembership deletes a user's membership in a company.
	// Returns ErrMembershipNotFound if the user is not a member, and
	// ErrLastOwner if removing a company owner would leave the tenant
	// without any owner.
	RemoveCompanyMembership(ctx context.Context, companyID, userID uuid.UUID) error
}
