// Package tenant is the public entry point of the authorization engine.
// Callers never talk to the stores or the role resolver directly: every
// operation here runs its own access check, applies the ownership guard
// through the membership store, and maps storage errors into the package's
// error taxonomy.
package tenant

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/meridianhq/tenantd/internal/authz"
	"github.com/meridianhq/tenantd/internal/models"
	"github.com/meridianhq/tenantd/internal/store"
	"github.com/rs/zerolog/log"
)

// Service is the tenant management facade. It is safe for concurrent use;
// all mutable state lives in the stores.
type Service struct {
	tenants     store.TenantStore
	companies   store.CompanyStore
	users       store.UserStore
	memberships store.MembershipStore
	scopes      store.ScopeRunner
	resolver    *authz.Resolver
	validator   *authz.Validator
}

// NewService creates the tenant service over the given stores. The resolver
// and validator are constructed here so every operation shares one access
// check path.
func NewService(tenants store.TenantStore, companies store.CompanyStore, users store.UserStore, memberships store.MembershipStore, scopes store.ScopeRunner) *Service {
	resolver := authz.NewResolver(users, memberships)
	return &Service{
		tenants:     tenants,
		companies:   companies,
		users:       users,
		memberships: memberships,
		scopes:      scopes,
		resolver:    resolver,
		validator:   authz.NewValidator(resolver),
	}
}

// UserTenant is one tenant a user belongs to, annotated with the user's
// tenant-level role labels and their company memberships within it.
type UserTenant struct {
	Tenant    *models.Tenant
	Roles     []string
	Companies []CompanyRole
}

// CompanyRole pairs a company with the role the user holds in it.
type CompanyRole struct {
	Company *models.Company
	Role    string
}

// Statistics is an administrative summary of a tenant.
type Statistics struct {
	TenantID          uuid.UUID `yaml:"tenant_id" json:"tenantId"`
	Name              string    `yaml:"name" json:"name"`
	UserCount         int       `yaml:"user_count" json:"userCount"`
	CompanyCount      int       `yaml:"company_count" json:"companyCount"`
	OwnerCount        int       `yaml:"owner_count" json:"ownerCount"`
	BillingConfigured bool      `yaml:"billing_configured" json:"billingConfigured"`
	BillingPlan       string    `yaml:"billing_plan,omitempty" json:"billingPlan,omitempty"`
}

// CreateTenantParams are the inputs to CreateTenant. CreatorID is optional;
// when set, the creator is granted the owner role in the same transaction
// that creates the tenant.
type CreateTenantParams struct {
	Name      string
	Billing   models.BillingSettings
	CreatorID *uuid.UUID
}

// UpdateTenantParams is a partial update of a tenant. Nil fields are left
// unchanged.
type UpdateTenantParams struct {
	Name    *string
	Billing models.BillingSettings
}

// GetTenantByID retrieves a tenant.
func (s *Service) GetTenantByID(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, storeFailure("get tenant", err)
	}
	return tenant, nil
}

// GetUserTenants returns every tenant the user belongs to, each annotated
// with the user's tenant-level roles and company memberships. Users with no
// memberships get an empty slice, not an error.
func (s *Service) GetUserTenants(ctx context.Context, userID uuid.UUID) ([]*UserTenant, error) {
	memberships, err := s.memberships.ListForUser(ctx, userID)
	if err != nil {
		return nil, storeFailure("list user tenants", err)
	}

	result := make([]*UserTenant, 0, len(memberships))
	for _, m := range memberships {
		tenant, err := s.tenants.Get(ctx, m.TenantID)
		if err != nil {
			if errors.Is(err, store.ErrTenantNotFound) {
				// Membership outlived its tenant; the isolation checker
				// reports these, listing skips them.
				continue
			}
			return nil, storeFailure("get tenant", err)
		}

		companyMemberships, err := s.memberships.ListCompanyMembershipsForUser(ctx, m.TenantID, userID)
		if err != nil {
			return nil, storeFailure("list company memberships", err)
		}

		companies := make([]CompanyRole, 0, len(companyMemberships))
		for _, cm := range companyMemberships {
			company, err := s.companies.Get(ctx, cm.CompanyID)
			if err != nil {
				if errors.Is(err, store.ErrCompanyNotFound) {
					continue
				}
				return nil, storeFailure("get company", err)
			}
			companies = append(companies, CompanyRole{Company: company, Role: cm.Role})
		}

		result = append(result, &UserTenant{
			Tenant:    tenant,
			Roles:     m.Roles,
			Companies: companies,
		})
	}

	return result, nil
}

// CreateTenant creates a tenant and, when a creator is given, grants them
// the owner role. Both writes happen inside one tenant-scoped transaction,
// so a tenant with a creator is never visible without its first owner.
func (s *Service) CreateTenant(ctx context.Context, params CreateTenantParams) (*models.Tenant, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, ErrInvalidName
	}

	tenantID, err := uuid.NewV7()
	if err != nil {
		return nil, storeFailure("generate tenant id", err)
	}

	tenant := &models.Tenant{
		TenantID: tenantID,
		Name:     name,
		Billing:  params.Billing,
	}

	err = s.scopes.WithTenantContext(ctx, tenantID, func(ctx context.Context) error {
		if err := s.tenants.Create(ctx, tenant); err != nil {
			return err
		}
		if params.CreatorID == nil {
			return nil
		}
		return s.memberships.UpsertTenantMembership(ctx, &models.TenantMembership{
			TenantID: tenantID,
			UserID:   *params.CreatorID,
			Roles:    []string{models.RoleLabelOwner},
		})
	})
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeFailure("create tenant", err)
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Str("name", name).
		Msg("Created tenant")

	return s.GetTenantByID(ctx, tenantID)
}

// UpdateTenant applies a partial update to a tenant's name and billing
// settings. Only the set fields are written, so concurrent updates of
// different fields do not overwrite each other. Requires the admin role.
func (s *Service) UpdateTenant(ctx context.Context, actingUserID, tenantID uuid.UUID, params UpdateTenantParams) (*models.Tenant, error) {
	if err := s.requireRole(ctx, actingUserID, tenantID, authz.RoleAdmin); err != nil {
		return nil, err
	}

	update := store.TenantUpdate{Billing: params.Billing}
	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return nil, ErrInvalidName
		}
		update.Name = &name
	}

	tenant, err := s.tenants.Update(ctx, tenantID, update)
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, storeFailure("update tenant", err)
	}

	return tenant, nil
}

// AddUserToTenant grants a user membership in a tenant with the given role
// labels. The operation is idempotent: adding an existing member replaces
// their role set, failing with ErrLastOwner when that would strip the
// tenant's only owner. Requires the admin role.
func (s *Service) AddUserToTenant(ctx context.Context, actingUserID, tenantID, userID uuid.UUID, roles []string) error {
	if err := s.requireRole(ctx, actingUserID, tenantID, authz.RoleAdmin); err != nil {
		return err
	}
	if err := validateRoleLabels(roles); err != nil {
		return err
	}

	err := s.memberships.UpsertTenantMembership(ctx, &models.TenantMembership{
		TenantID: tenantID,
		UserID:   userID,
		Roles:    roles,
	})
	if err != nil {
		return s.mapMembershipErr("add user to tenant", err)
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Str("user_id", userID.String()).
		Strs("roles", roles).
		Msg("Added user to tenant")

	return nil
}

// RemoveUserFromTenant removes a user's tenant membership along with all
// their company memberships in that tenant. Fails with ErrLastOwner when
// the user is the tenant's only owner. Requires the admin role.
func (s *Service) RemoveUserFromTenant(ctx context.Context, actingUserID, tenantID, userID uuid.UUID) error {
	if err := s.requireRole(ctx, actingUserID, tenantID, authz.RoleAdmin); err != nil {
		return err
	}

	if err := s.memberships.RemoveTenantMembership(ctx, tenantID, userID); err != nil {
		return s.mapMembershipErr("remove user from tenant", err)
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Str("user_id", userID.String()).
		Msg("Removed user from tenant")

	return nil
}

// UpdateUserTenantRoles replaces a member's tenant-level role set. Fails
// with ErrLastOwner when stripping the owner label would leave the tenant
// without one. Requires the admin role.
func (s *Service) UpdateUserTenantRoles(ctx context.Context, actingUserID, tenantID, userID uuid.UUID, roles []string) error {
	if err := s.requireRole(ctx, actingUserID, tenantID, authz.RoleAdmin); err != nil {
		return err
	}
	if err := validateRoleLabels(roles); err != nil {
		return err
	}

	if err := s.memberships.ReplaceTenantRoles(ctx, tenantID, userID, roles); err != nil {
		return s.mapMembershipErr("update tenant roles", err)
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Str("user_id", userID.String()).
		Strs("roles", roles).
		Msg("Updated tenant roles")

	return nil
}

// ValidateTenantAccess reports whether a user holds at least min in a
// tenant. It never returns an error: store failures are logged and resolve
// to denial, so callers can use it directly in request guards.
func (s *Service) ValidateTenantAccess(ctx context.Context, userID, tenantID uuid.UUID, min authz.Role) bool {
	ok, err := s.validator.HasAccess(ctx, userID, tenantID, min, nil)
	if err != nil {
		log.Error().Err(err).
			Str("user_id", userID.String()).
			Str("tenant_id", tenantID.String()).
			Msg("access validation failed, denying")
		return false
	}
	return ok
}

// GetTenantStatistics returns an administrative summary of a tenant.
// Requires the admin role.
func (s *Service) GetTenantStatistics(ctx context.Context, actingUserID, tenantID uuid.UUID) (*Statistics, error) {
	if err := s.requireRole(ctx, actingUserID, tenantID, authz.RoleAdmin); err != nil {
		return nil, err
	}

	tenant, err := s.GetTenantByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	members, err := s.memberships.ListForTenant(ctx, tenantID)
	if err != nil {
		return nil, storeFailure("list tenant members", err)
	}

	companies, err := s.companies.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, storeFailure("list companies", err)
	}

	owners, err := s.memberships.CountOwners(ctx, tenantID, nil)
	if err != nil {
		return nil, storeFailure("count owners", err)
	}

	return &Statistics{
		TenantID:          tenant.TenantID,
		Name:              tenant.Name,
		UserCount:         len(members),
		CompanyCount:      len(companies),
		OwnerCount:        owners,
		BillingConfigured: tenant.Billing.Configured(),
		BillingPlan:       tenant.Billing.Plan(),
	}, nil
}

// IsOnlyTenantOwner reports whether the user is the sole owner of the
// tenant, counting owner roles at tenant level and in any company.
func (s *Service) IsOnlyTenantOwner(ctx context.Context, userID, tenantID uuid.UUID) (bool, error) {
	holds, err := s.holdsOwner(ctx, tenantID, userID)
	if err != nil {
		return false, err
	}
	if !holds {
		return false, nil
	}

	others, err := s.memberships.CountOwners(ctx, tenantID, &userID)
	if err != nil {
		return false, storeFailure("count owners", err)
	}
	return others == 0, nil
}

// CreateCompany creates a company inside a tenant. Requires the admin role.
func (s *Service) CreateCompany(ctx context.Context, actingUserID, tenantID uuid.UUID, name string) (*models.Company, error) {
	if err := s.requireRole(ctx, actingUserID, tenantID, authz.RoleAdmin); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	companyID, err := uuid.NewV7()
	if err != nil {
		return nil, storeFailure("generate company id", err)
	}

	company := &models.Company{
		CompanyID: companyID,
		TenantID:  tenantID,
		Name:      name,
	}
	if err := s.companies.Create(ctx, company); err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, storeFailure("create company", err)
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Str("company_id", companyID.String()).
		Str("name", name).
		Msg("Created company")

	return s.getCompany(ctx, companyID)
}

// AddUserToCompany grants a user a hierarchical role in a company. The
// membership is recorded under the company's tenant; requires the admin
// role in that company's scope.
func (s *Service) AddUserToCompany(ctx context.Context, actingUserID, companyID, userID uuid.UUID, role authz.Role) error {
	company, err := s.getCompany(ctx, companyID)
	if err != nil {
		return err
	}
	if err := s.requireCompanyRole(ctx, actingUserID, company.TenantID, companyID, authz.RoleAdmin); err != nil {
		return err
	}

	err = s.memberships.UpsertCompanyMembership(ctx, &models.CompanyMembership{
		TenantID:  company.TenantID,
		CompanyID: companyID,
		UserID:    userID,
		Role:      role.String(),
	})
	if err != nil {
		return s.mapMembershipErr("add user to company", err)
	}

	log.Info().
		Str("company_id", companyID.String()).
		Str("user_id", userID.String()).
		Str("role", role.String()).
		Msg("Added user to company")

	return nil
}

// RemoveUserFromCompany removes a user's company membership. Fails with
// ErrLastOwner when removing the company owner would leave the tenant
// without any owner. Requires the admin role in the company's scope.
func (s *Service) RemoveUserFromCompany(ctx context.Context, actingUserID, companyID, userID uuid.UUID) error {
	company, err := s.getCompany(ctx, companyID)
	if err != nil {
		return err
	}
	if err := s.requireCompanyRole(ctx, actingUserID, company.TenantID, companyID, authz.RoleAdmin); err != nil {
		return err
	}

	if err := s.memberships.RemoveCompanyMembership(ctx, companyID, userID); err != nil {
		return s.mapMembershipErr("remove user from company", err)
	}

	log.Info().
		Str("company_id", companyID.String()).
		Str("user_id", userID.String()).
		Msg("Removed user from company")

	return nil
}

// ListTenantMembers returns every tenant-level membership in a tenant.
// Requires the member role.
func (s *Service) ListTenantMembers(ctx context.Context, actingUserID, tenantID uuid.UUID) ([]*models.TenantMembership, error) {
	if err := s.requireRole(ctx, actingUserID, tenantID, authz.RoleMember); err != nil {
		return nil, err
	}

	members, err := s.memberships.ListForTenant(ctx, tenantID)
	if err != nil {
		return nil, storeFailure("list tenant members", err)
	}
	return members, nil
}

// WithTenantContext runs fn with reads and writes scoped to the tenant.
// Inside fn, rows belonging to other tenants are invisible.
func (s *Service) WithTenantContext(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) error {
	return s.scopes.WithTenantContext(ctx, tenantID, fn)
}

// WithoutTenantContext runs fn with tenant scoping cleared, for
// administrative operations that legitimately span tenants.
func (s *Service) WithoutTenantContext(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.scopes.WithoutTenantContext(ctx, fn)
}

func (s *Service) requireRole(ctx context.Context, userID, tenantID uuid.UUID, min authz.Role) error {
	err := s.validator.RequireAccess(ctx, userID, tenantID, min, nil)
	if err != nil && !errors.Is(err, authz.ErrAccessDenied) {
		return storeFailure("resolve role", err)
	}
	return err
}

func (s *Service) requireCompanyRole(ctx context.Context, userID, tenantID, companyID uuid.UUID, min authz.Role) error {
	err := s.validator.RequireAccess(ctx, userID, tenantID, min, &companyID)
	if err != nil && !errors.Is(err, authz.ErrAccessDenied) {
		return storeFailure("resolve role", err)
	}
	return err
}

func (s *Service) getCompany(ctx context.Context, companyID uuid.UUID) (*models.Company, error) {
	company, err := s.companies.Get(ctx, companyID)
	if err != nil {
		if errors.Is(err, store.ErrCompanyNotFound) {
			return nil, ErrCompanyNotFound
		}
		return nil, storeFailure("get company", err)
	}
	return company, nil
}

func (s *Service) holdsOwner(ctx context.Context, tenantID, userID uuid.UUID) (bool, error) {
	membership, err := s.memberships.GetTenantMembership(ctx, tenantID, userID)
	if err != nil && !errors.Is(err, store.ErrMembershipNotFound) {
		return false, storeFailure("get tenant membership", err)
	}
	if membership != nil && membership.HasRole(models.RoleLabelOwner) {
		return true, nil
	}

	companyMemberships, err := s.memberships.ListCompanyMembershipsForUser(ctx, tenantID, userID)
	if err != nil {
		return false, storeFailure("list company memberships", err)
	}
	for _, cm := range companyMemberships {
		if cm.Role == models.RoleLabelOwner {
			return true, nil
		}
	}
	return false, nil
}

// mapMembershipErr folds store errors from membership mutations into the
// service taxonomy. Domain sentinels pass through; anything else becomes an
// opaque storage failure.
func (s *Service) mapMembershipErr(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrMembershipNotFound):
		return ErrNotAMember
	case errors.Is(err, store.ErrLastOwner),
		errors.Is(err, store.ErrTenantNotFound),
		errors.Is(err, store.ErrCompanyNotFound),
		errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrCrossTenantMembership):
		return err
	default:
		return storeFailure(op, err)
	}
}
