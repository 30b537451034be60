package authz

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/meridianhq/tenantd/internal/models"
	"github.com/meridianhq/tenantd/internal/store/memory"
	"github.com/stretchr/testify/require"
)

type resolverFixture struct {
	tenants     *memory.TenantStore
	companies   *memory.CompanyStore
	users       *memory.UserStore
	memberships *memory.MembershipStore
	resolver    *Resolver

	tenantID  uuid.UUID
	companyID uuid.UUID
}

func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()
	ctx := context.Background()

	tenants := memory.NewTenantStore()
	companies := memory.NewCompanyStore(tenants)
	users := memory.NewUserStore()
	memberships := memory.NewMembershipStore(tenants, companies, users)

	f := &resolverFixture{
		tenants:     tenants,
		companies:   companies,
		users:       users,
		memberships: memberships,
		resolver:    NewResolver(users, memberships),
		tenantID:    uuid.New(),
		companyID:   uuid.New(),
	}

	require.NoError(t, tenants.Create(ctx, &models.Tenant{TenantID: f.tenantID, Name: "acme"}))
	require.NoError(t, companies.Create(ctx, &models.Company{
		CompanyID: f.companyID,
		TenantID:  f.tenantID,
		Name:      "acme-east",
	}))

	return f
}

func (f *resolverFixture) addUser(t *testing.T, staff bool) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	f.users.Put(&models.UserProfile{UserID: userID, Email: "user@example.com", IsStaff: staff})
	return userID
}

func (f *resolverFixture) addTenantMember(t *testing.T, userID uuid.UUID, roles ...string) {
	t.Helper()
	err := f.memberships.UpsertTenantMembership(context.Background(), &models.TenantMembership{
		TenantID: f.tenantID,
		UserID:   userID,
		Roles:    roles,
	})
	require.NoError(t, err)
}

func (f *resolverFixture) addCompanyMember(t *testing.T, userID uuid.UUID, role string) {
	t.Helper()
	err := f.memberships.UpsertCompanyMembership(context.Background(), &models.CompanyMembership{
		TenantID:  f.tenantID,
		CompanyID: f.companyID,
		UserID:    userID,
		Role:      role,
	})
	require.NoError(t, err)
}

func TestResolver_EffectiveRole(t *testing.T) {
	ctx := context.Background()

	t.Run("no membership resolves to no role", func(t *testing.T) {
		f := newResolverFixture(t)
		userID := f.addUser(t, false)

		_, ok, err := f.resolver.EffectiveRole(ctx, userID, f.tenantID, nil)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("unknown user resolves to no role", func(t *testing.T) {
		f := newResolverFixture(t)

		_, ok, err := f.resolver.EffectiveRole(ctx, uuid.New(), f.tenantID, nil)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("tenant labels fold to highest role", func(t *testing.T) {
		f := newResolverFixture(t)
		userID := f.addUser(t, false)
		f.addTenantMember(t, userID, "member", "admin", "billing")

		role, ok, err := f.resolver.EffectiveRole(ctx, userID, f.tenantID, nil)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, RoleAdmin, role)
	})

	t.Run("only non-hierarchical labels resolve to no role", func(t *testing.T) {
		f := newResolverFixture(t)
		userID := f.addUser(t, false)
		f.addTenantMember(t, userID, "billing")

		_, ok, err := f.resolver.EffectiveRole(ctx, userID, f.tenantID, nil)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("staff bypass grants owner without membership", func(t *testing.T) {
		f := newResolverFixture(t)
		staffID := f.addUser(t, true)

		role, ok, err := f.resolver.EffectiveRole(ctx, staffID, f.tenantID, nil)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, RoleOwner, role)
	})

	t.Run("company membership governs company scope", func(t *testing.T) {
		f := newResolverFixture(t)
		userID := f.addUser(t, false)
		f.addTenantMember(t, userID, "owner")
		f.addCompanyMember(t, userID, "member")

		role, ok, err := f.resolver.EffectiveRole(ctx, userID, f.tenantID, &f.companyID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, RoleMember, role)
	})

	t.Run("company scope falls back to tenant role", func(t *testing.T) {
		f := newResolverFixture(t)
		userID := f.addUser(t, false)
		f.addTenantMember(t, userID, "admin")

		role, ok, err := f.resolver.EffectiveRole(ctx, userID, f.tenantID, &f.companyID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, RoleAdmin, role)
	})

	t.Run("staff bypass applies in company scope", func(t *testing.T) {
		f := newResolverFixture(t)
		staffID := f.addUser(t, true)

		role, ok, err := f.resolver.EffectiveRole(ctx, staffID, f.tenantID, &f.companyID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, RoleOwner, role)
	})
}

func TestValidator_HasAccess(t *testing.T) {
	ctx := context.Background()

	t.Run("role grants are monotonic", func(t *testing.T) {
		f := newResolverFixture(t)
		userID := f.addUser(t, false)
		f.addTenantMember(t, userID, "admin")
		v := NewValidator(f.resolver)

		ok, err := v.HasAccess(ctx, userID, f.tenantID, RoleMember, nil)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = v.HasAccess(ctx, userID, f.tenantID, RoleAdmin, nil)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = v.HasAccess(ctx, userID, f.tenantID, RoleOwner, nil)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("missing membership denies without error", func(t *testing.T) {
		f := newResolverFixture(t)
		userID := f.addUser(t, false)
		v := NewValidator(f.resolver)

		ok, err := v.HasAccess(ctx, userID, f.tenantID, RoleMember, nil)
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestValidator_RequireAccess(t *testing.T) {
	ctx := context.Background()

	t.Run("denial carries the access details", func(t *testing.T) {
		f := newResolverFixture(t)
		userID := f.addUser(t, false)
		f.addTenantMember(t, userID, "member")
		v := NewValidator(f.resolver)

		err := v.RequireAccess(ctx, userID, f.tenantID, RoleAdmin, nil)
		require.ErrorIs(t, err, ErrAccessDenied)

		var accessErr *AccessError
		require.ErrorAs(t, err, &accessErr)
		require.Equal(t, userID, accessErr.UserID)
		require.Equal(t, f.tenantID, accessErr.TenantID)
		require.Equal(t, RoleAdmin, accessErr.Required)
		require.NotNil(t, accessErr.Actual)
		require.Equal(t, RoleMember, *accessErr.Actual)
	})

	t.Run("non-member denial has no actual role", func(t *testing.T) {
		f := newResolverFixture(t)
		userID := f.addUser(t, false)
		v := NewValidator(f.resolver)

		err := v.RequireAccess(ctx, userID, f.tenantID, RoleMember, nil)
		require.ErrorIs(t, err, ErrAccessDenied)

		var accessErr *AccessError
		require.ErrorAs(t, err, &accessErr)
		require.Nil(t, accessErr.Actual)
	})

	t.Run("sufficient role passes", func(t *testing.T) {
		f := newResolverFixture(t)
		userID := f.addUser(t, false)
		f.addTenantMember(t, userID, "owner")
		v := NewValidator(f.resolver)

		require.NoError(t, v.RequireAccess(ctx, userID, f.tenantID, RoleOwner, nil))
	})
}
