package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/meridianhq/tenantd/internal/models"
	"github.com/meridianhq/tenantd/internal/store"
	"github.com/stretchr/testify/require"
)

type membershipFixture struct {
	tenants     *TenantStore
	companies   *CompanyStore
	users       *UserStore
	memberships *MembershipStore

	tenantID  uuid.UUID
	companyID uuid.UUID
}

func newMembershipFixture(t *testing.T) *membershipFixture {
	t.Helper()
	ctx := context.Background()

	tenants := NewTenantStore()
	companies := NewCompanyStore(tenants)
	users := NewUserStore()

	f := &membershipFixture{
		tenants:     tenants,
		companies:   companies,
		users:       users,
		memberships: NewMembershipStore(tenants, companies, users),
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

func (f *membershipFixture) newUser() uuid.UUID {
	userID := uuid.New()
	f.users.Put(&models.UserProfile{UserID: userID})
	return userID
}

func (f *membershipFixture) addMember(t *testing.T, userID uuid.UUID, roles ...string) {
	t.Helper()
	err := f.memberships.UpsertTenantMembership(context.Background(), &models.TenantMembership{
		TenantID: f.tenantID,
		UserID:   userID,
		Roles:    roles,
	})
	require.NoError(t, err)
}

func TestMembershipStore_UpsertTenantMembership(t *testing.T) {
	ctx := context.Background()

	t.Run("creates membership", func(t *testing.T) {
		f := newMembershipFixture(t)
		userID := f.newUser()
		f.addMember(t, userID, "member")

		m, err := f.memberships.GetTenantMembership(ctx, f.tenantID, userID)
		require.NoError(t, err)
		require.Equal(t, []string{"member"}, m.Roles)
		require.False(t, m.CreatedAt.IsZero())
	})

	t.Run("repeat upsert replaces roles and keeps created_at", func(t *testing.T) {
		f := newMembershipFixture(t)
		userID := f.newUser()
		f.addMember(t, userID, "member")

		first, err := f.memberships.GetTenantMembership(ctx, f.tenantID, userID)
		require.NoError(t, err)

		f.addMember(t, userID, "admin", "billing")

		second, err := f.memberships.GetTenantMembership(ctx, f.tenantID, userID)
		require.NoError(t, err)
		require.Equal(t, []string{"admin", "billing"}, second.Roles)
		require.Equal(t, first.CreatedAt, second.CreatedAt)
	})

	t.Run("upsert stripping the last owner is rejected", func(t *testing.T) {
		f := newMembershipFixture(t)
		owner := f.newUser()
		f.addMember(t, owner, "owner")

		err := f.memberships.UpsertTenantMembership(ctx, &models.TenantMembership{
			TenantID: f.tenantID,
			UserID:   owner,
			Roles:    []string{"member"},
		})
		require.ErrorIs(t, err, store.ErrLastOwner)

		m, err := f.memberships.GetTenantMembership(ctx, f.tenantID, owner)
		require.NoError(t, err)
		require.True(t, m.HasRole("owner"))
	})

	t.Run("upsert stripping owner is allowed when another owner exists", func(t *testing.T) {
		f := newMembershipFixture(t)
		first := f.newUser()
		second := f.newUser()
		f.addMember(t, first, "owner")
		f.addMember(t, second, "owner")

		err := f.memberships.UpsertTenantMembership(ctx, &models.TenantMembership{
			TenantID: f.tenantID,
			UserID:   first,
			Roles:    []string{"member"},
		})
		require.NoError(t, err)
	})

	t.Run("upsert demotion is covered by a company owner row", func(t *testing.T) {
		f := newMembershipFixture(t)
		owner := f.newUser()
		f.addMember(t, owner, "owner")
		require.NoError(t, f.memberships.UpsertCompanyMembership(ctx, &models.CompanyMembership{
			TenantID:  f.tenantID,
			CompanyID: f.companyID,
			UserID:    owner,
			Role:      "owner",
		}))

		err := f.memberships.UpsertTenantMembership(ctx, &models.TenantMembership{
			TenantID: f.tenantID,
			UserID:   owner,
			Roles:    []string{"member"},
		})
		require.NoError(t, err)
	})

	t.Run("unknown tenant is rejected", func(t *testing.T) {
		f := newMembershipFixture(t)
		err := f.memberships.UpsertTenantMembership(ctx, &models.TenantMembership{
			TenantID: uuid.New(),
			UserID:   f.newUser(),
			Roles:    []string{"member"},
		})
		require.ErrorIs(t, err, store.ErrTenantNotFound)
	})

	t.Run("unknown user is rejected", func(t *testing.T) {
		f := newMembershipFixture(t)
		err := f.memberships.UpsertTenantMembership(ctx, &models.TenantMembership{
			TenantID: f.tenantID,
			UserID:   uuid.New(),
			Roles:    []string{"member"},
		})
		require.ErrorIs(t, err, store.ErrUserNotFound)
	})
}

func TestMembershipStore_RemoveTenantMembership(t *testing.T) {
	ctx := context.Background()

	t.Run("removes membership and company rows", func(t *testing.T) {
		f := newMembershipFixture(t)
		owner := f.newUser()
		member := f.newUser()
		f.addMember(t, owner, "owner")
		f.addMember(t, member, "member")
		require.NoError(t, f.memberships.UpsertCompanyMembership(ctx, &models.CompanyMembership{
			TenantID:  f.tenantID,
			CompanyID: f.companyID,
			UserID:    member,
			Role:      "member",
		}))

		require.NoError(t, f.memberships.RemoveTenantMembership(ctx, f.tenantID, member))

		_, err := f.memberships.GetTenantMembership(ctx, f.tenantID, member)
		require.ErrorIs(t, err, store.ErrMembershipNotFound)

		_, err = f.memberships.GetCompanyMembership(ctx, f.companyID, member)
		require.ErrorIs(t, err, store.ErrMembershipNotFound)
	})

	t.Run("non-member returns not found", func(t *testing.T) {
		f := newMembershipFixture(t)
		err := f.memberships.RemoveTenantMembership(ctx, f.tenantID, uuid.New())
		require.ErrorIs(t, err, store.ErrMembershipNotFound)
	})

	t.Run("last owner cannot be removed", func(t *testing.T) {
		f := newMembershipFixture(t)
		owner := f.newUser()
		member := f.newUser()
		f.addMember(t, owner, "owner")
		f.addMember(t, member, "member")

		err := f.memberships.RemoveTenantMembership(ctx, f.tenantID, owner)
		require.ErrorIs(t, err, store.ErrLastOwner)

		m, err := f.memberships.GetTenantMembership(ctx, f.tenantID, owner)
		require.NoError(t, err)
		require.True(t, m.HasRole("owner"))
	})

	t.Run("owner can leave when another owner remains", func(t *testing.T) {
		f := newMembershipFixture(t)
		first := f.newUser()
		second := f.newUser()
		f.addMember(t, first, "owner")
		f.addMember(t, second, "owner")

		require.NoError(t, f.memberships.RemoveTenantMembership(ctx, f.tenantID, first))
	})

	t.Run("company-level owner keeps the tenant covered", func(t *testing.T) {
		f := newMembershipFixture(t)
		tenantOwner := f.newUser()
		companyOwner := f.newUser()
		f.addMember(t, tenantOwner, "owner")
		f.addMember(t, companyOwner, "member")
		require.NoError(t, f.memberships.UpsertCompanyMembership(ctx, &models.CompanyMembership{
			TenantID:  f.tenantID,
			CompanyID: f.companyID,
			UserID:    companyOwner,
			Role:      "owner",
		}))

		// The tenant-level owner can leave because the company owner remains.
		require.NoError(t, f.memberships.RemoveTenantMembership(ctx, f.tenantID, tenantOwner))
	})

	t.Run("concurrent removals leave at least one owner", func(t *testing.T) {
		f := newMembershipFixture(t)
		first := f.newUser()
		second := f.newUser()
		f.addMember(t, first, "owner")
		f.addMember(t, second, "owner")

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, userID := range []uuid.UUID{first, second} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = f.memberships.RemoveTenantMembership(ctx, f.tenantID, userID)
			}()
		}
		wg.Wait()

		count, err := f.memberships.CountOwners(ctx, f.tenantID, nil)
		require.NoError(t, err)
		require.GreaterOrEqual(t, count, 1)

		if errs[0] != nil {
			require.ErrorIs(t, errs[0], store.ErrLastOwner)
		}
		if errs[1] != nil {
			require.ErrorIs(t, errs[1], store.ErrLastOwner)
		}
		require.False(t, errs[0] != nil && errs[1] != nil, "one removal should succeed")
	})
}

func TestMembershipStore_ReplaceTenantRoles(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces role set", func(t *testing.T) {
		f := newMembershipFixture(t)
		userID := f.newUser()
		f.addMember(t, userID, "member")

		require.NoError(t, f.memberships.ReplaceTenantRoles(ctx, f.tenantID, userID, []string{"admin"}))

		m, err := f.memberships.GetTenantMembership(ctx, f.tenantID, userID)
		require.NoError(t, err)
		require.Equal(t, []string{"admin"}, m.Roles)
	})

	t.Run("stripping the last owner is rejected", func(t *testing.T) {
		f := newMembershipFixture(t)
		owner := f.newUser()
		f.addMember(t, owner, "owner")

		err := f.memberships.ReplaceTenantRoles(ctx, f.tenantID, owner, []string{"member"})
		require.ErrorIs(t, err, store.ErrLastOwner)
	})

	t.Run("stripping owner is allowed when another owner exists", func(t *testing.T) {
		f := newMembershipFixture(t)
		first := f.newUser()
		second := f.newUser()
		f.addMember(t, first, "owner")
		f.addMember(t, second, "owner")

		require.NoError(t, f.memberships.ReplaceTenantRoles(ctx, f.tenantID, first, []string{"member"}))
	})

	t.Run("company owner role still counts", func(t *testing.T) {
		f := newMembershipFixture(t)
		owner := f.newUser()
		f.addMember(t, owner, "owner")
		require.NoError(t, f.memberships.UpsertCompanyMembership(ctx, &models.CompanyMembership{
			TenantID:  f.tenantID,
			CompanyID: f.companyID,
			UserID:    owner,
			Role:      "owner",
		}))

		// Tenant-level owner label can go because the company owner row remains.
		require.NoError(t, f.memberships.ReplaceTenantRoles(ctx, f.tenantID, owner, []string{"member"}))
	})

	t.Run("non-member returns not found", func(t *testing.T) {
		f := newMembershipFixture(t)
		err := f.memberships.ReplaceTenantRoles(ctx, f.tenantID, uuid.New(), []string{"member"})
		require.ErrorIs(t, err, store.ErrMembershipNotFound)
	})
}

func TestMembershipStore_CountOwners(t *testing.T) {
	ctx := context.Background()

	t.Run("counts distinct users across levels", func(t *testing.T) {
		f := newMembershipFixture(t)
		both := f.newUser()
		companyOnly := f.newUser()
		f.addMember(t, both, "owner")
		f.addMember(t, companyOnly, "member")
		require.NoError(t, f.memberships.UpsertCompanyMembership(ctx, &models.CompanyMembership{
			TenantID:  f.tenantID,
			CompanyID: f.companyID,
			UserID:    both,
			Role:      "owner",
		}))
		require.NoError(t, f.memberships.UpsertCompanyMembership(ctx, &models.CompanyMembership{
			TenantID:  f.tenantID,
			CompanyID: f.companyID,
			UserID:    companyOnly,
			Role:      "owner",
		}))

		count, err := f.memberships.CountOwners(ctx, f.tenantID, nil)
		require.NoError(t, err)
		require.Equal(t, 2, count)
	})

	t.Run("exclusion removes the user from the count", func(t *testing.T) {
		f := newMembershipFixture(t)
		owner := f.newUser()
		f.addMember(t, owner, "owner")

		count, err := f.memberships.CountOwners(ctx, f.tenantID, &owner)
		require.NoError(t, err)
		require.Equal(t, 0, count)
	})
}

func TestMembershipStore_UpsertCompanyMembership(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown company is rejected", func(t *testing.T) {
		f := newMembershipFixture(t)
		err := f.memberships.UpsertCompanyMembership(ctx, &models.CompanyMembership{
			TenantID:  f.tenantID,
			CompanyID: uuid.New(),
			UserID:    f.newUser(),
			Role:      "member",
		})
		require.ErrorIs(t, err, store.ErrCompanyNotFound)
	})

	t.Run("tenant mismatch is rejected", func(t *testing.T) {
		f := newMembershipFixture(t)
		otherTenant := uuid.New()
		require.NoError(t, f.tenants.Create(ctx, &models.Tenant{TenantID: otherTenant, Name: "rival"}))

		err := f.memberships.UpsertCompanyMembership(ctx, &models.CompanyMembership{
			TenantID:  otherTenant,
			CompanyID: f.companyID,
			UserID:    f.newUser(),
			Role:      "member",
		})
		require.ErrorIs(t, err, store.ErrCrossTenantMembership)
	})

	t.Run("demoting the only owner is rejected", func(t *testing.T) {
		f := newMembershipFixture(t)
		owner := f.newUser()
		f.addMember(t, owner, "member")
		require.NoError(t, f.memberships.UpsertCompanyMembership(ctx, &models.CompanyMembership{
			TenantID:  f.tenantID,
			CompanyID: f.companyID,
			UserID:    owner,
			Role:      "owner",
		}))

		err := f.memberships.UpsertCompanyMembership(ctx, &models.CompanyMembership{
			TenantID:  f.tenantID,
			CompanyID: f.companyID,
			UserID:    owner,
			Role:      "member",
		})
		require.ErrorIs(t, err, store.ErrLastOwner)
	})

	t.Run("demotion is allowed when the user owns at tenant level", func(t *testing.T) {
		f := newMembershipFixture(t)
		owner := f.newUser()
		f.addMember(t, owner, "owner")
		require.NoError(t, f.memberships.UpsertCompanyMembership(ctx, &models.CompanyMembership{
			TenantID:  f.tenantID,
			CompanyID: f.companyID,
			UserID:    owner,
			Role:      "owner",
		}))

		err := f.memberships.UpsertCompanyMembership(ctx, &models.CompanyMembership{
			TenantID:  f.tenantID,
			CompanyID: f.companyID,
			UserID:    owner,
			Role:      "admin",
		})
		require.NoError(t, err)
	})
}

func TestMembershipStore_RemoveCompanyMembership(t *testing.T) {
	ctx := context.Background()

	t.Run("removing the only owner's row is rejected", func(t *testing.T) {
		f := newMembershipFixture(t)
		owner := f.newUser()
		f.addMember(t, owner, "member")
		require.NoError(t, f.memberships.UpsertCompanyMembership(ctx, &models.CompanyMembership{
			TenantID:  f.tenantID,
			CompanyID: f.companyID,
			UserID:    owner,
			Role:      "owner",
		}))

		err := f.memberships.RemoveCompanyMembership(ctx, f.companyID, owner)
		require.ErrorIs(t, err, store.ErrLastOwner)
	})

	t.Run("removal succeeds when ownership is covered elsewhere", func(t *testing.T) {
		f := newMembershipFixture(t)
		owner := f.newUser()
		f.addMember(t, owner, "owner")
		require.NoError(t, f.memberships.UpsertCompanyMembership(ctx, &models.CompanyMembership{
			TenantID:  f.tenantID,
			CompanyID: f.companyID,
			UserID:    owner,
			Role:      "owner",
		}))

		require.NoError(t, f.memberships.RemoveCompanyMembership(ctx, f.companyID, owner))
	})
}

func TestMembershipStore_TenantScope(t *testing.T) {
	ctx := context.Background()

	t.Run("scoped reads hide other tenants", func(t *testing.T) {
		f := newMembershipFixture(t)
		userID := f.newUser()
		f.addMember(t, userID, "member")

		otherTenant := uuid.New()
		require.NoError(t, f.tenants.Create(ctx, &models.Tenant{TenantID: otherTenant, Name: "rival"}))

		scoped := store.WithScopedTenant(ctx, otherTenant)

		_, err := f.memberships.GetTenantMembership(scoped, f.tenantID, userID)
		require.ErrorIs(t, err, store.ErrMembershipNotFound)

		members, err := f.memberships.ListForTenant(scoped, f.tenantID)
		require.NoError(t, err)
		require.Empty(t, members)

		memberships, err := f.memberships.ListForUser(scoped, userID)
		require.NoError(t, err)
		require.Empty(t, memberships)
	})

	t.Run("matching scope reads normally", func(t *testing.T) {
		f := newMembershipFixture(t)
		userID := f.newUser()
		f.addMember(t, userID, "member")

		scoped := store.WithScopedTenant(ctx, f.tenantID)

		m, err := f.memberships.GetTenantMembership(scoped, f.tenantID, userID)
		require.NoError(t, err)
		require.Equal(t, userID, m.UserID)
	})

	t.Run("cleared scope reads everything", func(t *testing.T) {
		f := newMembershipFixture(t)
		userID := f.newUser()
		f.addMember(t, userID, "member")

		cleared := store.WithoutScope(store.WithScopedTenant(ctx, uuid.New()))

		m, err := f.memberships.GetTenantMembership(cleared, f.tenantID, userID)
		require.NoError(t, err)
		require.Equal(t, userID, m.UserID)
	})
}
