package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/meridianhq/tenantd/internal/store"
	"github.com/stretchr/testify/require"
)

func TestMapPostgresError(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		require.NoError(t, mapPostgresError(nil))
	})

	t.Run("non-postgres errors pass through", func(t *testing.T) {
		err := errors.New("dial tcp: connection refused")
		require.Equal(t, err, mapPostgresError(err))
	})

	t.Run("unique violations map to sentinels", func(t *testing.T) {
		err := mapPostgresError(&pgconn.PgError{
			Code:           pgerrcode.UniqueViolation,
			ConstraintName: "tenants_pkey",
		})
		require.ErrorIs(t, err, store.ErrTenantAlreadyExists)

		err = mapPostgresError(&pgconn.PgError{
			Code:           pgerrcode.UniqueViolation,
			ConstraintName: "companies_pkey",
		})
		require.ErrorIs(t, err, store.ErrCompanyAlreadyExists)
	})

	t.Run("foreign key violations map to bare sentinels", func(t *testing.T) {
		detail := `Key (user_id)=(0d9478c4-96cc-4c52-9f32-9f2d4df6a1ba) is not present in table "users".`

		cases := []struct {
			constraint string
			want       error
		}{
			{"companies_tenant_id_fkey", store.ErrTenantNotFound},
			{"tenant_memberships_tenant_id_fkey", store.ErrTenantNotFound},
			{"company_memberships_tenant_id_fkey", store.ErrTenantNotFound},
			{"tenant_memberships_user_id_fkey", store.ErrUserNotFound},
			{"company_memberships_user_id_fkey", store.ErrUserNotFound},
			{"company_memberships_company_fkey", store.ErrCrossTenantMembership},
		}

		for _, tc := range cases {
			t.Run(tc.constraint, func(t *testing.T) {
				err := mapPostgresError(&pgconn.PgError{
					Code:           pgerrcode.ForeignKeyViolation,
					ConstraintName: tc.constraint,
					Detail:         detail,
				})
				require.ErrorIs(t, err, tc.want)

				// Key values from the constraint detail stay out of the
				// error text callers see.
				require.Equal(t, tc.want.Error(), err.Error())
			})
		}
	})

	t.Run("unknown foreign key keeps the original in the chain", func(t *testing.T) {
		pgErr := &pgconn.PgError{
			Code:           pgerrcode.ForeignKeyViolation,
			ConstraintName: "somethingelse_fkey",
		}
		err := mapPostgresError(pgErr)
		require.ErrorIs(t, err, pgErr)
	})
}
