package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/meridianhq/tenantd/internal/store"
	"github.com/rs/zerolog/log"
)

// mapPostgresError maps PostgreSQL-specific errors to sentinel errors.
// Returns the original error if it's not a PostgreSQL error or doesn't match
// known patterns.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		switch pgErr.ConstraintName {
		case "tenants_pkey":
			return store.ErrTenantAlreadyExists
		case "companies_pkey":
			return store.ErrCompanyAlreadyExists
		}
		return fmt.Errorf("unique constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.ForeignKeyViolation:
		// Referential integrity: map to the missing parent entity. The
		// constraint detail names key values, so it is logged rather than
		// carried on the returned error.
		log.Debug().
			Str("constraint", pgErr.ConstraintName).
			Str("detail", pgErr.Detail).
			Msg("foreign key violation")
		switch pgErr.ConstraintName {
		case "companies_tenant_id_fkey",
			"tenant_memberships_tenant_id_fkey",
			"company_memberships_tenant_id_fkey":
			return store.ErrTenantNotFound
		case "tenant_memberships_user_id_fkey",
			"company_memberships_user_id_fkey":
			return store.ErrUserNotFound
		case "company_memberships_company_fkey":
			// Composite (company_id, tenant_id) FK: either the company is
			// missing or the membership names the wrong tenant.
			return store.ErrCrossTenantMembership
		}
		return fmt.Errorf("foreign key violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.CheckViolation:
		return fmt.Errorf("check constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		// Retryable transaction errors
		return fmt.Errorf("transaction conflict (retryable): %w", err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection:
		return fmt.Errorf("database connection error: %w", err)

	case pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown:
		return fmt.Errorf("database server unavailable: %w", err)

	case pgerrcode.QueryCanceled:
		return fmt.Errorf("query canceled: %w", err)

	case pgerrcode.InsufficientResources,
		pgerrcode.DiskFull,
		pgerrcode.OutOfMemory,
		pgerrcode.TooManyConnections:
		return fmt.Errorf("database resource limit: %w", err)

	default:
		return fmt.Errorf("postgres error [%s]: %s (detail: %s, hint: %s): %w",
			pgErr.Code, pgErr.Message, pgErr.Detail, pgErr.Hint, err)
	}
}
