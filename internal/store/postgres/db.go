package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridianhq/tenantd/internal/store"
	"github.com/rs/zerolog/log"
)

// Config holds configuration for the PostgreSQL store.
type Config struct {
	PoolConfig

	// AutoMigrate runs pending schema migrations on startup.
	AutoMigrate bool
}

// DB wraps the shared connection pool and implements store.ScopeRunner.
// Individual stores issue their queries through DB so that tenant-scoped
// execution contexts apply uniformly.
type DB struct {
	pool *pgxpool.Pool
}

var _ store.ScopeRunner = (*DB)(nil)

// NewDB connects to PostgreSQL and optionally runs migrations.
func NewDB(ctx context.Context, cfg *Config) (*DB, error) {
	pool, err := NewPool(ctx, &cfg.PoolConfig)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("database", pool.Config().ConnConfig.Database).
		Str("host", pool.Config().ConnConfig.Host).
		Int32("max_conns", cfg.MaxConns).
		Msg("Connected to PostgreSQL")

	if cfg.AutoMigrate {
		if err := runMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &DB{pool: pool}, nil
}

// Close releases the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Pool exposes the underlying pool for migrations and health checks.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// querier is the subset of pgx operations the stores use. Both *pgxpool.Pool
// and pgx.Tx satisfy it, so store methods run unchanged inside a scoped
// transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scopedTxKey struct{}

// q returns the active scoped transaction if the context carries one,
// otherwise the shared pool.
func (db *DB) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(scopedTxKey{}).(pgx.Tx); ok {
		return tx
	}
	return db.pool
}

// WithTenantContext runs fn inside a transaction on a dedicated connection
// with row visibility restricted to tenantID. The scope is applied with a
// transaction-local setting consumed by the row level security policies, so
// it cannot leak across concurrent requests.
func (db *DB) WithTenantContext(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin scoped transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	_, err = tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true)`, tenantID.String())
	if err != nil {
		return fmt.Errorf("failed to set tenant scope: %w", err)
	}

	scoped := context.WithValue(ctx, scopedTxKey{}, tx)
	scoped = store.WithScopedTenant(scoped, tenantID)

	if err := fn(scoped); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit scoped transaction: %w", err)
	}
	return nil
}

// WithoutTenantContext runs fn against the unscoped pool. Any enclosing
// scoped transaction is detached so its tenant setting cannot filter the
// unscoped reads.
func (db *DB) WithoutTenantContext(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx = context.WithValue(ctx, scopedTxKey{}, nil)
	return fn(store.WithoutScope(ctx))
}
