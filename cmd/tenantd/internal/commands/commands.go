package commands

import (
	"context"

	"github.com/meridianhq/tenantd/internal/store/postgres"
	"github.com/meridianhq/tenantd/internal/tenant"
)

type Globals struct {
	Debug   bool
	Version string
}

// DatabaseFlags is the shared PostgreSQL configuration for commands that
// talk to the store.
type DatabaseFlags struct {
	Database        string `help:"PostgreSQL connection string" env:"TENANTD_DATABASE_URL" required:""`
	MaxConns        int32  `help:"maximum pool connections" default:"20" env:"TENANTD_DB_MAX_CONNS"`
	MinConns        int32  `help:"minimum pool connections" default:"5" env:"TENANTD_DB_MIN_CONNS"`
	MaxConnLifetime int32  `help:"connection lifetime in seconds" default:"3600" env:"TENANTD_DB_MAX_CONN_LIFETIME"`
	MaxConnIdleTime int32  `help:"connection idle time in seconds" default:"1800" env:"TENANTD_DB_MAX_CONN_IDLE_TIME"`
}

func (f *DatabaseFlags) open(ctx context.Context, autoMigrate bool) (*postgres.DB, error) {
	return postgres.NewDB(ctx, &postgres.Config{
		PoolConfig: postgres.PoolConfig{
			ConnString:      f.Database,
			MaxConns:        f.MaxConns,
			MinConns:        f.MinConns,
			MaxConnLifetime: f.MaxConnLifetime,
			MaxConnIdleTime: f.MaxConnIdleTime,
		},
		AutoMigrate: autoMigrate,
	})
}

func newService(db *postgres.DB) *tenant.Service {
	return tenant.NewService(
		postgres.NewTenantStore(db),
		postgres.NewCompanyStore(db),
		postgres.NewUserStore(db),
		postgres.NewMembershipStore(db),
		db,
	)
}
