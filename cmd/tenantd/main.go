package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/meridianhq/tenantd/cmd/tenantd/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Migrate      commands.MigrateCmd      `cmd:"" help:"Run schema migrations"`
		Check        commands.CheckCmd        `cmd:"" help:"Run tenant isolation checks"`
		CreateTenant commands.CreateTenantCmd `cmd:"" name:"create-tenant" help:"Create a tenant"`
		ListTenants  commands.ListTenantsCmd  `cmd:"" name:"list-tenants" help:"List tenants"`
		Stats        commands.StatsCmd        `cmd:"" help:"Show tenant statistics"`
		Debug        bool                     `help:"Enable debug mode."`
		Version      kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
