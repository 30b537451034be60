package commands

import (
	"context"
	"fmt"

	"github.com/meridianhq/tenantd/internal/logger"
	"github.com/meridianhq/tenantd/internal/store/postgres"
)

type ListTenantsCmd struct {
	DatabaseFlags
}

func (c *ListTenantsCmd) Run(ctx context.Context, globals *Globals) error {
	logger.Setup(globals.Debug)

	db, err := c.open(ctx, false)
	if err != nil {
		return err
	}
	defer db.Close()

	tenants, err := postgres.NewTenantStore(db).List(ctx)
	if err != nil {
		return err
	}

	for _, t := range tenants {
		fmt.Printf("%s\t%s\t%s\n", t.TenantID, t.CreatedAt.Format("2006-01-02"), t.Name)
	}
	return nil
}
