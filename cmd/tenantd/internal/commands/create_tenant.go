package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/meridianhq/tenantd/internal/logger"
	"github.com/meridianhq/tenantd/internal/models"
	"github.com/meridianhq/tenantd/internal/tenant"
)

type CreateTenantCmd struct {
	DatabaseFlags
	Name  string `arg:"" help:"Tenant name"`
	Owner string `help:"User id to grant the owner role" default:""`
	Plan  string `help:"Billing plan label" default:""`
}

func (c *CreateTenantCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	db, err := c.open(ctx, false)
	if err != nil {
		return err
	}
	defer db.Close()

	params := tenant.CreateTenantParams{Name: c.Name}

	if c.Owner != "" {
		ownerID, err := uuid.Parse(c.Owner)
		if err != nil {
			return fmt.Errorf("invalid owner id: %w", err)
		}
		params.CreatorID = &ownerID
	}
	if c.Plan != "" {
		params.Billing = models.BillingSettings{"plan": c.Plan}
	}

	created, err := newService(db).CreateTenant(ctx, params)
	if err != nil {
		return err
	}

	log.Info().
		Str("tenant_id", created.TenantID.String()).
		Str("name", created.Name).
		Msg("Tenant created")

	fmt.Println(created.TenantID)
	return nil
}
