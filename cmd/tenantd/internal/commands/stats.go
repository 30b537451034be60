package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/meridianhq/tenantd/internal/logger"
	"gopkg.in/yaml.v3"
)

type StatsCmd struct {
	DatabaseFlags
	Tenant     string `arg:"" help:"Tenant id"`
	ActingUser string `help:"User id the statistics are requested as" required:""`
}

func (c *StatsCmd) Run(ctx context.Context, globals *Globals) error {
	logger.Setup(globals.Debug)

	tenantID, err := uuid.Parse(c.Tenant)
	if err != nil {
		return fmt.Errorf("invalid tenant id: %w", err)
	}
	actingUserID, err := uuid.Parse(c.ActingUser)
	if err != nil {
		return fmt.Errorf("invalid acting user id: %w", err)
	}

	db, err := c.open(ctx, false)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := newService(db).GetTenantStatistics(ctx, actingUserID, tenantID)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(stats)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}
