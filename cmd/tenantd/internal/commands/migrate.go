package commands

import (
	"context"

	"github.com/meridianhq/tenantd/internal/logger"
)

type MigrateCmd struct {
	DatabaseFlags
}

func (c *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	log.Info().Str("version", globals.Version).Msg("Running migrations")

	db, err := c.open(ctx, true)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info().Msg("Migrations complete")
	return nil
}
