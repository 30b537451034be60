package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	backoff "github.com/cenkalti/backoff/v5"
	"github.com/meridianhq/tenantd/internal/isolation"
	"github.com/meridianhq/tenantd/internal/logger"
	"github.com/meridianhq/tenantd/internal/store/postgres"
	"gopkg.in/yaml.v3"
)

type CheckCmd struct {
	DatabaseFlags
	Output   string        `help:"write YAML report to file instead of stdout" default:""`
	MaxTries uint          `help:"retries for transient store failures" default:"3"`
	Interval time.Duration `help:"initial retry interval" default:"1s"`
}

func (c *CheckCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	db, err := c.open(ctx, false)
	if err != nil {
		return err
	}
	defer db.Close()

	checker := isolation.NewChecker(postgres.NewIsolationSource(db))

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.Interval

	report, err := backoff.Retry(ctx, func() (*isolation.Report, error) {
		return checker.Run(ctx)
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(c.MaxTries))
	if err != nil {
		return fmt.Errorf("isolation check failed: %w", err)
	}

	out, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	if c.Output != "" {
		if err := os.WriteFile(c.Output, out, 0o600); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		log.Info().Str("path", c.Output).Msg("Report written")
	} else {
		fmt.Print(string(out))
	}

	if !report.Clean() {
		return errors.New("tenant isolation violations found")
	}
	return nil
}
