// Package isolation verifies tenant isolation across the membership tables.
// The checker is a detection safety-net for bugs upstream (a bad migration,
// a bypassed write path) - it reports violations and never repairs them.
package isolation

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
)

// Finding describes one class of violation found in one table.
type Finding struct {
	Table       string   `yaml:"table" json:"table"`
	RowIDs      []string `yaml:"row_ids" json:"rowIds"`
	Description string   `yaml:"description" json:"description"`
}

// Report is the result of one verification pass.
type Report struct {
	CheckedAt time.Time `yaml:"checked_at" json:"checkedAt"`
	Findings  []Finding `yaml:"findings,omitempty" json:"findings,omitempty"`
}

// Clean reports whether the pass found no violations.
func (r *Report) Clean() bool {
	return len(r.Findings) == 0
}

// Source provides the violation queries the checker runs. Implementations
// read committed snapshots and never take locks that compete with writers.
type Source interface {
	// CrossTenantCompanyMemberships returns company membership rows whose
	// tenant id differs from their company's tenant id.
	CrossTenantCompanyMemberships(ctx context.Context) ([]string, error)

	// OrphanedTenantMemberships returns tenant membership rows referencing a
	// missing tenant or user.
	OrphanedTenantMemberships(ctx context.Context) ([]string, error)

	// OrphanedCompanyMemberships returns company membership rows referencing
	// a missing company or user.
	OrphanedCompanyMemberships(ctx context.Context) ([]string, error)

	// OrphanedCompanies returns company rows referencing a missing tenant.
	OrphanedCompanies(ctx context.Context) ([]string, error)

	// NullTenantRows returns, per table, the rows carrying a null tenant id.
	NullTenantRows(ctx context.Context) (map[string][]string, error)
}

// Checker runs isolation verification passes against a Source.
type Checker struct {
	src Source
}

// NewChecker creates a checker over the given source.
func NewChecker(src Source) *Checker {
	return &Checker{src: src}
}

// Run executes a full verification pass and returns the report.
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	started := time.Now()
	report := &Report{CheckedAt: started}

	checks := []struct {
		table       string
		description string
		query       func(context.Context) ([]string, error)
	}{
		{
			table:       "company_memberships",
			description: "membership tenant id differs from company tenant id",
			query:       c.src.CrossTenantCompanyMemberships,
		},
		{
			table:       "tenant_memberships",
			description: "membership references a missing tenant or user",
			query:       c.src.OrphanedTenantMemberships,
		},
		{
			table:       "company_memberships",
			description: "membership references a missing company or user",
			query:       c.src.OrphanedCompanyMemberships,
		},
		{
			table:       "companies",
			description: "company references a missing tenant",
			query:       c.src.OrphanedCompanies,
		},
	}

	for _, check := range checks {
		rowIDs, err := check.query(ctx)
		if err != nil {
			return nil, fmt.Errorf("isolation check on %s failed: %w", check.table, err)
		}
		if len(rowIDs) > 0 {
			report.Findings = append(report.Findings, Finding{
				Table:       check.table,
				RowIDs:      rowIDs,
				Description: check.description,
			})
		}
	}

	nullRows, err := c.src.NullTenantRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("null tenant id check failed: %w", err)
	}
	for _, table := range slices.Sorted(maps.Keys(nullRows)) {
		rowIDs := nullRows[table]
		if len(rowIDs) > 0 {
			report.Findings = append(report.Findings, Finding{
				Table:       table,
				RowIDs:      rowIDs,
				Description: "row carries a null tenant id",
			})
		}
	}

	event := log.Info()
	if !report.Clean() {
		event = log.Warn()
	}
	event.
		Int("findings", len(report.Findings)).
		Dur("duration", time.Since(started)).
		Msg("Isolation check completed")

	return report, nil
}
