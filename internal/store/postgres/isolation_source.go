package postgres

import (
	"context"
	"fmt"
)

// IsolationSource implements isolation.Source with anti-join queries over
// the membership tables. It reads committed snapshots through the shared
// pool and never takes row locks, so it does not compete with writers.
//
// The foreign keys and NOT NULL constraints in the schema make most of
// these classes impossible through the normal write path; the queries exist
// to catch damage from migrations or out-of-band writes.
type IsolationSource struct {
	db *DB
}

// NewIsolationSource creates an isolation source over the shared pool.
func NewIsolationSource(db *DB) *IsolationSource {
	return &IsolationSource{db: db}
}

// CrossTenantCompanyMemberships returns company membership rows whose
// tenant id differs from their company's tenant id.
func (s *IsolationSource) CrossTenantCompanyMemberships(ctx context.Context) ([]string, error) {
	query := `
		SELECT m.company_id::text || '/' || m.user_id::text
		FROM company_memberships m
		JOIN companies c ON c.company_id = m.company_id
		WHERE m.tenant_id IS DISTINCT FROM c.tenant_id
	`
	return s.collectRowIDs(ctx, query)
}

// OrphanedTenantMemberships returns tenant membership rows referencing a
// missing tenant or user.
func (s *IsolationSource) OrphanedTenantMemberships(ctx context.Context) ([]string, error) {
	query := `
		SELECT m.tenant_id::text || '/' || m.user_id::text
		FROM tenant_memberships m
		LEFT JOIN tenants t ON t.tenant_id = m.tenant_id
		LEFT JOIN users u ON u.user_id = m.user_id
		WHERE t.tenant_id IS NULL OR u.user_id IS NULL
	`
	return s.collectRowIDs(ctx, query)
}

// OrphanedCompanyMemberships returns company membership rows referencing a
// missing company or user.
func (s *IsolationSource) OrphanedCompanyMemberships(ctx context.Context) ([]string, error) {
	query := `
		SELECT m.company_id::text || '/' || m.user_id::text
		FROM company_memberships m
		LEFT JOIN companies c ON c.company_id = m.company_id
		LEFT JOIN users u ON u.user_id = m.user_id
		WHERE c.company_id IS NULL OR u.user_id IS NULL
	`
	return s.collectRowIDs(ctx, query)
}

// OrphanedCompanies returns company rows referencing a missing tenant.
func (s *IsolationSource) OrphanedCompanies(ctx context.Context) ([]string, error) {
	query := `
		SELECT c.company_id::text
		FROM companies c
		LEFT JOIN tenants t ON t.tenant_id = c.tenant_id
		WHERE t.tenant_id IS NULL
	`
	return s.collectRowIDs(ctx, query)
}

// NullTenantRows returns, per table, the rows carrying a null tenant id.
func (s *IsolationSource) NullTenantRows(ctx context.Context) (map[string][]string, error) {
	queries := map[string]string{
		"companies":           `SELECT company_id::text FROM companies WHERE tenant_id IS NULL`,
		"tenant_memberships":  `SELECT user_id::text FROM tenant_memberships WHERE tenant_id IS NULL`,
		"company_memberships": `SELECT company_id::text || '/' || user_id::text FROM company_memberships WHERE tenant_id IS NULL`,
	}

	result := make(map[string][]string)
	for table, query := range queries {
		rowIDs, err := s.collectRowIDs(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("null tenant scan of %s: %w", table, err)
		}
		if len(rowIDs) > 0 {
			result[table] = rowIDs
		}
	}

	return result, nil
}

func (s *IsolationSource) collectRowIDs(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.q(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to run isolation query: %w", err)
	}
	defer rows.Close()

	var rowIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row id: %w", err)
		}
		rowIDs = append(rowIDs, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating row ids: %w", err)
	}

	return rowIDs, nil
}
