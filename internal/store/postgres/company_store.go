package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/meridianhq/tenantd/internal/models"
	"github.com/meridianhq/tenantd/internal/store"
	"github.com/rs/zerolog/log"
)

// CompanyStore implements store.CompanyStore using PostgreSQL.
type CompanyStore struct {
	db *DB
}

var _ store.CompanyStore = (*CompanyStore)(nil)

// NewCompanyStore creates a new PostgreSQL-backed company store.
func NewCompanyStore(db *DB) *CompanyStore {
	return &CompanyStore{db: db}
}

// Create creates a new company in the database. The tenant_id FK verifies
// the parent tenant exists.
func (s *CompanyStore) Create(ctx context.Context, company *models.Company) error {
	if company.CreatedAt.IsZero() {
		company.CreatedAt = time.Now()
	}
	if company.UpdatedAt.IsZero() {
		company.UpdatedAt = company.CreatedAt
	}

	query := `
		INSERT INTO companies (
			company_id, tenant_id, name, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5
		)
	`

	_, err := s.db.q(ctx).Exec(ctx, query,
		company.CompanyID,
		company.TenantID,
		company.Name,
		company.CreatedAt,
		company.UpdatedAt,
	)

	if err != nil {
		mapped := mapPostgresError(err)
		if errors.Is(mapped, store.ErrTenantNotFound) || errors.Is(mapped, store.ErrCompanyAlreadyExists) {
			return mapped
		}
		return fmt.Errorf("failed to create company: %w", mapped)
	}

	log.Debug().
		Str("company_id", company.CompanyID.String()).
		Str("tenant_id", company.TenantID.String()).
		Str("name", company.Name).
		Msg("Created company")

	return nil
}

// Get retrieves a company by ID.
func (s *CompanyStore) Get(ctx context.Context, companyID uuid.UUID) (*models.Company, error) {
	query := `
		SELECT company_id, tenant_id, name, created_at, updated_at
		FROM companies
		WHERE company_id = $1
	`

	var company models.Company
	err := s.db.q(ctx).QueryRow(ctx, query, companyID).Scan(
		&company.CompanyID,
		&company.TenantID,
		&company.Name,
		&company.CreatedAt,
		&company.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCompanyNotFound
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}

	return &company, nil
}

// ListByTenant returns all companies belonging to a tenant, newest first.
func (s *CompanyStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Company, error) {
	query := `
		SELECT company_id, tenant_id, name, created_at, updated_at
		FROM companies
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.q(ctx).Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var companies []*models.Company
	for rows.Next() {
		var company models.Company
		err := rows.Scan(
			&company.CompanyID,
			&company.TenantID,
			&company.Name,
			&company.CreatedAt,
			&company.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, &company)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating companies: %w", err)
	}

	return companies, nil
}
