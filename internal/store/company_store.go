package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/meridianhq/tenantd/internal/models"
)

// Sentinel errors for company store operations
var (
	ErrCompanyNotFound      = errors.New("company not found")
	ErrCompanyAlreadyExists = errors.New("company already exists")
)

// CompanyStore defines the interface for company storage operations.
// Companies are organizational units inside a tenant; their TenantID is
// immutable after creation.
type CompanyStore interface {
	// Create creates a new company in the store.
	// Returns ErrTenantNotFound if the parent tenant doesn't exist, and
	// ErrCompanyAlreadyExists if a company with the same ID already exists.
	Create(ctx context.Context, company *models.Company) error

	// Get retrieves a company by ID.
	// Returns ErrCompanyNotFound if the company doesn't exist.
	Get(ctx context.Context, companyID uuid.UUID) (*models.Company, error)

	// ListByTenant returns all companies belonging to a tenant, newest first.
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Company, error)
}
