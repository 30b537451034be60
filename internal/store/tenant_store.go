package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/meridianhq/tenantd/internal/models"
)

// Sentinel errors for tenant store operations
var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrTenantAlreadyExists = errors.New("tenant already exists")
)

// TenantUpdate is a partial update of a tenant. Unset fields keep their
// stored values.
type TenantUpdate struct {
	Name    *string
	Billing models.BillingSettings
}

// TenantStore defines the interface for tenant storage operations.
// Tenants are the top-level isolation boundary; they are created and
// updated but never deleted.
type TenantStore interface {
	// Create creates a new tenant in the store.
	// Returns ErrTenantAlreadyExists if a tenant with the same ID already exists.
	Create(ctx context.Context, tenant *models.Tenant) error

	// Get retrieves a tenant by ID.
	// Returns ErrTenantNotFound if the tenant doesn't exist.
	Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error)

	// Update applies a partial update and returns the updated tenant. Only
	// the set fields are written, so concurrent updates of different fields
	// do not overwrite each other.
	// Returns ErrTenantNotFound if the tenant doesn't exist.
	Update(ctx context.Context, tenantID uuid.UUID, update TenantUpdate) (*models.Tenant, error)

	// List returns all tenants, newest first.
	List(ctx context.Context) ([]*models.Tenant, error)
}
