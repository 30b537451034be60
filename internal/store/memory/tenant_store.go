package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meridianhq/tenantd/internal/models"
	"github.com/meridianhq/tenantd/internal/store"
)

// TenantStore implements store.TenantStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type TenantStore struct {
	mu sync.RWMutex

	tenants map[uuid.UUID]*models.Tenant // tenant_id -> Tenant
}

// NewTenantStore creates a new in-memory tenant store.
func NewTenantStore() *TenantStore {
	return &TenantStore{
		tenants: make(map[uuid.UUID]*models.Tenant),
	}
}

// Create creates a new tenant in memory.
func (s *TenantStore) Create(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[tenant.TenantID]; exists {
		return store.ErrTenantAlreadyExists
	}

	// Clone to avoid external modifications
	clone := *tenant
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	if clone.UpdatedAt.IsZero() {
		clone.UpdatedAt = clone.CreatedAt
	}
	s.tenants[tenant.TenantID] = &clone

	return nil
}

// Get retrieves a tenant by ID. A tenant outside the active scope is
// reported as not found.
func (s *TenantStore) Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if scoped, ok := store.ScopedTenant(ctx); ok && scoped != tenantID {
		return nil, store.ErrTenantNotFound
	}

	tenant, exists := s.tenants[tenantID]
	if !exists {
		return nil, store.ErrTenantNotFound
	}

	clone := *tenant
	return &clone, nil
}

// Update applies a partial update under the store lock, so concurrent
// updates of different fields do not overwrite each other.
func (s *TenantStore) Update(ctx context.Context, tenantID uuid.UUID, update store.TenantUpdate) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if scoped, ok := store.ScopedTenant(ctx); ok && scoped != tenantID {
		return nil, store.ErrTenantNotFound
	}

	existing, exists := s.tenants[tenantID]
	if !exists {
		return nil, store.ErrTenantNotFound
	}

	clone := *existing
	if update.Name != nil {
		clone.Name = *update.Name
	}
	if update.Billing != nil {
		clone.Billing = update.Billing
	}
	clone.UpdatedAt = time.Now()
	s.tenants[tenantID] = &clone

	result := clone
	return &result, nil
}

// List returns all tenants, restricted to the active scope if one is set.
func (s *TenantStore) List(ctx context.Context) ([]*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scoped, hasScope := store.ScopedTenant(ctx)

	var result []*models.Tenant
	for _, tenant := range s.tenants {
		if hasScope && tenant.TenantID != scoped {
			continue
		}
		clone := *tenant
		result = append(result, &clone)
	}

	return result, nil
}

// exists reports whether a tenant is present. Used by the membership store
// for referential checks.
func (s *TenantStore) exists(tenantID uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.tenants[tenantID]
	return ok
}
