package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meridianhq/tenantd/internal/models"
	"github.com/meridianhq/tenantd/internal/store"
)

// CompanyStore implements store.CompanyStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type CompanyStore struct {
	mu sync.RWMutex

	tenants   *TenantStore
	companies map[uuid.UUID]*models.Company // company_id -> Company
}

// NewCompanyStore creates a new in-memory company store.
// The tenant store is used to verify the parent tenant on create.
func NewCompanyStore(tenants *TenantStore) *CompanyStore {
	return &CompanyStore{
		tenants:   tenants,
		companies: make(map[uuid.UUID]*models.Company),
	}
}

// Create creates a new company in memory.
func (s *CompanyStore) Create(ctx context.Context, company *models.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tenants.exists(company.TenantID) {
		return store.ErrTenantNotFound
	}

	if _, exists := s.companies[company.CompanyID]; exists {
		return store.ErrCompanyAlreadyExists
	}

	// Clone to avoid external modifications
	clone := *company
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	if clone.UpdatedAt.IsZero() {
		clone.UpdatedAt = clone.CreatedAt
	}
	s.companies[company.CompanyID] = &clone

	return nil
}

// Get retrieves a company by ID. A company outside the active scope is
// reported as not found.
func (s *CompanyStore) Get(ctx context.Context, companyID uuid.UUID) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	company, exists := s.companies[companyID]
	if !exists {
		return nil, store.ErrCompanyNotFound
	}

	if scoped, ok := store.ScopedTenant(ctx); ok && scoped != company.TenantID {
		return nil, store.ErrCompanyNotFound
	}

	clone := *company
	return &clone, nil
}

// ListByTenant returns all companies belonging to a tenant.
func (s *CompanyStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if scoped, ok := store.ScopedTenant(ctx); ok && scoped != tenantID {
		return nil, nil
	}

	var result []*models.Company
	for _, company := range s.companies {
		if company.TenantID == tenantID {
			clone := *company
			result = append(result, &clone)
		}
	}

	return result, nil
}

// get returns the company without cloning. Used by the membership store
// for referential checks.
func (s *CompanyStore) get(companyID uuid.UUID) (*models.Company, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	company, ok := s.companies[companyID]
	return company, ok
}
