package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/meridianhq/tenantd/internal/models"
	"github.com/meridianhq/tenantd/internal/store"
)

type tenantUserKey struct {
	tenantID uuid.UUID
	userID   uuid.UUID
}

type companyUserKey struct {
	companyID uuid.UUID
	userID    uuid.UUID
}

// MembershipStore implements store.MembershipStore using in-memory storage.
// A single mutex covers both membership maps, so the ownership guard and the
// mutation it protects are atomic, matching the transactional behaviour of
// the postgres store.
type MembershipStore struct {
	mu sync.RWMutex

	tenants   *TenantStore
	companies *CompanyStore
	users     *UserStore

	tenantMemberships  map[tenantUserKey]*models.TenantMembership
	companyMemberships map[companyUserKey]*models.CompanyMembership
}

// NewMembershipStore creates a new in-memory membership store. The other
// stores are used for referential checks on writes.
func NewMembershipStore(tenants *TenantStore, companies *CompanyStore, users *UserStore) *MembershipStore {
	return &MembershipStore{
		tenants:            tenants,
		companies:          companies,
		users:              users,
		tenantMemberships:  make(map[tenantUserKey]*models.TenantMembership),
		companyMemberships: make(map[companyUserKey]*models.CompanyMembership),
	}
}

// GetTenantMembership retrieves a user's tenant-level membership.
func (s *MembershipStore) GetTenantMembership(ctx context.Context, tenantID, userID uuid.UUID) (*models.TenantMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if scoped, ok := store.ScopedTenant(ctx); ok && scoped != tenantID {
		return nil, store.ErrMembershipNotFound
	}

	m, exists := s.tenantMemberships[tenantUserKey{tenantID, userID}]
	if !exists {
		return nil, store.ErrMembershipNotFound
	}

	clone := cloneTenantMembership(m)
	return clone, nil
}

// ListForUser returns all tenant memberships held by a user.
func (s *MembershipStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.TenantMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scoped, hasScope := store.ScopedTenant(ctx)

	var result []*models.TenantMembership
	for key, m := range s.tenantMemberships {
		if key.userID != userID {
			continue
		}
		if hasScope && key.tenantID != scoped {
			continue
		}
		result = append(result, cloneTenantMembership(m))
	}

	return result, nil
}

// ListForTenant returns all tenant memberships within a tenant.
func (s *MembershipStore) ListForTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.TenantMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if scoped, ok := store.ScopedTenant(ctx); ok && scoped != tenantID {
		return nil, nil
	}

	var result []*models.TenantMembership
	for key, m := range s.tenantMemberships {
		if key.tenantID == tenantID {
			result = append(result, cloneTenantMembership(m))
		}
	}

	return result, nil
}

// UpsertTenantMembership inserts or replaces a tenant membership. Replacing
// an existing member's role set can strip an owner label, so the write is
// guarded by the ownership invariant like ReplaceTenantRoles.
func (s *MembershipStore) UpsertTenantMembership(ctx context.Context, m *models.TenantMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tenants.exists(m.TenantID) {
		return store.ErrTenantNotFound
	}
	if !s.users.exists(m.UserID) {
		return store.ErrUserNotFound
	}

	key := tenantUserKey{m.TenantID, m.UserID}

	if existing, ok := s.tenantMemberships[key]; ok && existing.HasRole(models.RoleLabelOwner) {
		keepsOwner := false
		for _, label := range m.Roles {
			if label == models.RoleLabelOwner {
				keepsOwner = true
				break
			}
		}
		if !keepsOwner {
			keepsOwner = s.holdsCompanyOwnerLocked(m.TenantID, m.UserID)
		}
		if !keepsOwner && s.countOwnersLocked(m.TenantID, &m.UserID) == 0 {
			return store.ErrLastOwner
		}
	}

	now := time.Now()

	clone := cloneTenantMembership(m)
	if existing, ok := s.tenantMemberships[key]; ok {
		clone.CreatedAt = existing.CreatedAt
	} else if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now
	}
	clone.UpdatedAt = now

	s.tenantMemberships[key] = clone
	return nil
}

// RemoveTenantMembership deletes a user's tenant membership and their
// company memberships in that tenant, guarded by the ownership invariant.
func (s *MembershipStore) RemoveTenantMembership(ctx context.Context, tenantID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tenantUserKey{tenantID, userID}
	if _, exists := s.tenantMemberships[key]; !exists {
		return store.ErrMembershipNotFound
	}

	if s.holdsOwnerLocked(tenantID, userID) && s.countOwnersLocked(tenantID, &userID) == 0 {
		return store.ErrLastOwner
	}

	delete(s.tenantMemberships, key)
	for ck, cm := range s.companyMemberships {
		if cm.TenantID == tenantID && ck.userID == userID {
			delete(s.companyMemberships, ck)
		}
	}

	return nil
}

// ReplaceTenantRoles overwrites a member's tenant-level role set, guarded by
// the ownership invariant when the change strips "owner".
func (s *MembershipStore) ReplaceTenantRoles(ctx context.Context, tenantID, userID uuid.UUID, roles []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tenantUserKey{tenantID, userID}
	existing, exists := s.tenantMemberships[key]
	if !exists {
		return store.ErrMembershipNotFound
	}

	keepsOwner := false
	for _, label := range roles {
		if label == models.RoleLabelOwner {
			keepsOwner = true
			break
		}
	}
	if !keepsOwner {
		keepsOwner = s.holdsCompanyOwnerLocked(tenantID, userID)
	}

	if s.holdsOwnerLocked(tenantID, userID) && !keepsOwner && s.countOwnersLocked(tenantID, &userID) == 0 {
		return store.ErrLastOwner
	}

	updated := *existing
	updated.Roles = append([]string(nil), roles...)
	updated.UpdatedAt = time.Now()
	s.tenantMemberships[key] = &updated

	return nil
}

// CountOwners returns the number of distinct users holding an owner role in
// the tenant, at tenant level or in any of its companies.
func (s *MembershipStore) CountOwners(ctx context.Context, tenantID uuid.UUID, excludeUserID *uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.countOwnersLocked(tenantID, excludeUserID), nil
}

// GetCompanyMembership retrieves a user's membership in a company.
func (s *MembershipStore) GetCompanyMembership(ctx context.Context, companyID, userID uuid.UUID) (*models.CompanyMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.companyMemberships[companyUserKey{companyID, userID}]
	if !exists {
		return nil, store.ErrMembershipNotFound
	}

	if scoped, ok := store.ScopedTenant(ctx); ok && scoped != m.TenantID {
		return nil, store.ErrMembershipNotFound
	}

	clone := *m
	return &clone, nil
}

// ListCompanyMembershipsForUser returns all company memberships a user
// holds within a tenant.
func (s *MembershipStore) ListCompanyMembershipsForUser(ctx context.Context, tenantID, userID uuid.UUID) ([]*models.CompanyMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if scoped, ok := store.ScopedTenant(ctx); ok && scoped != tenantID {
		return nil, nil
	}

	var result []*models.CompanyMembership
	for key, m := range s.companyMemberships {
		if key.userID == userID && m.TenantID == tenantID {
			clone := *m
			result = append(result, &clone)
		}
	}

	return result, nil
}

// ListForCompany returns all memberships within a company.
func (s *MembershipStore) ListForCompany(ctx context.Context, companyID uuid.UUID) ([]*models.CompanyMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scoped, hasScope := store.ScopedTenant(ctx)

	var result []*models.CompanyMembership
	for key, m := range s.companyMemberships {
		if key.companyID != companyID {
			continue
		}
		if hasScope && m.TenantID != scoped {
			continue
		}
		clone := *m
		result = append(result, &clone)
	}

	return result, nil
}

// UpsertCompanyMembership inserts or replaces a company membership after
// verifying the company, the user, and the tenant-scope invariant.
func (s *MembershipStore) UpsertCompanyMembership(ctx context.Context, m *models.CompanyMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	company, ok := s.companies.get(m.CompanyID)
	if !ok {
		return store.ErrCompanyNotFound
	}
	if company.TenantID != m.TenantID {
		return store.ErrCrossTenantMembership
	}
	if !s.users.exists(m.UserID) {
		return store.ErrUserNotFound
	}

	key := companyUserKey{m.CompanyID, m.UserID}

	// Demoting a company owner is guarded like any other owner removal.
	if existing, exists := s.companyMemberships[key]; exists &&
		existing.Role == models.RoleLabelOwner && m.Role != models.RoleLabelOwner {
		stillOwner := s.holdsTenantOwnerLocked(m.TenantID, m.UserID) ||
			s.holdsOtherCompanyOwnerLocked(m.TenantID, m.CompanyID, m.UserID)
		if !stillOwner && s.countOwnersLocked(m.TenantID, &m.UserID) == 0 {
			return store.ErrLastOwner
		}
	}

	now := time.Now()

	clone := *m
	if existing, exists := s.companyMemberships[key]; exists {
		clone.CreatedAt = existing.CreatedAt
	} else if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now
	}
	clone.UpdatedAt = now

	s.companyMemberships[key] = &clone
	return nil
}

// RemoveCompanyMembership deletes a user's company membership, guarded by
// the ownership invariant when the row is the user's last owner role.
func (s *MembershipStore) RemoveCompanyMembership(ctx context.Context, companyID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := companyUserKey{companyID, userID}
	m, exists := s.companyMemberships[key]
	if !exists {
		return store.ErrMembershipNotFound
	}

	if m.Role == models.RoleLabelOwner {
		stillOwner := s.holdsTenantOwnerLocked(m.TenantID, userID) ||
			s.holdsOtherCompanyOwnerLocked(m.TenantID, companyID, userID)
		if !stillOwner && s.countOwnersLocked(m.TenantID, &userID) == 0 {
			return store.ErrLastOwner
		}
	}

	delete(s.companyMemberships, key)
	return nil
}

// countOwnersLocked counts distinct users holding an owner role anywhere in
// the tenant. Callers must hold at least a read lock.
func (s *MembershipStore) countOwnersLocked(tenantID uuid.UUID, excludeUserID *uuid.UUID) int {
	owners := make(map[uuid.UUID]struct{})

	for key, m := range s.tenantMemberships {
		if key.tenantID != tenantID || !m.HasRole(models.RoleLabelOwner) {
			continue
		}
		if excludeUserID != nil && key.userID == *excludeUserID {
			continue
		}
		owners[key.userID] = struct{}{}
	}

	for key, m := range s.companyMemberships {
		if m.TenantID != tenantID || m.Role != models.RoleLabelOwner {
			continue
		}
		if excludeUserID != nil && key.userID == *excludeUserID {
			continue
		}
		owners[key.userID] = struct{}{}
	}

	return len(owners)
}

func (s *MembershipStore) holdsOwnerLocked(tenantID, userID uuid.UUID) bool {
	return s.holdsTenantOwnerLocked(tenantID, userID) || s.holdsCompanyOwnerLocked(tenantID, userID)
}

func (s *MembershipStore) holdsTenantOwnerLocked(tenantID, userID uuid.UUID) bool {
	m, ok := s.tenantMemberships[tenantUserKey{tenantID, userID}]
	return ok && m.HasRole(models.RoleLabelOwner)
}

func (s *MembershipStore) holdsCompanyOwnerLocked(tenantID, userID uuid.UUID) bool {
	for key, m := range s.companyMemberships {
		if m.TenantID == tenantID && key.userID == userID && m.Role == models.RoleLabelOwner {
			return true
		}
	}
	return false
}

func (s *MembershipStore) holdsOtherCompanyOwnerLocked(tenantID, companyID, userID uuid.UUID) bool {
	for key, m := range s.companyMemberships {
		if key.companyID == companyID {
			continue
		}
		if m.TenantID == tenantID && key.userID == userID && m.Role == models.RoleLabelOwner {
			return true
		}
	}
	return false
}

func cloneTenantMembership(m *models.TenantMembership) *models.TenantMembership {
	clone := *m
	clone.Roles = append([]string(nil), m.Roles...)
	return &clone
}
