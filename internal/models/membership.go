package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Well-known tenant role labels. The tenant-level role set is open - labels
// outside this list (e.g. product-specific ones) are stored verbatim.
const (
	RoleLabelMember  = "member"
	RoleLabelAdmin   = "admin"
	RoleLabelOwner   = "owner"
	RoleLabelBilling = "billing"
)

// TenantMembership links a user to a tenant with a set of role labels.
// A user may hold multiple simultaneous tenant-level roles, including
// non-hierarchical labels like "billing".
type TenantMembership struct {
	TenantID  uuid.UUID
	UserID    uuid.UUID
	Roles     []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasRole reports whether the membership carries the given role label.
func (m *TenantMembership) HasRole(label string) bool {
	return slices.Contains(m.Roles, label)
}

// CompanyMembership links a user to a company with a single hierarchical
// role. TenantID always equals the company's TenantID; the store rejects
// rows that would violate this.
type CompanyMembership struct {
	TenantID  uuid.UUID
	UserID    uuid.UUID
	CompanyID uuid.UUID
	Role      string // "member", "admin" or "owner"
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserProfile is a read-only mirror of a user record owned by the external
// identity provider. This service never creates or mutates users, it only
// references their ids and reads the staff flag.
type UserProfile struct {
	UserID  uuid.UUID
	Email   string
	IsStaff bool // grants implicit owner access to every tenant
}
