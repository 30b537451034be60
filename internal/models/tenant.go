package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents a customer account and the top-level isolation boundary.
// Every company and membership below belongs to exactly one tenant.
// Tenants are never physically deleted.
type Tenant struct {
	TenantID  uuid.UUID // UUIDv7
	Name      string
	Billing   BillingSettings // opaque billing payload, persisted as-is
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BillingSettings is an opaque billing payload owned by the billing
// subsystem. This service stores and returns it without interpreting it,
// except for reporting whether it is configured at all.
type BillingSettings map[string]any

// Configured returns true if any billing settings have been stored.
func (b BillingSettings) Configured() bool {
	return len(b) > 0
}

// Plan returns the billing plan label if one is present, or "" otherwise.
// This is the only key the statistics operation peeks at.
func (b BillingSettings) Plan() string {
	if b == nil {
		return ""
	}
	if plan, ok := b["plan"].(string); ok {
		return plan
	}
	return ""
}

// Company represents an organizational unit inside a tenant.
// The TenantID is immutable after creation.
type Company struct {
	CompanyID uuid.UUID // UUIDv7
	TenantID  uuid.UUID // FK to tenants, immutable
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
