package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/meridianhq/tenantd/internal/store"
)

// ScopeRunner implements store.ScopeRunner for the in-memory stores by
// carrying the scope in the context; the stores filter on it.
type ScopeRunner struct{}

// NewScopeRunner creates a scope runner for the in-memory stores.
func NewScopeRunner() *ScopeRunner {
	return &ScopeRunner{}
}

// WithTenantContext runs fn with row visibility restricted to tenantID.
func (r *ScopeRunner) WithTenantContext(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(store.WithScopedTenant(ctx, tenantID))
}

// WithoutTenantContext runs fn with any tenant scope cleared.
func (r *ScopeRunner) WithoutTenantContext(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(store.WithoutScope(ctx))
}
