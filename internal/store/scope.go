package store

import (
	"context"

	"github.com/google/uuid"
)

// ScopeRunner executes a callback with (or explicitly without) tenant
// scoping applied to the store queries it performs. Each call gets its own
// scoped execution context carried in the context.Context - scoping never
// leaks across concurrent logical requests.
type ScopeRunner interface {
	// WithTenantContext runs fn with row visibility restricted to the given
	// tenant. Errors returned by fn propagate unchanged.
	WithTenantContext(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) error

	// WithoutTenantContext runs fn with no tenant scoping applied, for
	// cross-tenant administrative reads such as the isolation checker.
	WithoutTenantContext(ctx context.Context, fn func(ctx context.Context) error) error
}

type scopedTenantKey struct{}

// WithScopedTenant returns a context carrying the active tenant scope.
// Store implementations use it to restrict row visibility.
func WithScopedTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, scopedTenantKey{}, tenantID)
}

// WithoutScope returns a context with any tenant scope cleared.
func WithoutScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopedTenantKey{}, uuid.Nil)
}

// ScopedTenant returns the tenant scope carried by the context, if any.
func ScopedTenant(ctx context.Context) (uuid.UUID, bool) {
	tenantID, ok := ctx.Value(scopedTenantKey{}).(uuid.UUID)
	if !ok || tenantID == uuid.Nil {
		return uuid.Nil, false
	}
	return tenantID, true
}
