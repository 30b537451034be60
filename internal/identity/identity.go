// Package identity carries the acting caller through the request context.
// Authentication happens upstream in the identity provider; this package
// only adapts its output (a verified principal, or a bearer token) into the
// form the authorization layer consumes.
package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrUnauthenticated is returned when no principal is present in the context.
var ErrUnauthenticated = errors.New("unauthenticated")

// Principal is the acting caller as supplied by the identity provider.
// IsStaff grants implicit owner access to every tenant; the role resolver
// is the only place that interprets it.
type Principal struct {
	UserID  uuid.UUID
	Email   string
	IsStaff bool
}

type principalKey struct{}

// WithPrincipal returns a context carrying the acting principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the acting principal, if one is present.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok
}

// Require returns the acting principal or ErrUnauthenticated.
func Require(ctx context.Context) (*Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	return p, nil
}
