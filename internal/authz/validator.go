package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrAccessDenied is returned when a caller's effective role is below the
// operation's minimum. Use errors.Is to test for it; the concrete error is
// an *AccessError carrying the details.
var ErrAccessDenied = errors.New("access denied")

// AccessError describes a failed access check with enough context for the
// caller to render an actionable message. Raw store errors never appear here.
type AccessError struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Required Role
	Actual   *Role // nil when the user has no membership at all
}

func (e *AccessError) Error() string {
	if e.Actual == nil {
		return fmt.Sprintf("access denied: user %s has no role in tenant %s (requires %s)",
			e.UserID, e.TenantID, e.Required)
	}
	return fmt.Sprintf("access denied: user %s holds %s in tenant %s (requires %s)",
		e.UserID, *e.Actual, e.TenantID, e.Required)
}

func (e *AccessError) Unwrap() error {
	return ErrAccessDenied
}

// Validator compares resolved roles against required minimums. It performs
// no mutation and is safe for concurrent use.
type Validator struct {
	resolver *Resolver
}

// NewValidator creates an access validator over the given resolver.
func NewValidator(resolver *Resolver) *Validator {
	return &Validator{resolver: resolver}
}

// HasAccess reports whether userID holds at least min in the tenant (or
// company, when companyID is non-nil). A missing membership is a false
// result, not an error; only store failures return an error.
func (v *Validator) HasAccess(ctx context.Context, userID, tenantID uuid.UUID, min Role, companyID *uuid.UUID) (bool, error) {
	role, ok, err := v.resolver.EffectiveRole(ctx, userID, tenantID, companyID)
	if err != nil {
		return false, err
	}
	return ok && role.AtLeast(min), nil
}

// RequireAccess is the assertive variant of HasAccess: it returns an
// *AccessError (wrapping ErrAccessDenied) when the check fails.
func (v *Validator) RequireAccess(ctx context.Context, userID, tenantID uuid.UUID, min Role, companyID *uuid.UUID) error {
	role, ok, err := v.resolver.EffectiveRole(ctx, userID, tenantID, companyID)
	if err != nil {
		return err
	}
	if !ok {
		return &AccessError{UserID: userID, TenantID: tenantID, Required: min}
	}
	if !role.AtLeast(min) {
		actual := role
		return &AccessError{UserID: userID, TenantID: tenantID, Required: min, Actual: &actual}
	}
	return nil
}
