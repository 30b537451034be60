package tenant

import (
	"errors"
	"fmt"

	"github.com/meridianhq/tenantd/internal/authz"
	"github.com/meridianhq/tenantd/internal/store"
	"github.com/rs/zerolog/log"
)

// The service surfaces a small, stable error taxonomy. Store sentinels that
// are meaningful to callers pass through under these names; everything else
// is logged and folded into ErrStore so raw storage detail never reaches an
// end user.
var (
	ErrTenantNotFound  = store.ErrTenantNotFound
	ErrCompanyNotFound = store.ErrCompanyNotFound
	ErrUserNotFound    = store.ErrUserNotFound
	ErrLastOwner       = store.ErrLastOwner
	ErrAccessDenied    = authz.ErrAccessDenied

	// ErrNotAMember is returned when an operation targets a membership that
	// does not exist.
	ErrNotAMember = errors.New("user is not a member of this tenant")

	// ErrInvalidName is returned when a tenant or company name is empty or
	// whitespace.
	ErrInvalidName = errors.New("name must not be empty")

	// ErrInvalidRole is returned when a role label is malformed.
	ErrInvalidRole = errors.New("invalid role label")

	// ErrStore wraps unexpected storage failures.
	ErrStore = errors.New("storage failure")
)

// storeFailure logs the underlying error and returns an opaque ErrStore
// wrapper naming only the failed operation.
func storeFailure(op string, err error) error {
	log.Error().Err(err).Str("operation", op).Msg("store operation failed")
	return fmt.Errorf("%s: %w", op, ErrStore)
}

// validRoleLabel reports whether a role label is well formed: lowercase
// letters, digits, hyphens and underscores, starting with a letter. The
// label set itself is open; unknown labels are stored as-is and simply do
// not rank in the role hierarchy.
func validRoleLabel(label string) bool {
	if label == "" {
		return false
	}
	if label[0] < 'a' || label[0] > 'z' {
		return false
	}
	for i := 1; i < len(label); i++ {
		c := label[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}

func validateRoleLabels(roles []string) error {
	if len(roles) == 0 {
		return fmt.Errorf("%w: at least one role is required", ErrInvalidRole)
	}
	for _, label := range roles {
		if !validRoleLabel(label) {
			return fmt.Errorf("%w: %q", ErrInvalidRole, label)
		}
	}
	return nil
}
