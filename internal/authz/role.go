package authz

import (
	"errors"
	"fmt"

	"github.com/meridianhq/tenantd/internal/models"
)

// ErrUnknownRole is returned when a role label is not one of the
// hierarchical roles.
var ErrUnknownRole = errors.New("unknown role")

// Role is a hierarchical access level with a total order:
// member < admin < owner. Company memberships carry exactly one Role;
// tenant memberships carry an open label set that EffectiveTenantRole
// folds down to a Role.
type Role int

const (
	RoleMember Role = iota
	RoleAdmin
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleMember:
		return models.RoleLabelMember
	case RoleAdmin:
		return models.RoleLabelAdmin
	case RoleOwner:
		return models.RoleLabelOwner
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ParseRole maps a hierarchical role label to its Role.
// Returns ErrUnknownRole for anything else, including non-hierarchical
// tenant labels like "billing".
func ParseRole(label string) (Role, error) {
	switch label {
	case models.RoleLabelMember:
		return RoleMember, nil
	case models.RoleLabelAdmin:
		return RoleAdmin, nil
	case models.RoleLabelOwner:
		return RoleOwner, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownRole, label)
	}
}

// AtLeast reports whether r grants at least the given minimum role.
func (r Role) AtLeast(min Role) bool {
	return r >= min
}

// EffectiveTenantRole folds an open tenant-level label set down to the
// highest hierarchical role it contains. Non-hierarchical labels are
// ignored for ranking; a label set with only those (e.g. just "billing")
// resolves to no hierarchical role.
func EffectiveTenantRole(labels []string) (Role, bool) {
	best := Role(-1)
	for _, label := range labels {
		role, err := ParseRole(label)
		if err != nil {
			continue
		}
		if role > best {
			best = role
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}
