package auth

import "strings"

// Role is the privilege level carried in a token. Viewers read, operators
// act on their own account (offers, trades, transfers, burns, meters) and
// admins run authority operations (init, settings, meter authorization, mint).
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// ParseRole accepts a role name in any case.
func ParseRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if role.rank() == 0 {
		return "", false
	}
	return role, true
}

// Allows reports whether r may perform what required may.
func (r Role) Allows(required Role) bool {
	return r.rank() > 0 && r.rank() >= required.rank()
}

func (r Role) rank() int {
	switch r {
	case RoleViewer:
		return 1
	case RoleOperator:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}
