package auth

import "fmt"

// Role is an authorisation tier.
type Role string

const (
	// RoleViewer can list boards, read history and subscribe to the stream.
	RoleViewer Role = "viewer"

	// RoleOperator can also change keymaps and LEDs.
	RoleOperator Role = "operator"

	// RoleAdmin can also enumerate hardware and change the poll rate.
	RoleAdmin Role = "admin"
)

// ValidRoles lists every role, least privileged first.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// ParseRole converts a role name, as given on the command line.
func ParseRole(s string) (Role, error) {
	for _, r := range ValidRoles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Permission is a named capability.
type Permission string

// Permission constants.
const (
	PermBoardRead      Permission = "board:read"
	PermBoardConfigure Permission = "board:configure"
	PermSystemAdmin    Permission = "system:admin"
)

// rolePermissions is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermBoardRead,
	},
	RoleOperator: {
		PermBoardRead,
		PermBoardConfigure,
	},
	RoleAdmin: {
		PermBoardRead,
		PermBoardConfigure,
		PermSystemAdmin,
	},
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns a copy of the permissions granted to role, or
// nil for an unknown role.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
