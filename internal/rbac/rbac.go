package rbac

import "strings"

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleBuilder Role = "builder"
	RoleMember  Role = "member"
)

// Roles lists the seedable roles in precedence order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleBuilder, RoleMember}
}

// Parse accepts a role name case-insensitively.
func Parse(role string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(role))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleBuilder:
		return RoleBuilder, true
	case RoleMember:
		return RoleMember, true
	default:
		return "", false
	}
}
