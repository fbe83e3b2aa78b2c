package rbac

// Role constants
const (
	RoleReader = "reader"
	RoleWriter = "writer"
	RoleAdmin  = "admin"
)

// Permission constants
const (
	PermReadEntities  = "read_entities"
	PermWriteEntities = "write_entities"
	PermReadAudit     = "read_audit"
	PermManageTypes   = "manage_types"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleReader: {PermReadEntities},
	RoleWriter: {PermReadEntities, PermWriteEntities},
	RoleAdmin:  {PermReadEntities, PermWriteEntities, PermReadAudit, PermManageTypes},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// AnyHasPermission checks a set of roles.
func AnyHasPermission(roles []string, permission string) bool {
	for _, r := range roles {
		if HasPermission(r, permission) {
			return true
		}
	}
	return false
}

// IsKnownRole reports whether role is defined.
func IsKnownRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}
