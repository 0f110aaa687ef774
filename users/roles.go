package users

// Permission names an action a role is allowed to perform.
type Permission string

const (
	PermissionUserRead  Permission = "user:read"
	PermissionUserWrite Permission = "user:write"
	PermissionAppManage Permission = "app:manage"
)

const (
	RoleAdmin  = "admin"
	RoleUser   = "user"
	RoleViewer = "viewer"
)

// DefaultRoles is the role set assigned to newly created users.
func DefaultRoles() []string {
	return []string{RoleUser}
}

var rolePermissions = map[string][]Permission{
	RoleAdmin:  {PermissionUserRead, PermissionUserWrite, PermissionAppManage},
	RoleUser:   {PermissionUserRead},
	RoleViewer: {},
}

// PermissionsOf flattens a role set into its combined permission set.
// Unknown roles contribute nothing.
func PermissionsOf(roles []string) []Permission {
	seen := make(map[Permission]struct{})
	permissions := make([]Permission, 0)
	for _, role := range roles {
		for _, p := range rolePermissions[role] {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			permissions = append(permissions, p)
		}
	}
	return permissions
}

// RequireAll reports whether have contains every permission in need.
func RequireAll(have []Permission, need ...Permission) bool {
	haveSet := make(map[Permission]struct{}, len(have))
	for _, p := range have {
		haveSet[p] = struct{}{}
	}
	for _, p := range need {
		if _, ok := haveSet[p]; !ok {
			return false
		}
	}
	return true
}
