package domain

// Role names a position in the platform hierarchy. Platform roles
// (super_admin, site_admin, operator) are not bound to a tenant;
// tenant roles (client_admin, client_user) always are.
type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleSiteAdmin   Role = "site_admin"
	RoleOperator    Role = "operator"
	RoleClientAdmin Role = "client_admin"
	RoleClientUser  Role = "client_user"
)

// ValidRole reports whether r is a known role name.
func ValidRole(r Role) bool {
	switch r {
	case RoleSuperAdmin, RoleSiteAdmin, RoleOperator, RoleClientAdmin, RoleClientUser:
		return true
	}
	return false
}

// TenantScoped reports whether a role must carry a tenant ID.
func (r Role) TenantScoped() bool {
	return r == RoleClientAdmin || r == RoleClientUser
}

// CanInvite reports whether a holder of r may invite a user with the
// target role. Super admins onboard tenant administrators; tenant
// administrators onboard their own users.
func (r Role) CanInvite(target Role) bool {
	switch r {
	case RoleSuperAdmin:
		return target == RoleClientAdmin
	case RoleClientAdmin:
		return target == RoleClientUser
	}
	return false
}
