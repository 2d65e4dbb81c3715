package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleSupervisor = "supervisor"
	RoleAgent      = "agent"
	RoleSuperAdmin = "super_admin"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }
