package hierarchy

// Permission is a resource:action pair.
type Permission string

const (
	PermAdminsView       Permission = "admins.view"
	PermAdminsCreate     Permission = "admins.create"
	PermAdminsUpdate     Permission = "admins.update"
	PermAdminsActivate   Permission = "admins.activate"
	PermAdminsDeactivate Permission = "admins.deactivate"
	PermAdminsImport     Permission = "admins.import"

	PermRequestsView    Permission = "requests.view"
	PermRequestsCreate  Permission = "requests.create"
	PermRequestsReview  Permission = "requests.review"

	PermAuditView Permission = "audit.view"
)

// CheckMode selects how multi-permission checks combine.
type CheckMode int

const (
	// ModeAll requires every listed permission.
	ModeAll CheckMode = iota
	// ModeAny requires at least one listed permission.
	ModeAny
)

// rolePermissions is the static role → permission table. Resolution is a
// map lookup; there is deliberately no way to grant or revoke at runtime.
var rolePermissions = map[Role][]Permission{
	RoleSuperAdmin: {
		PermAdminsView, PermAdminsCreate, PermAdminsUpdate,
		PermAdminsActivate, PermAdminsDeactivate, PermAdminsImport,
		PermRequestsView, PermRequestsCreate, PermRequestsReview,
		PermAuditView,
	},
	RoleMidAdmin: {
		PermAdminsView, PermAdminsCreate, PermAdminsUpdate,
		PermAdminsActivate, PermAdminsDeactivate,
		PermRequestsView, PermRequestsCreate, PermRequestsReview,
	},
	RoleAdmin: {
		PermAdminsView,
		PermRequestsView, PermRequestsCreate,
	},
}

// PermissionsOf returns the permission set for a role. Unknown roles get
// an empty set. The returned slice is a copy.
func PermissionsOf(r Role) []Permission {
	perms := rolePermissions[r]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// HasPermission reports whether a role holds a single permission.
func HasPermission(r Role, p Permission) bool {
	for _, have := range rolePermissions[r] {
		if have == p {
			return true
		}
	}
	return false
}

// HasPermissions checks multiple permissions under the given mode.
// An empty permission list is satisfied under ModeAll and not under ModeAny.
func HasPermissions(r Role, perms []Permission, mode CheckMode) bool {
	if mode == ModeAny {
		for _, p := range perms {
			if HasPermission(r, p) {
				return true
			}
		}
		return false
	}
	for _, p := range perms {
		if !HasPermission(r, p) {
			return false
		}
	}
	return true
}
