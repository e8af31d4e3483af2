// Package hierarchy implements the role dominance model and static
// permission tables used on every authorization decision.
//
// All functions here are pure: no I/O, no caching, safe to call on
// every request.
package hierarchy

// Role identifies an administrator's rank.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleMidAdmin   Role = "mid_admin"
	RoleAdmin      Role = "admin"
)

// Dominance levels. Higher acts on strictly lower only.
const (
	levelAdmin      = 1
	levelMidAdmin   = 2
	levelSuperAdmin = 3
)

// Valid reports whether r is a known role.
func Valid(r Role) bool {
	switch r {
	case RoleSuperAdmin, RoleMidAdmin, RoleAdmin:
		return true
	}
	return false
}

// Level returns the dominance level for a role. Unknown roles return 0,
// which loses every comparison.
func Level(r Role) int {
	switch r {
	case RoleSuperAdmin:
		return levelSuperAdmin
	case RoleMidAdmin:
		return levelMidAdmin
	case RoleAdmin:
		return levelAdmin
	}
	return 0
}

// CanActOn reports whether an actor with role a may act on a target with
// role b. The check is strictly-greater: same-level and upward actions
// are always denied, and unknown roles on either side deny.
func CanActOn(a, b Role) bool {
	la, lb := Level(a), Level(b)
	if la == 0 || lb == 0 {
		return false
	}
	return la > lb
}

// Actor is the already-authenticated principal supplied by the upstream
// gateway. Downstream services trust it and perform no credential checks.
type Actor struct {
	AdminID  string
	Role     Role
	IsActive bool
	DeviceID string // forwarded into the audit trail
}

// CanSupervise reports whether a role is allowed to be set as another
// admin's supervisor.
func CanSupervise(r Role) bool {
	return r == RoleMidAdmin || r == RoleSuperAdmin
}
