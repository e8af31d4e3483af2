package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanActOn_StrictDominance(t *testing.T) {
	cases := []struct {
		actor, target Role
		want          bool
	}{
		{RoleSuperAdmin, RoleMidAdmin, true},
		{RoleSuperAdmin, RoleAdmin, true},
		{RoleMidAdmin, RoleAdmin, true},
		{RoleSuperAdmin, RoleSuperAdmin, false},
		{RoleMidAdmin, RoleMidAdmin, false},
		{RoleAdmin, RoleAdmin, false},
		{RoleAdmin, RoleMidAdmin, false},
		{RoleAdmin, RoleSuperAdmin, false},
		{RoleMidAdmin, RoleSuperAdmin, false},
	}
	for _, tc := range cases {
		got := CanActOn(tc.actor, tc.target)
		assert.Equal(t, tc.want, got, "%s acting on %s", tc.actor, tc.target)
	}
}

func TestCanActOn_MatchesLevelComparison(t *testing.T) {
	roles := []Role{RoleSuperAdmin, RoleMidAdmin, RoleAdmin}
	for _, a := range roles {
		for _, b := range roles {
			assert.Equal(t, Level(a) > Level(b), CanActOn(a, b))
		}
	}
}

func TestCanActOn_UnknownRolesDeny(t *testing.T) {
	assert.False(t, CanActOn("intern", RoleAdmin))
	assert.False(t, CanActOn(RoleSuperAdmin, "intern"))
	assert.False(t, CanActOn("", ""))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(RoleSuperAdmin))
	assert.True(t, Valid(RoleMidAdmin))
	assert.True(t, Valid(RoleAdmin))
	assert.False(t, Valid("root"))
	assert.False(t, Valid(""))
}

func TestHasPermission(t *testing.T) {
	assert.True(t, HasPermission(RoleSuperAdmin, PermAdminsImport))
	assert.True(t, HasPermission(RoleMidAdmin, PermRequestsReview))
	assert.False(t, HasPermission(RoleAdmin, PermRequestsReview))
	assert.False(t, HasPermission(RoleAdmin, PermAdminsDeactivate))
	assert.False(t, HasPermission("intern", PermAdminsView))
}

func TestHasPermissions_Modes(t *testing.T) {
	both := []Permission{PermAdminsView, PermRequestsReview}

	assert.True(t, HasPermissions(RoleMidAdmin, both, ModeAll))
	assert.False(t, HasPermissions(RoleAdmin, both, ModeAll))
	assert.True(t, HasPermissions(RoleAdmin, both, ModeAny))
	assert.False(t, HasPermissions(RoleAdmin, []Permission{PermAuditView}, ModeAny))

	// Empty list: vacuously true for ALL, false for ANY.
	assert.True(t, HasPermissions(RoleAdmin, nil, ModeAll))
	assert.False(t, HasPermissions(RoleAdmin, nil, ModeAny))
}

func TestPermissionsOf_Copy(t *testing.T) {
	perms := PermissionsOf(RoleAdmin)
	if len(perms) == 0 {
		t.Fatal("expected permissions for admin role")
	}
	perms[0] = "tampered"
	assert.NotContains(t, PermissionsOf(RoleAdmin), Permission("tampered"))
}

func TestCanSupervise(t *testing.T) {
	assert.True(t, CanSupervise(RoleSuperAdmin))
	assert.True(t, CanSupervise(RoleMidAdmin))
	assert.False(t, CanSupervise(RoleAdmin))
	assert.False(t, CanSupervise("intern"))
}
