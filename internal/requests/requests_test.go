package requests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenhq/warden/internal/hierarchy"
)

func newRequest(id string, t Type, target, by string) *StatusRequest {
	now := time.Now()
	return &StatusRequest{
		RequestID:     id,
		Type:          t,
		RequestedBy:   by,
		TargetAdminID: target,
		Status:        StatusPending,
		Reason:        "test",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestMemoryStore_OnePendingPerTargetAndType(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	require.NoError(t, store.Create(ctx, newRequest("REQ1", TypeDeactivation, "ADM101", "ADM200")))

	// Same type, same target: conflict, no new record.
	err := store.Create(ctx, newRequest("REQ2", TypeDeactivation, "ADM101", "ADM201"))
	assert.ErrorIs(t, err, ErrPendingExists)
	_, err = store.Get(ctx, "REQ2")
	assert.ErrorIs(t, err, ErrNotFound)

	// Opposite type for the same target is fine.
	require.NoError(t, store.Create(ctx, newRequest("REQ3", TypeActivation, "ADM101", "ADM200")))

	// Same type for a different target is fine.
	require.NoError(t, store.Create(ctx, newRequest("REQ4", TypeDeactivation, "ADM102", "ADM200")))
}

func TestMemoryStore_PendingUniquenessFreedAfterResolve(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	require.NoError(t, store.Create(ctx, newRequest("REQ1", TypeDeactivation, "ADM101", "ADM200")))
	require.NoError(t, store.Resolve(ctx, "REQ1", StatusRejected,
		Review{By: "ADM300", At: time.Now()}))

	// Once the first request is terminal a new pending one may exist.
	require.NoError(t, store.Create(ctx, newRequest("REQ2", TypeDeactivation, "ADM101", "ADM200")))
}

func TestMemoryStore_Resolve_Conditional(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	require.NoError(t, store.Create(ctx, newRequest("REQ1", TypeActivation, "ADM101", "ADM200")))

	review := Review{By: "ADM300", Notes: "approved", At: time.Now()}
	require.NoError(t, store.Resolve(ctx, "REQ1", StatusApproved, review))

	got, err := store.Get(ctx, "REQ1")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
	assert.Equal(t, "ADM300", got.ReviewedBy)
	require.NotNil(t, got.ReviewedAt)
	assert.True(t, got.IsTerminal())

	// Terminal states accept no further transition.
	err = store.Resolve(ctx, "REQ1", StatusRejected, review)
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	err = store.Resolve(ctx, "REQ9", StatusApproved, review)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_GetPending(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	require.NoError(t, store.Create(ctx, newRequest("REQ1", TypeDeactivation, "ADM101", "ADM200")))

	got, err := store.GetPending(ctx, "ADM101", TypeDeactivation)
	require.NoError(t, err)
	assert.Equal(t, "REQ1", got.RequestID)

	_, err = store.GetPending(ctx, "ADM101", TypeActivation)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_List_TargetRoleScope(t *testing.T) {
	ctx := context.Background()
	roles := map[string]hierarchy.Role{
		"ADM101": hierarchy.RoleAdmin,
		"ADM200": hierarchy.RoleMidAdmin,
		"ADM300": hierarchy.RoleSuperAdmin,
	}
	store := NewMemoryStore(func(_ context.Context, id string) (hierarchy.Role, error) {
		return roles[id], nil
	})

	require.NoError(t, store.Create(ctx, newRequest("REQ1", TypeDeactivation, "ADM101", "ADM200")))
	require.NoError(t, store.Create(ctx, newRequest("REQ2", TypeDeactivation, "ADM200", "ADM300")))
	require.NoError(t, store.Create(ctx, newRequest("REQ3", TypeDeactivation, "ADM300", "ADM300")))

	out, err := store.List(ctx, Filter{TargetRole: hierarchy.RoleAdmin})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "REQ1", out[0].RequestID)
}

func TestMemoryStore_List_FiltersAndCursor(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	base := time.Now()
	for i, id := range []string{"REQ1", "REQ2", "REQ3"} {
		r := newRequest(id, TypeDeactivation, "ADM10"+id[3:], "ADM200")
		r.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.Create(ctx, r))
	}

	out, err := store.List(ctx, Filter{RequestedBy: "ADM200", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, out, 3)

	out, err = store.List(ctx, Filter{
		Cursor: &Cursor{CreatedAt: base, RequestID: "REQ1"},
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "REQ2", out[0].RequestID)
}

func TestMemoryStore_DeleteResolvedBefore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	old := newRequest("REQ1", TypeDeactivation, "ADM101", "ADM200")
	require.NoError(t, store.Create(ctx, old))
	require.NoError(t, store.Resolve(ctx, "REQ1", StatusRejected,
		Review{By: "ADM300", At: time.Now().Add(-48 * time.Hour)}))

	pending := newRequest("REQ2", TypeDeactivation, "ADM102", "ADM200")
	pending.CreatedAt = time.Now().Add(-72 * time.Hour)
	pending.UpdatedAt = pending.CreatedAt
	require.NoError(t, store.Create(ctx, pending))

	deleted, err := store.DeleteResolvedBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// Pending requests survive regardless of age.
	_, err = store.Get(ctx, "REQ2")
	assert.NoError(t, err)
}
