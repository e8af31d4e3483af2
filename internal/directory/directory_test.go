package directory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenhq/warden/internal/hierarchy"
)

func newAdmin(id string, role hierarchy.Role, active bool) *Admin {
	now := time.Now()
	return &Admin{
		AdminID:   id,
		Email:     id + "@corp.test",
		Role:      role,
		IsActive:  active,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryStore_CreateGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a := newAdmin("ADM101", hierarchy.RoleAdmin, true)
	require.NoError(t, store.Create(ctx, a))

	got, err := store.Get(ctx, "ADM101")
	require.NoError(t, err)
	assert.Equal(t, hierarchy.RoleAdmin, got.Role)
	assert.True(t, got.IsActive)

	_, err = store.Get(ctx, "ADM999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_DuplicateContact(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Create(ctx, newAdmin("ADM101", hierarchy.RoleAdmin, true)))

	dup := newAdmin("ADM102", hierarchy.RoleAdmin, true)
	dup.Email = "ADM101@corp.test"
	assert.ErrorIs(t, store.Create(ctx, dup), ErrDuplicateContact)

	exists, err := store.ContactExists(ctx, "ADM101@corp.test", "")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.ContactExists(ctx, "nobody@corp.test", "")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStore_SetActive_Conditional(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newAdmin("ADM101", hierarchy.RoleAdmin, true)))

	change := StatusChange{By: "ADM100", Reason: "offboarding", At: time.Now()}

	// First deactivation wins.
	require.NoError(t, store.SetActive(ctx, "ADM101", true, false, change))

	// Second one lost the race: precondition no longer holds.
	err := store.SetActive(ctx, "ADM101", true, false, change)
	assert.ErrorIs(t, err, ErrStateConflict)

	got, err := store.Get(ctx, "ADM101")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, "ADM100", got.DeactivatedBy)
	assert.Equal(t, "offboarding", got.DeactivatedReason)

	// Missing record is a different failure than a lost race.
	err = store.SetActive(ctx, "ADM999", true, false, change)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SetActive_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newAdmin("ADM101", hierarchy.RoleAdmin, true)))

	const n = 20
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = store.SetActive(ctx, "ADM101", true, false,
				StatusChange{By: "ADM100", At: time.Now()})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrStateConflict)
		}
	}
	assert.Equal(t, 1, wins, "exactly one writer satisfies the precondition")
}

func TestMemoryStore_List_FilterAndPage(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	base := time.Now()
	for i, id := range []string{"ADM101", "ADM102", "ADM103"} {
		a := newAdmin(id, hierarchy.RoleAdmin, true)
		a.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.Create(ctx, a))
	}
	mid := newAdmin("ADM200", hierarchy.RoleMidAdmin, false)
	mid.CreatedAt = base.Add(3 * time.Second)
	require.NoError(t, store.Create(ctx, mid))

	admins, err := store.List(ctx, Filter{Role: hierarchy.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, admins, 3)

	inactive := false
	admins, err = store.List(ctx, Filter{Active: &inactive})
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "ADM200", admins[0].AdminID)

	// Limit+1 rows come back so callers can detect another page.
	admins, err = store.List(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, admins, 3)

	// Cursor resumes after the given position.
	admins, err = store.List(ctx, Filter{
		Cursor: &Cursor{CreatedAt: base.Add(time.Second), AdminID: "ADM102"},
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, admins, 2)
	assert.Equal(t, "ADM103", admins[0].AdminID)
}

func TestMemoryStore_DeleteInactiveBefore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	old := newAdmin("ADM101", hierarchy.RoleAdmin, false)
	old.UpdatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Create(ctx, old))

	fresh := newAdmin("ADM102", hierarchy.RoleAdmin, false)
	require.NoError(t, store.Create(ctx, fresh))

	activeOld := newAdmin("ADM103", hierarchy.RoleAdmin, true)
	activeOld.UpdatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Create(ctx, activeOld))

	deleted, err := store.DeleteInactiveBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = store.Get(ctx, "ADM101")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, "ADM103")
	assert.NoError(t, err)
}
