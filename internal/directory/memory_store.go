package directory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/hierarchy"
)

// MemoryStore is an in-memory admin store for demo/testing. It enforces
// the same conditional-update semantics as the Postgres store.
type MemoryStore struct {
	mu     sync.RWMutex
	admins map[string]*Admin // by AdminID
}

// NewMemoryStore creates a new in-memory admin store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{admins: make(map[string]*Admin)}
}

func (m *MemoryStore) Create(_ context.Context, a *Admin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.admins {
		if (a.Email != "" && existing.Email == a.Email) ||
			(a.Phone != "" && existing.Phone == a.Phone) {
			return ErrDuplicateContact
		}
	}
	cp := *a
	m.admins[a.AdminID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, adminID string) (*Admin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.admins[adminID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) ContactExists(_ context.Context, email, phone string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.admins {
		if (email != "" && a.Email == email) || (phone != "" && a.Phone == phone) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) SetActive(_ context.Context, adminID string, expect, active bool, change StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.admins[adminID]
	if !ok {
		return ErrNotFound
	}
	if a.IsActive != expect {
		return ErrStateConflict
	}
	a.IsActive = active
	if active {
		a.ActivatedBy = change.By
		a.ActivatedReason = change.Reason
	} else {
		a.DeactivatedBy = change.By
		a.DeactivatedReason = change.Reason
	}
	a.UpdatedBy = change.By
	a.UpdatedAt = change.At
	return nil
}

func (m *MemoryStore) UpdateRole(_ context.Context, adminID string, role hierarchy.Role, updatedBy string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.admins[adminID]
	if !ok {
		return ErrNotFound
	}
	a.Role = role
	a.UpdatedBy = updatedBy
	a.UpdatedAt = at
	return nil
}

func (m *MemoryStore) UpdateSupervisor(_ context.Context, adminID, supervisorID, updatedBy string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.admins[adminID]
	if !ok {
		return ErrNotFound
	}
	a.SupervisorID = supervisorID
	a.UpdatedBy = updatedBy
	a.UpdatedAt = at
	return nil
}

func (m *MemoryStore) List(_ context.Context, f Filter) ([]*Admin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Admin
	for _, a := range m.admins {
		if f.Role != "" && a.Role != f.Role {
			continue
		}
		if f.Active != nil && a.IsActive != *f.Active {
			continue
		}
		if f.SupervisorID != "" && a.SupervisorID != f.SupervisorID {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].AdminID < out[j].AdminID
	})
	if f.Cursor != nil {
		idx := sort.Search(len(out), func(i int) bool {
			if !out[i].CreatedAt.Equal(f.Cursor.CreatedAt) {
				return out[i].CreatedAt.After(f.Cursor.CreatedAt)
			}
			return out[i].AdminID > f.Cursor.AdminID
		})
		out = out[idx:]
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(out) > limit+1 {
		out = out[:limit+1]
	}
	return out, nil
}

func (m *MemoryStore) DeleteInactiveBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, a := range m.admins {
		if !a.IsActive && a.UpdatedAt.Before(cutoff) {
			delete(m.admins, id)
			deleted++
		}
	}
	return deleted, nil
}

var _ Store = (*MemoryStore)(nil)
