package requests

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/hierarchy"
)

// RoleLookup resolves a target admin's role for scoped listings. The
// Postgres store does this with a join; the memory store needs a hook.
type RoleLookup func(ctx context.Context, adminID string) (hierarchy.Role, error)

// MemoryStore is an in-memory request store for demo/testing.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]*StatusRequest // by RequestID
	roles    RoleLookup
}

// NewMemoryStore creates a new in-memory request store. lookup may be
// nil if scoped listings by target role are not needed.
func NewMemoryStore(lookup RoleLookup) *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]*StatusRequest),
		roles:    lookup,
	}
}

func (m *MemoryStore) Create(_ context.Context, r *StatusRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.requests {
		if existing.TargetAdminID == r.TargetAdminID &&
			existing.Type == r.Type &&
			existing.Status == StatusPending {
			return ErrPendingExists
		}
	}
	cp := *r
	m.requests[r.RequestID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, requestID string) (*StatusRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.requests[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) GetPending(_ context.Context, targetAdminID string, t Type) (*StatusRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.requests {
		if r.TargetAdminID == targetAdminID && r.Type == t && r.Status == StatusPending {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Resolve(_ context.Context, requestID string, status Status, review Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[requestID]
	if !ok {
		return ErrNotFound
	}
	if r.Status != StatusPending {
		return ErrAlreadyResolved
	}
	r.Status = status
	r.ReviewedBy = review.By
	r.ReviewNotes = review.Notes
	at := review.At
	r.ReviewedAt = &at
	r.UpdatedAt = review.At
	return nil
}

func (m *MemoryStore) List(ctx context.Context, f Filter) ([]*StatusRequest, error) {
	m.mu.RLock()
	candidates := make([]*StatusRequest, 0, len(m.requests))
	for _, r := range m.requests {
		cp := *r
		candidates = append(candidates, &cp)
	}
	m.mu.RUnlock()

	var out []*StatusRequest
	for _, r := range candidates {
		if f.TargetRole != "" {
			if m.roles == nil {
				continue
			}
			role, err := m.roles(ctx, r.TargetAdminID)
			if err != nil || role != f.TargetRole {
				continue
			}
		}
		if f.TargetAdminID != "" && r.TargetAdminID != f.TargetAdminID {
			continue
		}
		if f.RequestedBy != "" && r.RequestedBy != f.RequestedBy {
			continue
		}
		if f.Type != "" && r.Type != f.Type {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].RequestID < out[j].RequestID
	})
	if f.Cursor != nil {
		idx := sort.Search(len(out), func(i int) bool {
			if !out[i].CreatedAt.Equal(f.Cursor.CreatedAt) {
				return out[i].CreatedAt.After(f.Cursor.CreatedAt)
			}
			return out[i].RequestID > f.Cursor.RequestID
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

func (m *MemoryStore) DeleteResolvedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, r := range m.requests {
		if r.Status != StatusPending && r.UpdatedAt.Before(cutoff) {
			delete(m.requests, id)
			deleted++
		}
	}
	return deleted, nil
}

var _ Store = (*MemoryStore)(nil)
