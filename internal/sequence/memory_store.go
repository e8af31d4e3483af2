package sequence

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory counter store for demo/testing.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]int64
	failNext error // injected fault for tests
}

// NewMemoryStore creates a new in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]int64)}
}

func (m *MemoryStore) Next(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNext != nil {
		return 0, m.failNext
	}
	m.counters[key]++
	return m.counters[key], nil
}

func (m *MemoryStore) Rollback(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.counters[key]
	if !ok {
		return false, nil
	}
	if cur > 0 {
		m.counters[key] = cur - 1
	}
	return true, nil
}

func (m *MemoryStore) Current(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key], nil
}

// FailNext makes subsequent Next calls return err (nil clears the fault).
func (m *MemoryStore) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

var _ Store = (*MemoryStore)(nil)
