// Package sequence mints collision-free, capacity-bounded identifiers
// from named monotonic counters.
//
// Allocation is a single atomic increment against the store, so any
// number of concurrent callers within one namespace receive distinct,
// strictly increasing sequence values without extra locking. Callers
// that fail after allocating must roll the counter back to avoid
// permanent numbering gaps.
package sequence

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCapacityExhausted signals that a namespace is full. It is a
	// business condition, not a fault: callers halt batch work on it
	// instead of retrying.
	ErrCapacityExhausted = errors.New("sequence: namespace capacity exhausted")
)

// Namespace describes one identifier space.
type Namespace struct {
	Key      string // counter key, e.g. "ADM"
	Prefix   string // leading characters of minted IDs
	Capacity int64  // maximum number of identifiers ever minted
}

// Counter is the persisted state of one namespace.
type Counter struct {
	Key string `json:"key"`
	Seq int64  `json:"seq"`
}

// Store persists counters. Next must be atomic: two concurrent calls on
// the same key never observe the same value.
type Store interface {
	// Next increments the counter for key (creating it at zero if
	// absent) and returns the post-increment value.
	Next(ctx context.Context, key string) (int64, error)
	// Rollback decrements the counter, clamped at zero. Returns true
	// if a counter row existed.
	Rollback(ctx context.Context, key string) (bool, error)
	// Current returns the counter value without changing it. Missing
	// counters read as zero.
	Current(ctx context.Context, key string) (int64, error)
}

// Allocator converts counter increments into prefixed identifiers.
type Allocator struct {
	store      Store
	originCode string
}

// NewAllocator creates an allocator. originCode is a fixed code folded
// into every identifier so IDs from different deployments never collide.
func NewAllocator(store Store, originCode string) *Allocator {
	return &Allocator{store: store, originCode: originCode}
}

// Allocate mints the next identifier in a namespace.
//
// The numeric part is capacity+seq, which keeps minted IDs clear of any
// pre-existing lower range and strictly increasing. When the namespace
// is full the increment is rolled back and ErrCapacityExhausted is
// returned; storage failures surface as-is.
func (a *Allocator) Allocate(ctx context.Context, ns Namespace) (string, error) {
	seq, err := a.store.Next(ctx, ns.Key)
	if err != nil {
		return "", fmt.Errorf("sequence: increment %s: %w", ns.Key, err)
	}
	if seq > ns.Capacity {
		// Undo the increment so the counter does not creep past
		// capacity under repeated attempts.
		if _, rbErr := a.store.Rollback(ctx, ns.Key); rbErr != nil {
			return "", fmt.Errorf("sequence: rollback after exhaustion on %s: %w", ns.Key, rbErr)
		}
		return "", ErrCapacityExhausted
	}
	return fmt.Sprintf("%s%s%d", ns.Prefix, a.originCode, ns.Capacity+seq), nil
}

// Rollback releases the most recent allocation in a namespace. Used when
// the record an ID was minted for could not be durably created.
func (a *Allocator) Rollback(ctx context.Context, ns Namespace) (bool, error) {
	ok, err := a.store.Rollback(ctx, ns.Key)
	if err != nil {
		return false, fmt.Errorf("sequence: rollback %s: %w", ns.Key, err)
	}
	return ok, nil
}
