// Package directory is the persisted registry of administrator accounts.
//
// Lifecycle flags are only ever flipped through conditional updates: the
// write succeeds only if the record's current active flag still matches
// the caller's expectation, which is what makes concurrent activate and
// deactivate calls safe without locks.
package directory

import (
	"context"
	"errors"
	"time"

	"github.com/wardenhq/warden/internal/hierarchy"
)

// Errors
var (
	ErrNotFound         = errors.New("directory: admin not found")
	ErrDuplicateContact = errors.New("directory: contact already registered")
	ErrStateConflict    = errors.New("directory: admin already transitioned by another writer")
)

// Admin represents one administrator account.
type Admin struct {
	AdminID      string         `json:"adminId"`
	Email        string         `json:"email,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	Name         string         `json:"name,omitempty"`
	Role         hierarchy.Role `json:"roleType"`
	IsActive     bool           `json:"isActive"`
	SupervisorID string         `json:"supervisorId,omitempty"` // empty = none

	ActivatedBy       string `json:"activatedBy,omitempty"`
	ActivatedReason   string `json:"activatedReason,omitempty"`
	DeactivatedBy     string `json:"deactivatedBy,omitempty"`
	DeactivatedReason string `json:"deactivatedReason,omitempty"`

	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StatusChange carries the audit fields written alongside an
// activate/deactivate transition.
type StatusChange struct {
	By     string
	Reason string
	At     time.Time
}

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	Role         hierarchy.Role
	Active       *bool
	SupervisorID string
	Cursor       *Cursor
	Limit        int
}

// Cursor marks a position in a created_at/admin_id ordered listing.
type Cursor struct {
	CreatedAt time.Time
	AdminID   string
}

// Store persists admin accounts.
type Store interface {
	Create(ctx context.Context, a *Admin) error
	Get(ctx context.Context, adminID string) (*Admin, error)
	// ContactExists reports whether any admin already uses the given
	// email or phone (empty strings are ignored).
	ContactExists(ctx context.Context, email, phone string) (bool, error)
	// SetActive flips is_active only if it currently equals expect.
	// Returns ErrStateConflict when the record exists but the
	// precondition no longer holds, ErrNotFound when it is missing.
	SetActive(ctx context.Context, adminID string, expect, active bool, change StatusChange) error
	UpdateRole(ctx context.Context, adminID string, role hierarchy.Role, updatedBy string, at time.Time) error
	UpdateSupervisor(ctx context.Context, adminID, supervisorID, updatedBy string, at time.Time) error
	// List returns admins ordered by (created_at, admin_id) ascending,
	// up to Limit+1 rows so callers can detect a next page.
	List(ctx context.Context, f Filter) ([]*Admin, error)
	// DeleteInactiveBefore hard-deletes inactive admins whose last
	// update is older than cutoff. Used by the retention sweep only.
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
