// Package requests is the persisted ledger of activation/deactivation
// requests and their approval state.
//
// The store enforces two invariants: at most one pending request per
// (target, type) pair, and a pending request resolves exactly once. Both
// are enforced by the storage layer itself (a partial unique index and a
// conditional update), not by application locks.
package requests

import (
	"context"
	"errors"
	"time"

	"github.com/wardenhq/warden/internal/hierarchy"
)

// Errors
var (
	ErrNotFound        = errors.New("requests: request not found")
	ErrPendingExists   = errors.New("requests: pending request of this type already exists for target")
	ErrAlreadyResolved = errors.New("requests: request already resolved")
)

// Type distinguishes what the request asks for.
type Type string

const (
	TypeActivation   Type = "activation"
	TypeDeactivation Type = "deactivation"
)

// Status is the approval state of a request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// StatusRequest represents one request to activate or deactivate an admin.
type StatusRequest struct {
	RequestID     string     `json:"requestId"`
	Type          Type       `json:"requestType"`
	RequestedBy   string     `json:"requestedBy"`
	TargetAdminID string     `json:"targetAdminId"`
	Status        Status     `json:"status"`
	Reason        string     `json:"reason,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	ReviewedBy    string     `json:"reviewedBy,omitempty"`
	ReviewedAt    *time.Time `json:"reviewedAt,omitempty"`
	ReviewNotes   string     `json:"reviewNotes,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// IsTerminal reports whether the request has left the pending state.
func (r *StatusRequest) IsTerminal() bool {
	return r.Status != StatusPending
}

// Review carries the reviewer fields written when a request resolves.
type Review struct {
	By    string
	Notes string
	At    time.Time
}

// Filter narrows List results. Zero values mean "no constraint".
// TargetRole and TargetAdminID express the mandatory hierarchy scope and
// are applied by the store before any caller-supplied paging.
type Filter struct {
	TargetAdminID string
	TargetRole    hierarchy.Role
	RequestedBy   string
	Type          Type
	Status        Status
	Cursor        *Cursor
	Limit         int
}

// Cursor marks a position in a created_at/request_id ordered listing.
type Cursor struct {
	CreatedAt time.Time
	RequestID string
}

// Store persists status requests.
type Store interface {
	// Create inserts a pending request. Returns ErrPendingExists when a
	// pending request of the same type already targets the same admin.
	Create(ctx context.Context, r *StatusRequest) error
	Get(ctx context.Context, requestID string) (*StatusRequest, error)
	// GetPending returns the pending request of the given type for a
	// target, or ErrNotFound.
	GetPending(ctx context.Context, targetAdminID string, t Type) (*StatusRequest, error)
	// Resolve moves a request out of pending. The update is conditional
	// on the request still being pending; a request that already left
	// pending returns ErrAlreadyResolved.
	Resolve(ctx context.Context, requestID string, status Status, review Review) error
	// List returns requests ordered by (created_at, request_id)
	// ascending, up to Limit+1 rows.
	List(ctx context.Context, f Filter) ([]*StatusRequest, error)
	// DeleteResolvedBefore hard-deletes terminal requests older than
	// cutoff. Used by the retention sweep only.
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
