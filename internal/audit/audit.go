// Package audit records immutable before/after snapshots of every
// mutating administrative action.
//
// Recording is fire-and-forget: events go onto a bounded queue drained
// by a background writer, and anything unrecoverable (unknown event
// type, missing actor, full queue) is dropped with a log line instead of
// failing the business operation it describes. A crash between a
// mutation committing and its audit write completing loses the audit
// record while the mutation stands; availability of the primary
// operation wins over completeness of the trail.
package audit

import (
	"context"
	"time"
)

// EventType names one kind of administrative action.
type EventType string

const (
	EventAdminCreated           EventType = "admin.created"
	EventAdminActivated         EventType = "admin.activated"
	EventAdminDeactivated       EventType = "admin.deactivated"
	EventAdminRoleChanged       EventType = "admin.role_changed"
	EventAdminSupervisorChanged EventType = "admin.supervisor_changed"
	EventAdminImported          EventType = "admin.imported"
	EventRequestCreated         EventType = "request.created"
	EventRequestApproved        EventType = "request.approved"
	EventRequestRejected        EventType = "request.rejected"
	EventRequestAutoApproved    EventType = "request.auto_approved"
	EventRequestAutoRejected    EventType = "request.auto_rejected"
)

// knownEvents is the closed registry; Record silently drops anything else.
var knownEvents = map[EventType]bool{
	EventAdminCreated:           true,
	EventAdminActivated:         true,
	EventAdminDeactivated:       true,
	EventAdminRoleChanged:       true,
	EventAdminSupervisorChanged: true,
	EventAdminImported:          true,
	EventRequestCreated:         true,
	EventRequestApproved:        true,
	EventRequestRejected:        true,
	EventRequestAutoApproved:    true,
	EventRequestAutoRejected:    true,
}

// KnownEvent reports whether t is in the registry.
func KnownEvent(t EventType) bool {
	return knownEvents[t]
}

// Event is one immutable audit record.
type Event struct {
	ID          int64     `json:"id"`
	EventType   EventType `json:"eventType"`
	ActorID     string    `json:"actorId"`
	ActorRole   string    `json:"actorRole,omitempty"`
	TargetID    string    `json:"targetId,omitempty"`
	DeviceID    string    `json:"deviceId,omitempty"`
	RequestID   string    `json:"requestId,omitempty"` // correlation id
	Description string    `json:"description,omitempty"`
	OldData     string    `json:"oldData,omitempty"` // JSON snapshot
	NewData     string    `json:"newData,omitempty"` // JSON snapshot
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Filter narrows Query results.
type Filter struct {
	ActorID   string
	TargetID  string
	EventType EventType
	From      time.Time
	To        time.Time
	Limit     int
}

// Sink persists audit events.
type Sink interface {
	Append(ctx context.Context, e *Event) error
	Query(ctx context.Context, f Filter) ([]*Event, error)
}
