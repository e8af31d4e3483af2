// Package lifecycle is the state machine that ties the admin directory
// and the status-request ledger together: direct activate/deactivate,
// request-then-approve/reject, and the automatic conflict resolution
// between the two paths.
//
// Every operation returns a sentinel error for expected business
// conditions; Classify buckets them so the HTTP layer (and batch
// callers) can decide between never-retry, refresh-then-retry, and
// escalate. Only unexpected faults (unreachable storage) surface as
// transient errors, and the orchestrator never retries internally;
// the conditional-update guard in the stores is what makes blind
// retries by callers safe.
package lifecycle

import (
	"errors"

	"github.com/wardenhq/warden/internal/directory"
	"github.com/wardenhq/warden/internal/hierarchy"
	"github.com/wardenhq/warden/internal/requests"
	"github.com/wardenhq/warden/internal/sequence"
)

// Errors returned for expected business conditions.
var (
	ErrActorInactive       = errors.New("lifecycle: acting admin is not active")
	ErrNotAuthorized       = errors.New("lifecycle: actor role does not dominate target")
	ErrUnknownRole         = errors.New("lifecycle: unknown role")
	ErrSuperAdminProtected = errors.New("lifecycle: super admins are exempt from activation state changes")
	ErrSelfDeactivation    = errors.New("lifecycle: direct self-deactivation is forbidden")
	ErrSelfReview          = errors.New("lifecycle: reviewing one's own request is forbidden")
	ErrAlreadyActive       = errors.New("lifecycle: admin is already active")
	ErrAlreadyInactive     = errors.New("lifecycle: admin is already inactive")
	ErrSameRole            = errors.New("lifecycle: new role equals current role")
	ErrSameSupervisor      = errors.New("lifecycle: new supervisor equals current supervisor")
	ErrSelfSupervisor      = errors.New("lifecycle: admin cannot supervise itself")
	ErrSupervisorNotFound  = errors.New("lifecycle: supervisor does not exist")
	ErrSupervisorInactive  = errors.New("lifecycle: supervisor is not active")
	ErrSupervisorRole      = errors.New("lifecycle: supervisor role cannot supervise")
	ErrContactRequired     = errors.New("lifecycle: contact identifier required by auth mode")
)

// Kind buckets an operation failure for response mapping.
type Kind string

const (
	KindOK            Kind = "ok"
	KindAuthorization Kind = "authorization"
	KindValidation    Kind = "validation"
	KindStateConflict Kind = "state_conflict"
	KindCapacity      Kind = "capacity_exhausted"
	KindNotFound      Kind = "not_found"
	KindTransient     Kind = "transient"
)

// Classify maps an operation error to its failure kind. Unrecognized
// errors are transient infrastructure faults by definition.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrActorInactive),
		errors.Is(err, ErrNotAuthorized),
		errors.Is(err, ErrSelfReview):
		return KindAuthorization
	case errors.Is(err, ErrAlreadyActive),
		errors.Is(err, ErrAlreadyInactive),
		errors.Is(err, directory.ErrStateConflict),
		errors.Is(err, requests.ErrAlreadyResolved),
		errors.Is(err, requests.ErrPendingExists),
		errors.Is(err, directory.ErrDuplicateContact):
		return KindStateConflict
	case errors.Is(err, sequence.ErrCapacityExhausted):
		return KindCapacity
	case errors.Is(err, directory.ErrNotFound),
		errors.Is(err, requests.ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnknownRole),
		errors.Is(err, ErrSuperAdminProtected),
		errors.Is(err, ErrSelfDeactivation),
		errors.Is(err, ErrSameRole),
		errors.Is(err, ErrSameSupervisor),
		errors.Is(err, ErrSelfSupervisor),
		errors.Is(err, ErrSupervisorNotFound),
		errors.Is(err, ErrSupervisorInactive),
		errors.Is(err, ErrSupervisorRole),
		errors.Is(err, ErrContactRequired):
		return KindValidation
	}
	return KindTransient
}

// Actor is the authenticated principal an operation runs as. It is
// resolved by the transport layer; the orchestrator trusts it.
type Actor = hierarchy.Actor

// AuthMode selects which contact identifiers admins carry.
type AuthMode string

const (
	AuthModeEmail AuthMode = "email"
	AuthModePhone AuthMode = "phone"
	AuthModeBoth  AuthMode = "both"
)

// Config holds process-wide policy constructed once at startup and
// passed in explicitly.
type Config struct {
	AuthMode         AuthMode
	AdminNamespace   sequence.Namespace
	RequestNamespace sequence.Namespace
}
