package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/directory"
	"github.com/wardenhq/warden/internal/hierarchy"
	"github.com/wardenhq/warden/internal/metrics"
	"github.com/wardenhq/warden/internal/notify"
	"github.com/wardenhq/warden/internal/requests"
	"github.com/wardenhq/warden/internal/traces"
)

// RequestParams are the inputs for opening a status request.
type RequestParams struct {
	TargetAdminID string
	Reason        string
	Notes         string
}

// RequestDeactivation opens a pending deactivation request instead of
// mutating the admin. Unlike the direct path, requesting one's own
// deactivation is allowed: the request path exists precisely so an
// admin can ask without unilaterally executing.
func (s *Service) RequestDeactivation(ctx context.Context, actor Actor, p RequestParams) (*requests.StatusRequest, error) {
	ctx, span := traces.StartSpan(ctx, "lifecycle.request_deactivation",
		traces.ActorID(actor.AdminID), traces.AdminID(p.TargetAdminID))
	defer span.End()
	r, err := s.createRequest(ctx, actor, requests.TypeDeactivation, p)
	return r, finish("request_deactivation", err)
}

// RequestActivation opens a pending activation request for an inactive
// admin.
func (s *Service) RequestActivation(ctx context.Context, actor Actor, p RequestParams) (*requests.StatusRequest, error) {
	ctx, span := traces.StartSpan(ctx, "lifecycle.request_activation",
		traces.ActorID(actor.AdminID), traces.AdminID(p.TargetAdminID))
	defer span.End()
	r, err := s.createRequest(ctx, actor, requests.TypeActivation, p)
	return r, finish("request_activation", err)
}

func (s *Service) createRequest(ctx context.Context, actor Actor, t requests.Type, p RequestParams) (*requests.StatusRequest, error) {
	if err := requireActiveActor(actor); err != nil {
		return nil, err
	}
	target, err := s.admins.Get(ctx, p.TargetAdminID)
	if err != nil {
		return nil, err
	}
	if target.Role == hierarchy.RoleSuperAdmin {
		return nil, ErrSuperAdminProtected
	}

	selfRequest := actor.AdminID == target.AdminID
	if selfRequest {
		// Only a deactivation may be self-requested; an inactive admin
		// is never an authenticated actor, so self-activation cannot
		// arise anyway.
		if t != requests.TypeDeactivation {
			return nil, ErrNotAuthorized
		}
	} else if !hierarchy.CanActOn(actor.Role, target.Role) {
		return nil, ErrNotAuthorized
	}

	// Requesting a transition the admin is already in makes no sense.
	if t == requests.TypeDeactivation && !target.IsActive {
		return nil, ErrAlreadyInactive
	}
	if t == requests.TypeActivation && target.IsActive {
		return nil, ErrAlreadyActive
	}

	requestID, err := s.ids.Allocate(ctx, s.cfg.RequestNamespace)
	if err != nil {
		metrics.SequenceAllocationsTotal.WithLabelValues(s.cfg.RequestNamespace.Key, allocResult(err)).Inc()
		return nil, err
	}
	metrics.SequenceAllocationsTotal.WithLabelValues(s.cfg.RequestNamespace.Key, "ok").Inc()

	now := time.Now().UTC()
	r := &requests.StatusRequest{
		RequestID:     requestID,
		Type:          t,
		RequestedBy:   actor.AdminID,
		TargetAdminID: target.AdminID,
		Status:        requests.StatusPending,
		Reason:        p.Reason,
		Notes:         p.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.requests.Create(ctx, r); err != nil {
		if _, rbErr := s.ids.Rollback(ctx, s.cfg.RequestNamespace); rbErr != nil {
			s.logger.Error("sequence rollback failed after request create failure",
				"namespace", s.cfg.RequestNamespace.Key, "error", rbErr)
		}
		return nil, err
	}

	s.record(ctx, actor, &audit.Event{
		EventType:   audit.EventRequestCreated,
		TargetID:    target.AdminID,
		Description: fmt.Sprintf("%s request opened", t),
		NewData:     audit.Snapshot(r),
		Reason:      p.Reason,
	})
	s.notifier.Notify(ctx, target.AdminID, actor.AdminID, notify.KindRequestCreated, map[string]string{
		"request_id": r.RequestID,
		"type":       string(t),
	})
	return r, nil
}

// ApproveRequest resolves a pending request and performs the admin
// transition it asked for. The request resolves first, then the admin
// mutates; if the admin already reached the requested state through a
// concurrent direct action, approval still succeeds: the end state the
// request asked for holds either way.
func (s *Service) ApproveRequest(ctx context.Context, actor Actor, requestID, reviewNotes string) error {
	ctx, span := traces.StartSpan(ctx, "lifecycle.approve_request",
		traces.ActorID(actor.AdminID), traces.RequestID(requestID))
	defer span.End()
	return finish("approve_request", s.reviewRequest(ctx, actor, requestID, reviewNotes, true))
}

// RejectRequest resolves a pending request without touching the admin.
func (s *Service) RejectRequest(ctx context.Context, actor Actor, requestID, reviewNotes string) error {
	ctx, span := traces.StartSpan(ctx, "lifecycle.reject_request",
		traces.ActorID(actor.AdminID), traces.RequestID(requestID))
	defer span.End()
	return finish("reject_request", s.reviewRequest(ctx, actor, requestID, reviewNotes, false))
}

func (s *Service) reviewRequest(ctx context.Context, actor Actor, requestID, reviewNotes string, approve bool) error {
	if err := requireActiveActor(actor); err != nil {
		return err
	}
	r, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if r.IsTerminal() {
		return requests.ErrAlreadyResolved
	}
	if r.RequestedBy == actor.AdminID {
		return ErrSelfReview
	}
	target, err := s.admins.Get(ctx, r.TargetAdminID)
	if err != nil {
		return err
	}
	if !hierarchy.CanActOn(actor.Role, target.Role) {
		return ErrNotAuthorized
	}

	status := requests.StatusRejected
	if approve {
		status = requests.StatusApproved
	}
	review := requests.Review{By: actor.AdminID, Notes: reviewNotes, At: time.Now().UTC()}
	if err := s.requests.Resolve(ctx, r.RequestID, status, review); err != nil {
		return err
	}

	eventType, kind := audit.EventRequestRejected, notify.KindRequestRejected
	if approve {
		eventType, kind = audit.EventRequestApproved, notify.KindRequestApproved
	}
	s.record(ctx, actor, &audit.Event{
		EventType:   eventType,
		TargetID:    r.TargetAdminID,
		Description: fmt.Sprintf("%s request reviewed", r.Type),
		OldData:     audit.Snapshot(r),
		Reason:      reviewNotes,
	})
	s.notifier.Notify(ctx, r.TargetAdminID, actor.AdminID, kind, map[string]string{
		"request_id": r.RequestID,
	})

	if !approve {
		return nil
	}

	activate := r.Type == requests.TypeActivation
	change := directory.StatusChange{
		By:     actor.AdminID,
		Reason: fmt.Sprintf("request %s approved", r.RequestID),
		At:     review.At,
	}
	err = s.admins.SetActive(ctx, target.AdminID, !activate, activate, change)
	if errors.Is(err, directory.ErrStateConflict) {
		// Already in the requested state; nothing left to apply.
		return nil
	}
	if err != nil {
		return err
	}

	adminEvent := audit.EventAdminDeactivated
	if activate {
		adminEvent = audit.EventAdminActivated
	}
	after := *target
	after.IsActive = activate
	s.record(ctx, actor, &audit.Event{
		EventType:   adminEvent,
		TargetID:    target.AdminID,
		Description: "status change via approved request",
		OldData:     audit.Snapshot(target),
		NewData:     audit.Snapshot(&after),
		Reason:      r.Reason,
	})
	return nil
}

// ListRequests returns the requests visible to the actor. The hierarchy
// scope is fixed before any caller filters apply and cannot be widened
// by them: super admins see everything, mid admins see only requests
// targeting plain admins, and plain admins see only their own
// deactivation requests.
func (s *Service) ListRequests(ctx context.Context, actor Actor, f requests.Filter) ([]*requests.StatusRequest, error) {
	if !hierarchy.HasPermission(actor.Role, hierarchy.PermRequestsView) {
		return nil, finish("list_requests", ErrNotAuthorized)
	}

	switch actor.Role {
	case hierarchy.RoleSuperAdmin:
		// Unscoped.
	case hierarchy.RoleMidAdmin:
		f.TargetRole = hierarchy.RoleAdmin
	default:
		f.RequestedBy = actor.AdminID
		if f.Type == requests.TypeActivation {
			// Activation requests are not a visible type at this level.
			return nil, finish("list_requests", nil)
		}
		f.Type = requests.TypeDeactivation
	}

	out, err := s.requests.List(ctx, f)
	return out, finish("list_requests", err)
}
