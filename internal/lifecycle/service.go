package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/directory"
	"github.com/wardenhq/warden/internal/hierarchy"
	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/internal/metrics"
	"github.com/wardenhq/warden/internal/notify"
	"github.com/wardenhq/warden/internal/requests"
	"github.com/wardenhq/warden/internal/sequence"
	"github.com/wardenhq/warden/internal/traces"
)

// Service implements the lifecycle state machine.
type Service struct {
	cfg      Config
	admins   directory.Store
	requests requests.Store
	ids      *sequence.Allocator
	recorder *audit.Recorder
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewService creates the orchestrator. All collaborators are required;
// pass notify.Noop{} to discard notifications.
func NewService(cfg Config, admins directory.Store, reqs requests.Store,
	ids *sequence.Allocator, recorder *audit.Recorder, notifier notify.Notifier,
	logger *slog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		admins:   admins,
		requests: reqs,
		ids:      ids,
		recorder: recorder,
		notifier: notifier,
		logger:   logger,
	}
}

// finish counts the operation outcome and passes the error through.
func finish(op string, err error) error {
	metrics.LifecycleOperationsTotal.WithLabelValues(op, string(Classify(err))).Inc()
	return err
}

// requireActiveActor is the gate every mutating operation passes first.
func requireActiveActor(actor Actor) error {
	if !actor.IsActive {
		return ErrActorInactive
	}
	if !hierarchy.Valid(actor.Role) {
		return ErrNotAuthorized
	}
	return nil
}

// CreateAdminParams are the inputs for creating one admin account.
type CreateAdminParams struct {
	Email        string
	Phone        string
	Name         string
	Role         hierarchy.Role
	SupervisorID string
	Reason       string
}

// CreateAdmin mints an identifier, validates the supervisor link, and
// persists a new active admin. The minted identifier is rolled back if
// the record cannot be durably created.
func (s *Service) CreateAdmin(ctx context.Context, actor Actor, p CreateAdminParams) (*directory.Admin, error) {
	ctx, span := traces.StartSpan(ctx, "lifecycle.create_admin", traces.ActorID(actor.AdminID))
	defer span.End()
	a, err := s.createAdmin(ctx, actor, p)
	return a, finish("create_admin", err)
}

func (s *Service) createAdmin(ctx context.Context, actor Actor, p CreateAdminParams) (*directory.Admin, error) {
	if err := requireActiveActor(actor); err != nil {
		return nil, err
	}
	if !hierarchy.Valid(p.Role) {
		return nil, ErrUnknownRole
	}
	if !hierarchy.CanActOn(actor.Role, p.Role) {
		return nil, ErrNotAuthorized
	}
	if err := s.checkContact(p.Email, p.Phone); err != nil {
		return nil, err
	}

	exists, err := s.admins.ContactExists(ctx, p.Email, p.Phone)
	if err != nil {
		return nil, fmt.Errorf("check contact: %w", err)
	}
	if exists {
		return nil, directory.ErrDuplicateContact
	}

	if p.SupervisorID != "" {
		if p.Role == hierarchy.RoleSuperAdmin {
			return nil, ErrSupervisorRole
		}
		if err := s.checkSupervisor(ctx, "", p.SupervisorID); err != nil {
			return nil, err
		}
	}

	adminID, err := s.ids.Allocate(ctx, s.cfg.AdminNamespace)
	if err != nil {
		metrics.SequenceAllocationsTotal.WithLabelValues(s.cfg.AdminNamespace.Key, allocResult(err)).Inc()
		return nil, err
	}
	metrics.SequenceAllocationsTotal.WithLabelValues(s.cfg.AdminNamespace.Key, "ok").Inc()

	now := time.Now().UTC()
	a := &directory.Admin{
		AdminID:         adminID,
		Email:           p.Email,
		Phone:           p.Phone,
		Name:            p.Name,
		Role:            p.Role,
		IsActive:        true,
		SupervisorID:    p.SupervisorID,
		ActivatedBy:     actor.AdminID,
		ActivatedReason: p.Reason,
		CreatedBy:       actor.AdminID,
		UpdatedBy:       actor.AdminID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.admins.Create(ctx, a); err != nil {
		// Release the minted identifier so failed creates leave no gap.
		if _, rbErr := s.ids.Rollback(ctx, s.cfg.AdminNamespace); rbErr != nil {
			s.logger.Error("sequence rollback failed after create failure",
				"namespace", s.cfg.AdminNamespace.Key, "error", rbErr)
		}
		return nil, err
	}

	s.record(ctx, actor, &audit.Event{
		EventType:   audit.EventAdminCreated,
		TargetID:    a.AdminID,
		Description: "admin account created",
		NewData:     audit.Snapshot(a),
		Reason:      p.Reason,
	})
	s.notifier.Notify(ctx, a.AdminID, actor.AdminID, notify.KindAdminCreated, map[string]string{
		"role": string(a.Role),
	})
	return a, nil
}

// GetAdmin is the explicit lookup step handlers use before acting.
func (s *Service) GetAdmin(ctx context.Context, adminID string) (*directory.Admin, error) {
	return s.admins.Get(ctx, adminID)
}

// ListAdmins returns admins visible to the actor. Listing is read-only
// and permission-gated rather than hierarchy-scoped.
func (s *Service) ListAdmins(ctx context.Context, actor Actor, f directory.Filter) ([]*directory.Admin, error) {
	if !hierarchy.HasPermission(actor.Role, hierarchy.PermAdminsView) {
		return nil, ErrNotAuthorized
	}
	return s.admins.List(ctx, f)
}

// DirectDeactivate immediately deactivates a target admin. Any pending
// request on the target is resolved first: a pending deactivation is
// auto-approved (the direct action satisfies it), a pending activation
// is auto-rejected (now moot). Both resolutions share the direct
// action's audit trail.
func (s *Service) DirectDeactivate(ctx context.Context, actor Actor, targetID, reason string) error {
	ctx, span := traces.StartSpan(ctx, "lifecycle.direct_deactivate",
		traces.ActorID(actor.AdminID), traces.AdminID(targetID))
	defer span.End()
	return finish("direct_deactivate", s.directTransition(ctx, actor, targetID, reason, false))
}

// DirectActivate is the activation counterpart of DirectDeactivate,
// with the same auto-resolution of pending requests.
func (s *Service) DirectActivate(ctx context.Context, actor Actor, targetID, reason string) error {
	ctx, span := traces.StartSpan(ctx, "lifecycle.direct_activate",
		traces.ActorID(actor.AdminID), traces.AdminID(targetID))
	defer span.End()
	return finish("direct_activate", s.directTransition(ctx, actor, targetID, reason, true))
}

func (s *Service) directTransition(ctx context.Context, actor Actor, targetID, reason string, activate bool) error {
	if err := requireActiveActor(actor); err != nil {
		return err
	}
	target, err := s.admins.Get(ctx, targetID)
	if err != nil {
		return err
	}
	if target.Role == hierarchy.RoleSuperAdmin {
		return ErrSuperAdminProtected
	}
	if !activate && actor.AdminID == target.AdminID {
		return ErrSelfDeactivation
	}
	if !hierarchy.CanActOn(actor.Role, target.Role) {
		return ErrNotAuthorized
	}
	// Resolve pending requests before mutating the admin, and before
	// the already-in-state check: an active admin with a pending
	// deactivation request is exactly the state a direct activation
	// makes moot, and that request must not survive it. A crash between
	// resolution and mutation leaves a resolved request and an
	// unchanged admin, which is benign and caught by the next direct
	// action.
	sameType, oppositeType := requests.TypeDeactivation, requests.TypeActivation
	if activate {
		sameType, oppositeType = requests.TypeActivation, requests.TypeDeactivation
	}
	if err := s.autoResolve(ctx, actor, target.AdminID, sameType, requests.StatusApproved,
		"superseded by direct action"); err != nil {
		return err
	}
	if err := s.autoResolve(ctx, actor, target.AdminID, oppositeType, requests.StatusRejected,
		"overtaken by opposing direct action"); err != nil {
		return err
	}

	if target.IsActive == activate {
		if activate {
			return ErrAlreadyActive
		}
		return ErrAlreadyInactive
	}

	change := directory.StatusChange{By: actor.AdminID, Reason: reason, At: time.Now().UTC()}
	if err := s.admins.SetActive(ctx, target.AdminID, !activate, activate, change); err != nil {
		if errors.Is(err, directory.ErrStateConflict) {
			// Lost the race: another writer already moved the admin.
			if activate {
				return ErrAlreadyActive
			}
			return ErrAlreadyInactive
		}
		return err
	}

	eventType, kind := audit.EventAdminDeactivated, notify.KindAdminDeactivated
	if activate {
		eventType, kind = audit.EventAdminActivated, notify.KindAdminActivated
	}
	after := *target
	after.IsActive = activate
	s.record(ctx, actor, &audit.Event{
		EventType:   eventType,
		TargetID:    target.AdminID,
		Description: "direct status change",
		OldData:     audit.Snapshot(target),
		NewData:     audit.Snapshot(&after),
		Reason:      reason,
	})
	s.notifier.Notify(ctx, target.AdminID, actor.AdminID, kind, map[string]string{
		"reason": reason,
	})
	return nil
}

// autoResolve closes a pending request of the given type as part of a
// direct action. Absence of such a request is the normal case.
func (s *Service) autoResolve(ctx context.Context, actor Actor, targetID string,
	t requests.Type, status requests.Status, note string) error {
	pending, err := s.requests.GetPending(ctx, targetID, t)
	if errors.Is(err, requests.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up pending %s request: %w", t, err)
	}

	review := requests.Review{By: actor.AdminID, Notes: note, At: time.Now().UTC()}
	if err := s.requests.Resolve(ctx, pending.RequestID, status, review); err != nil {
		if errors.Is(err, requests.ErrAlreadyResolved) {
			// Another direct action got there first.
			return nil
		}
		return fmt.Errorf("auto-resolve request %s: %w", pending.RequestID, err)
	}

	eventType := audit.EventRequestAutoRejected
	if status == requests.StatusApproved {
		eventType = audit.EventRequestAutoApproved
	}
	s.record(ctx, actor, &audit.Event{
		EventType:   eventType,
		TargetID:    targetID,
		Description: note,
		OldData:     audit.Snapshot(pending),
	})
	return nil
}

func (s *Service) checkContact(email, phone string) error {
	switch s.cfg.AuthMode {
	case AuthModePhone:
		if phone == "" {
			return ErrContactRequired
		}
	case AuthModeBoth:
		if email == "" || phone == "" {
			return ErrContactRequired
		}
	default: // email
		if email == "" {
			return ErrContactRequired
		}
	}
	return nil
}

// checkSupervisor validates a prospective supervisor link for targetID
// (empty targetID means the target does not exist yet).
func (s *Service) checkSupervisor(ctx context.Context, targetID, supervisorID string) error {
	if supervisorID == targetID && targetID != "" {
		return ErrSelfSupervisor
	}
	sup, err := s.admins.Get(ctx, supervisorID)
	if errors.Is(err, directory.ErrNotFound) {
		return ErrSupervisorNotFound
	}
	if err != nil {
		return fmt.Errorf("look up supervisor: %w", err)
	}
	if !sup.IsActive {
		return ErrSupervisorInactive
	}
	if !hierarchy.CanSupervise(sup.Role) {
		return ErrSupervisorRole
	}
	return nil
}

// record fills in actor/correlation fields and hands the event to the
// fire-and-forget recorder.
func (s *Service) record(ctx context.Context, actor Actor, e *audit.Event) {
	e.ActorID = actor.AdminID
	e.ActorRole = string(actor.Role)
	e.DeviceID = actor.DeviceID
	e.RequestID = logging.RequestID(ctx)
	s.recorder.Record(e)
}

func allocResult(err error) string {
	if errors.Is(err, sequence.ErrCapacityExhausted) {
		return "capacity_exhausted"
	}
	return "error"
}
