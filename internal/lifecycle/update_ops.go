package lifecycle

import (
	"context"
	"time"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/hierarchy"
)

// ChangeRole moves a target admin to a different role. The only
// structural constraints are the hierarchy check against the current
// target and that the new role actually differs.
func (s *Service) ChangeRole(ctx context.Context, actor Actor, targetID string, newRole hierarchy.Role) error {
	return finish("change_role", s.changeRole(ctx, actor, targetID, newRole))
}

func (s *Service) changeRole(ctx context.Context, actor Actor, targetID string, newRole hierarchy.Role) error {
	if err := requireActiveActor(actor); err != nil {
		return err
	}
	if !hierarchy.Valid(newRole) {
		return ErrUnknownRole
	}
	target, err := s.admins.Get(ctx, targetID)
	if err != nil {
		return err
	}
	if !hierarchy.CanActOn(actor.Role, target.Role) {
		return ErrNotAuthorized
	}
	if target.Role == newRole {
		return ErrSameRole
	}

	now := time.Now().UTC()
	if err := s.admins.UpdateRole(ctx, target.AdminID, newRole, actor.AdminID, now); err != nil {
		return err
	}
	// A super admin carries no supervisor link.
	if newRole == hierarchy.RoleSuperAdmin && target.SupervisorID != "" {
		if err := s.admins.UpdateSupervisor(ctx, target.AdminID, "", actor.AdminID, now); err != nil {
			return err
		}
	}

	after := *target
	after.Role = newRole
	if newRole == hierarchy.RoleSuperAdmin {
		after.SupervisorID = ""
	}
	s.record(ctx, actor, &audit.Event{
		EventType:   audit.EventAdminRoleChanged,
		TargetID:    target.AdminID,
		Description: "role changed",
		OldData:     audit.Snapshot(target),
		NewData:     audit.Snapshot(&after),
	})
	return nil
}

// ChangeSupervisor points a target admin at a new supervisor. The new
// supervisor must exist, be active, hold a supervising role, differ
// from the target, and differ from the current link. A no-op change is
// rejected as invalid, not silently accepted.
func (s *Service) ChangeSupervisor(ctx context.Context, actor Actor, targetID, supervisorID string) error {
	return finish("change_supervisor", s.changeSupervisor(ctx, actor, targetID, supervisorID))
}

func (s *Service) changeSupervisor(ctx context.Context, actor Actor, targetID, supervisorID string) error {
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
	if !hierarchy.CanActOn(actor.Role, target.Role) {
		return ErrNotAuthorized
	}
	if supervisorID == target.SupervisorID {
		return ErrSameSupervisor
	}
	if supervisorID == target.AdminID {
		return ErrSelfSupervisor
	}
	if err := s.checkSupervisor(ctx, target.AdminID, supervisorID); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := s.admins.UpdateSupervisor(ctx, target.AdminID, supervisorID, actor.AdminID, now); err != nil {
		return err
	}

	after := *target
	after.SupervisorID = supervisorID
	s.record(ctx, actor, &audit.Event{
		EventType:   audit.EventAdminSupervisorChanged,
		TargetID:    target.AdminID,
		Description: "supervisor changed",
		OldData:     audit.Snapshot(target),
		NewData:     audit.Snapshot(&after),
	})
	return nil
}
