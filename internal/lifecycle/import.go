package lifecycle

import (
	"context"
	"errors"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/hierarchy"
	"github.com/wardenhq/warden/internal/sequence"
)

// PreflightOK marks a row that passed upstream validation; anything
// else is skipped without touching the directory.
const PreflightOK = "ok"

// ImportRow is one pre-validated record from the bulk import collaborator.
type ImportRow struct {
	Email           string         `json:"email,omitempty"`
	Phone           string         `json:"phone,omitempty"`
	Name            string         `json:"name,omitempty"`
	Role            hierarchy.Role `json:"roleType"`
	SupervisorID    string         `json:"supervisorId,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	PreflightStatus string         `json:"preflightStatus"`
}

// RowStatus is the terminal state of one import row.
type RowStatus string

const (
	RowCreated RowStatus = "created"
	RowSkipped RowStatus = "skipped"
	RowFailed  RowStatus = "failed"
	// RowAborted marks rows never attempted because the identifier
	// space filled up earlier in the batch. It is a distinct terminal
	// state, not a retryable failure.
	RowAborted RowStatus = "aborted"
)

// RowResult reports the outcome for one row.
type RowResult struct {
	Index   int       `json:"index"`
	Status  RowStatus `json:"status"`
	AdminID string    `json:"adminId,omitempty"`
	Message string    `json:"message,omitempty"`
}

// ImportResult summarizes a bulk import run.
type ImportResult struct {
	Rows    []RowResult `json:"rows"`
	Created int         `json:"created"`
	Skipped int         `json:"skipped"`
	Failed  int         `json:"failed"`
	Aborted int         `json:"aborted"`
}

// ImportRows feeds each row through the same creation path as a single
// interactive creation. The fold short-circuits on the first capacity
// exhaustion: that row and every untouched row after it end in
// RowAborted, because a full identifier space cannot recover within the
// batch.
func (s *Service) ImportRows(ctx context.Context, actor Actor, rows []ImportRow) (*ImportResult, error) {
	if err := requireActiveActor(actor); err != nil {
		return nil, finish("import_rows", err)
	}
	if !hierarchy.HasPermission(actor.Role, hierarchy.PermAdminsImport) {
		return nil, finish("import_rows", ErrNotAuthorized)
	}

	result := &ImportResult{Rows: make([]RowResult, 0, len(rows))}
	exhausted := false

	for i, row := range rows {
		if exhausted {
			result.Rows = append(result.Rows, RowResult{
				Index:   i,
				Status:  RowAborted,
				Message: "identifier capacity exhausted earlier in batch",
			})
			result.Aborted++
			continue
		}
		if row.PreflightStatus != PreflightOK {
			result.Rows = append(result.Rows, RowResult{
				Index:   i,
				Status:  RowSkipped,
				Message: "preflight status " + row.PreflightStatus,
			})
			result.Skipped++
			continue
		}

		a, err := s.createAdmin(ctx, actor, CreateAdminParams{
			Email:        row.Email,
			Phone:        row.Phone,
			Name:         row.Name,
			Role:         row.Role,
			SupervisorID: row.SupervisorID,
			Reason:       row.Reason,
		})
		switch {
		case err == nil:
			result.Rows = append(result.Rows, RowResult{Index: i, Status: RowCreated, AdminID: a.AdminID})
			result.Created++
		case errors.Is(err, sequence.ErrCapacityExhausted):
			exhausted = true
			result.Rows = append(result.Rows, RowResult{
				Index:   i,
				Status:  RowAborted,
				Message: "identifier capacity exhausted",
			})
			result.Aborted++
		default:
			result.Rows = append(result.Rows, RowResult{Index: i, Status: RowFailed, Message: err.Error()})
			result.Failed++
		}
	}

	s.record(ctx, actor, &audit.Event{
		EventType:   audit.EventAdminImported,
		Description: "bulk import completed",
		NewData:     audit.Snapshot(result),
	})
	return result, finish("import_rows", nil)
}
