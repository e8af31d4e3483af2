package requests

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists status requests in PostgreSQL.
//
// The one-pending-per-(target,type) invariant is a partial unique index
// (see migrations), so concurrent Creates race safely: the loser gets a
// unique violation mapped to ErrPendingExists.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed request store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const requestColumns = `r.request_id, r.request_type, r.requested_by, r.target_admin_id,
	r.status, COALESCE(r.reason, ''), COALESCE(r.notes, ''),
	COALESCE(r.reviewed_by, ''), r.reviewed_at, COALESCE(r.review_notes, ''),
	r.created_at, r.updated_at`

func (p *PostgresStore) Create(ctx context.Context, r *StatusRequest) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO status_requests (request_id, request_type, requested_by, target_admin_id,
			status, reason, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9)`,
		r.RequestID, string(r.Type), r.RequestedBy, r.TargetAdminID,
		string(r.Status), r.Reason, r.Notes, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrPendingExists
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, requestID string) (*StatusRequest, error) {
	return scanRequest(p.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM status_requests r WHERE r.request_id = $1`, requestID))
}

func (p *PostgresStore) GetPending(ctx context.Context, targetAdminID string, t Type) (*StatusRequest, error) {
	return scanRequest(p.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM status_requests r
		WHERE r.target_admin_id = $1 AND r.request_type = $2 AND r.status = 'pending'`,
		targetAdminID, string(t)))
}

func (p *PostgresStore) Resolve(ctx context.Context, requestID string, status Status, review Review) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE status_requests
		SET status = $1, reviewed_by = $2, reviewed_at = $3, review_notes = NULLIF($4, ''), updated_at = $3
		WHERE request_id = $5 AND status = 'pending'`,
		string(status), review.By, review.At, review.Notes, requestID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	var exists bool
	if err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM status_requests WHERE request_id = $1)`, requestID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrAlreadyResolved
}

func (p *PostgresStore) List(ctx context.Context, f Filter) ([]*StatusRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM status_requests r`
	if f.TargetRole != "" {
		query += ` JOIN admins a ON a.admin_id = r.target_admin_id`
	}
	query += ` WHERE 1=1`

	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.TargetRole != "" {
		query += ` AND a.role = ` + arg(string(f.TargetRole))
	}
	if f.TargetAdminID != "" {
		query += ` AND r.target_admin_id = ` + arg(f.TargetAdminID)
	}
	if f.RequestedBy != "" {
		query += ` AND r.requested_by = ` + arg(f.RequestedBy)
	}
	if f.Type != "" {
		query += ` AND r.request_type = ` + arg(string(f.Type))
	}
	if f.Status != "" {
		query += ` AND r.status = ` + arg(string(f.Status))
	}
	if f.Cursor != nil {
		query += ` AND (r.created_at, r.request_id) > (` + arg(f.Cursor.CreatedAt) + `, ` + arg(f.Cursor.RequestID) + `)`
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY r.created_at, r.request_id LIMIT ` + arg(limit+1)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*StatusRequest
	for rows.Next() {
		r, err := scanRequestRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := p.db.ExecContext(ctx, `
		DELETE FROM status_requests WHERE status <> 'pending' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row *sql.Row) (*StatusRequest, error) {
	r, err := scanRequestRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

func scanRequestRow(row rowScanner) (*StatusRequest, error) {
	r := &StatusRequest{}
	var (
		reqType, status string
		reviewedAt      sql.NullTime
	)
	err := row.Scan(&r.RequestID, &reqType, &r.RequestedBy, &r.TargetAdminID,
		&status, &r.Reason, &r.Notes, &r.ReviewedBy, &reviewedAt, &r.ReviewNotes,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Type = Type(reqType)
	r.Status = Status(status)
	if reviewedAt.Valid {
		t := reviewedAt.Time
		r.ReviewedAt = &t
	}
	return r, nil
}

var _ Store = (*PostgresStore)(nil)
