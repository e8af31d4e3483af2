package directory

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/wardenhq/warden/internal/hierarchy"
)

// PostgresStore persists admins in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed admin store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const adminColumns = `admin_id, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(name, ''),
	role, is_active, COALESCE(supervisor_id, ''),
	COALESCE(activated_by, ''), COALESCE(activated_reason, ''),
	COALESCE(deactivated_by, ''), COALESCE(deactivated_reason, ''),
	COALESCE(created_by, ''), COALESCE(updated_by, ''), created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, a *Admin) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO admins (admin_id, email, phone, name, role, is_active, supervisor_id,
			activated_by, activated_reason, created_by, updated_by, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''),
			NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12, $13)`,
		a.AdminID, a.Email, a.Phone, a.Name, string(a.Role), a.IsActive, a.SupervisorID,
		a.ActivatedBy, a.ActivatedReason, a.CreatedBy, a.UpdatedBy, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateContact
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, adminID string) (*Admin, error) {
	return scanAdmin(p.db.QueryRowContext(ctx,
		`SELECT `+adminColumns+` FROM admins WHERE admin_id = $1`, adminID))
}

func (p *PostgresStore) ContactExists(ctx context.Context, email, phone string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM admins
			WHERE (NULLIF($1, '') IS NOT NULL AND email = $1)
			   OR (NULLIF($2, '') IS NOT NULL AND phone = $2)
		)`, email, phone).Scan(&exists)
	return exists, err
}

// SetActive is the conditional update at the heart of the lifecycle
// state machine: the WHERE clause carries the precondition, so the first
// writer wins and later conflicting writers affect zero rows.
func (p *PostgresStore) SetActive(ctx context.Context, adminID string, expect, active bool, change StatusChange) error {
	var result sql.Result
	var err error
	if active {
		result, err = p.db.ExecContext(ctx, `
			UPDATE admins SET is_active = $1, activated_by = $2, activated_reason = $3,
				updated_by = $2, updated_at = $4
			WHERE admin_id = $5 AND is_active = $6`,
			active, change.By, change.Reason, change.At, adminID, expect)
	} else {
		result, err = p.db.ExecContext(ctx, `
			UPDATE admins SET is_active = $1, deactivated_by = $2, deactivated_reason = $3,
				updated_by = $2, updated_at = $4
			WHERE admin_id = $5 AND is_active = $6`,
			active, change.By, change.Reason, change.At, adminID, expect)
	}
	if err != nil {
		return err
	}
	return p.checkConditional(ctx, result, adminID)
}

func (p *PostgresStore) UpdateRole(ctx context.Context, adminID string, role hierarchy.Role, updatedBy string, at time.Time) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE admins SET role = $1, updated_by = $2, updated_at = $3
		WHERE admin_id = $4`,
		string(role), updatedBy, at, adminID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) UpdateSupervisor(ctx context.Context, adminID, supervisorID, updatedBy string, at time.Time) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE admins SET supervisor_id = NULLIF($1, ''), updated_by = $2, updated_at = $3
		WHERE admin_id = $4`,
		supervisorID, updatedBy, at, adminID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, f Filter) ([]*Admin, error) {
	query := `SELECT ` + adminColumns + ` FROM admins WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.Role != "" {
		query += ` AND role = ` + arg(string(f.Role))
	}
	if f.Active != nil {
		query += ` AND is_active = ` + arg(*f.Active)
	}
	if f.SupervisorID != "" {
		query += ` AND supervisor_id = ` + arg(f.SupervisorID)
	}
	if f.Cursor != nil {
		query += ` AND (created_at, admin_id) > (` + arg(f.Cursor.CreatedAt) + `, ` + arg(f.Cursor.AdminID) + `)`
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY created_at, admin_id LIMIT ` + arg(limit+1)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var admins []*Admin
	for rows.Next() {
		a, err := scanAdminRow(rows)
		if err != nil {
			return nil, err
		}
		admins = append(admins, a)
	}
	return admins, rows.Err()
}

func (p *PostgresStore) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := p.db.ExecContext(ctx, `
		DELETE FROM admins WHERE is_active = FALSE AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// checkConditional distinguishes "row missing" from "precondition lost"
// after a zero-row conditional update.
func (p *PostgresStore) checkConditional(ctx context.Context, result sql.Result, adminID string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	var exists bool
	if err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM admins WHERE admin_id = $1)`, adminID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStateConflict
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAdmin(row *sql.Row) (*Admin, error) {
	a, err := scanAdminRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return a, err
}

func scanAdminRow(row rowScanner) (*Admin, error) {
	a := &Admin{}
	var role string
	err := row.Scan(&a.AdminID, &a.Email, &a.Phone, &a.Name, &role, &a.IsActive,
		&a.SupervisorID, &a.ActivatedBy, &a.ActivatedReason,
		&a.DeactivatedBy, &a.DeactivatedReason,
		&a.CreatedBy, &a.UpdatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Role = hierarchy.Role(role)
	return a, nil
}

var _ Store = (*PostgresStore)(nil)
