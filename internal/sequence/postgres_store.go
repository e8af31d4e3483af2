package sequence

import (
	"context"
	"database/sql"
)

// PostgresStore persists counters in PostgreSQL. The increment and the
// clamped decrement are single statements, so the database provides the
// atomicity the allocator depends on.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed counter store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Next(ctx context.Context, key string) (int64, error) {
	var seq int64
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO counters (key, seq) VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET seq = counters.seq + 1
		RETURNING seq`, key).Scan(&seq)
	return seq, err
}

func (p *PostgresStore) Rollback(ctx context.Context, key string) (bool, error) {
	result, err := p.db.ExecContext(ctx, `
		UPDATE counters SET seq = GREATEST(seq - 1, 0) WHERE key = $1`, key)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (p *PostgresStore) Current(ctx context.Context, key string) (int64, error) {
	var seq int64
	err := p.db.QueryRowContext(ctx,
		`SELECT seq FROM counters WHERE key = $1`, key).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

var _ Store = (*PostgresStore)(nil)
