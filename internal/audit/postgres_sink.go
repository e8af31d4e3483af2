package audit

import (
	"context"
	"database/sql"
	"strconv"
)

// PostgresSink writes audit events to PostgreSQL.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink creates an audit sink backed by PostgreSQL.
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Append(ctx context.Context, e *Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (event_type, actor_id, actor_role, target_id, device_id,
			request_id, description, old_data, new_data, reason, created_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''),
			NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, '')::JSONB, NULLIF($9, '')::JSONB,
			NULLIF($10, ''), $11)`,
		string(e.EventType), e.ActorID, e.ActorRole, e.TargetID, e.DeviceID,
		e.RequestID, e.Description, e.OldData, e.NewData, e.Reason, e.CreatedAt)
	return err
}

func (s *PostgresSink) Query(ctx context.Context, f Filter) ([]*Event, error) {
	query := `SELECT id, event_type, actor_id, COALESCE(actor_role, ''),
		COALESCE(target_id, ''), COALESCE(device_id, ''), COALESCE(request_id, ''),
		COALESCE(description, ''), COALESCE(old_data::TEXT, ''), COALESCE(new_data::TEXT, ''),
		COALESCE(reason, ''), created_at
		FROM audit_events WHERE 1=1`

	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.ActorID != "" {
		query += ` AND actor_id = ` + arg(f.ActorID)
	}
	if f.TargetID != "" {
		query += ` AND target_id = ` + arg(f.TargetID)
	}
	if f.EventType != "" {
		query += ` AND event_type = ` + arg(string(f.EventType))
	}
	if !f.From.IsZero() {
		query += ` AND created_at >= ` + arg(f.From)
	}
	if !f.To.IsZero() {
		query += ` AND created_at <= ` + arg(f.To)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ` + arg(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var eventType string
		if err := rows.Scan(&e.ID, &eventType, &e.ActorID, &e.ActorRole,
			&e.TargetID, &e.DeviceID, &e.RequestID, &e.Description,
			&e.OldData, &e.NewData, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.EventType = EventType(eventType)
		events = append(events, e)
	}
	return events, rows.Err()
}

var _ Sink = (*PostgresSink)(nil)
