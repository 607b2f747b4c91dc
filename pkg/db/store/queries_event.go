package store

import (
	"context"
	"fmt"

	"github.com/subseactl/fleetd/internal/metrics"
)

func (q *Queries) CreateEventLog(ctx context.Context, arg CreateEventLogParams) (EventLog, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO event_logs (mid, kind, message, data)
		VALUES ($1, $2, $3, $4)
		RETURNING id, mid, kind, message, data, created_at
	`, arg.MID, arg.Kind, arg.Message, arg.Data)

	var e EventLog
	err := row.Scan(&e.ID, &e.MID, &e.Kind, &e.Message, &e.Data, &e.CreatedAt)
	metrics.ObserveStoreOp("create_event_log", err == nil)
	if err != nil {
		return EventLog{}, fmt.Errorf("create event log: %w", err)
	}
	return e, nil
}

// ListEvents orders by (created_at, id) rather than id alone: id is a
// random gen_random_uuid() with no relationship to insertion order, so
// cursoring on it in isolation would return pages in random order and let
// concurrent inserts skip or repeat rows across pages (§4.7's cursor pair).
func (q *Queries) ListEvents(ctx context.Context, arg ListEventsParams) ([]EventLog, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, mid, kind, message, data, created_at
		FROM event_logs
		WHERE ($1::text IS NULL OR mid = $1)
		  AND ($3::timestamptz IS NULL OR (created_at, id::text) > ($3, $4))
		ORDER BY created_at, id
		LIMIT $2
	`, textOrNil(arg.MID), arg.Limit, tsOrNil(arg.CursorCreatedAt), arg.CursorID.String)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []EventLog
	for rows.Next() {
		var e EventLog
		if err := rows.Scan(&e.ID, &e.MID, &e.Kind, &e.Message, &e.Data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("list events scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
