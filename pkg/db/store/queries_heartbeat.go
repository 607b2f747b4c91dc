package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/subseactl/fleetd/internal/metrics"
)

// InsertHeartbeatIfAbsent is the insert-if-absent primitive (§4.1(ii)) for
// the append-only Heartbeat log. The returned bool is true when this call
// created the row (a fresh frame) and false when (mid, hb_seq) already
// existed (a retransmit) — the ingest path uses this to decide whether
// command dispensation should run fresh logic or re-return a prior answer.
func (q *Queries) InsertHeartbeatIfAbsent(ctx context.Context, arg InsertHeartbeatIfAbsentParams) (Heartbeat, bool, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO heartbeats (mid, hb_seq, ts_utc, received_at, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (mid, hb_seq) DO NOTHING
		RETURNING id, mid, hb_seq, ts_utc, received_at, payload, created_at
	`, arg.MID, arg.HbSeq, arg.TsUTC, arg.ReceivedAt, arg.Payload)

	var hb Heartbeat
	err := row.Scan(&hb.ID, &hb.MID, &hb.HbSeq, &hb.TsUTC, &hb.ReceivedAt, &hb.Payload, &hb.CreatedAt)
	if err == nil {
		metrics.ObserveStoreOp("insert_heartbeat", true)
		return hb, true, nil
	}
	if err != pgx.ErrNoRows {
		metrics.ObserveStoreOp("insert_heartbeat", false)
		return Heartbeat{}, false, fmt.Errorf("insert heartbeat: %w", err)
	}

	// The row already existed; fetch it for the idempotent re-return path.
	existing, getErr := q.getHeartbeat(ctx, arg.MID, arg.HbSeq)
	metrics.ObserveStoreOp("insert_heartbeat", getErr == nil)
	if getErr != nil {
		return Heartbeat{}, false, getErr
	}
	return existing, false, nil
}

func (q *Queries) getHeartbeat(ctx context.Context, mid string, hbSeq int64) (Heartbeat, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, mid, hb_seq, ts_utc, received_at, payload, created_at
		FROM heartbeats WHERE mid = $1 AND hb_seq = $2
	`, mid, hbSeq)

	var hb Heartbeat
	err := row.Scan(&hb.ID, &hb.MID, &hb.HbSeq, &hb.TsUTC, &hb.ReceivedAt, &hb.Payload, &hb.CreatedAt)
	if err != nil {
		return Heartbeat{}, fmt.Errorf("get heartbeat: %w", err)
	}
	return hb, nil
}

func (q *Queries) GetLatestHeartbeat(ctx context.Context, mid string) (Heartbeat, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, mid, hb_seq, ts_utc, received_at, payload, created_at
		FROM heartbeats WHERE mid = $1
		ORDER BY hb_seq DESC LIMIT 1
	`, mid)

	var hb Heartbeat
	err := row.Scan(&hb.ID, &hb.MID, &hb.HbSeq, &hb.TsUTC, &hb.ReceivedAt, &hb.Payload, &hb.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Heartbeat{}, ErrNoRows
		}
		return Heartbeat{}, fmt.Errorf("get latest heartbeat: %w", err)
	}
	return hb, nil
}

// ListHeartbeats orders by (created_at, id) rather than id alone: id is a
// random gen_random_uuid() with no relationship to insertion order, so
// cursoring on it in isolation would return pages in random order and let
// concurrent inserts skip or repeat rows across pages (§4.7's cursor pair).
func (q *Queries) ListHeartbeats(ctx context.Context, arg ListHeartbeatsParams) ([]Heartbeat, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, mid, hb_seq, ts_utc, received_at, payload, created_at
		FROM heartbeats
		WHERE ($1::text IS NULL OR mid = $1)
		  AND ($2::timestamptz IS NULL OR received_at >= $2)
		  AND ($3::timestamptz IS NULL OR received_at <= $3)
		  AND ($5::timestamptz IS NULL OR (created_at, id::text) > ($5, $6))
		ORDER BY created_at, id
		LIMIT $4
	`, textOrNil(arg.MID), tsOrNil(arg.From), tsOrNil(arg.To), arg.Limit, tsOrNil(arg.CursorCreatedAt), arg.CursorID.String)
	if err != nil {
		return nil, fmt.Errorf("list heartbeats: %w", err)
	}
	defer rows.Close()

	return scanHeartbeats(rows)
}

func (q *Queries) ListHeartbeatsForTrajectory(ctx context.Context, arg ListHeartbeatsForTrajectoryParams) ([]Heartbeat, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, mid, hb_seq, ts_utc, received_at, payload, created_at
		FROM heartbeats
		WHERE mid = $1
		  AND ($2::timestamptz IS NULL OR received_at >= $2)
		  AND ($3::timestamptz IS NULL OR received_at <= $3)
		ORDER BY hb_seq ASC
	`, arg.MID, tsOrNil(arg.From), tsOrNil(arg.To))
	if err != nil {
		return nil, fmt.Errorf("list heartbeats for trajectory: %w", err)
	}
	defer rows.Close()

	return scanHeartbeats(rows)
}

func scanHeartbeats(rows pgx.Rows) ([]Heartbeat, error) {
	var out []Heartbeat
	for rows.Next() {
		var hb Heartbeat
		if err := rows.Scan(&hb.ID, &hb.MID, &hb.HbSeq, &hb.TsUTC, &hb.ReceivedAt, &hb.Payload, &hb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan heartbeat: %w", err)
		}
		out = append(out, hb)
	}
	return out, rows.Err()
}
