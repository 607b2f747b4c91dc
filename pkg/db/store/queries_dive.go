package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/subseactl/fleetd/internal/metrics"
)

func (q *Queries) CreateDive(ctx context.Context, arg CreateDiveParams) (Dive, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO dives (mid, cmd_seq, ok, summary, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, mid, cmd_seq, ok, summary, started_at, ended_at, created_at
	`, arg.MID, arg.CmdSeq, arg.OK, arg.Summary, arg.StartedAt, arg.EndedAt)

	var d Dive
	err := row.Scan(&d.ID, &d.MID, &d.CmdSeq, &d.OK, &d.Summary, &d.StartedAt, &d.EndedAt, &d.CreatedAt)
	metrics.ObserveStoreOp("create_dive", err == nil)
	if err != nil {
		return Dive{}, fmt.Errorf("create dive: %w", err)
	}
	return d, nil
}

func (q *Queries) GetDive(ctx context.Context, id pgtype.UUID) (Dive, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, mid, cmd_seq, ok, summary, started_at, ended_at, created_at
		FROM dives WHERE id = $1
	`, id)

	var d Dive
	err := row.Scan(&d.ID, &d.MID, &d.CmdSeq, &d.OK, &d.Summary, &d.StartedAt, &d.EndedAt, &d.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Dive{}, ErrNoRows
		}
		return Dive{}, fmt.Errorf("get dive: %w", err)
	}
	return d, nil
}

// ListDives orders by (created_at, id) rather than id alone: id is a random
// gen_random_uuid() with no relationship to insertion order, so cursoring
// on it in isolation would return pages in random order and let concurrent
// inserts skip or repeat rows across pages (§4.7's cursor pair).
func (q *Queries) ListDives(ctx context.Context, arg ListDivesParams) ([]Dive, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, mid, cmd_seq, ok, summary, started_at, ended_at, created_at
		FROM dives
		WHERE ($1::text IS NULL OR mid = $1)
		  AND ($2::timestamptz IS NULL OR started_at >= $2)
		  AND ($3::timestamptz IS NULL OR started_at <= $3)
		  AND ($5::timestamptz IS NULL OR (created_at, id::text) > ($5, $6))
		ORDER BY created_at, id
		LIMIT $4
	`, textOrNil(arg.MID), tsOrNil(arg.From), tsOrNil(arg.To), arg.Limit, tsOrNil(arg.CursorCreatedAt), arg.CursorID.String)
	if err != nil {
		return nil, fmt.Errorf("list dives: %w", err)
	}
	defer rows.Close()

	return scanDives(rows)
}

func (q *Queries) ListDivesForMID(ctx context.Context, mid string, from, to pgtype.Timestamptz) ([]Dive, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, mid, cmd_seq, ok, summary, started_at, ended_at, created_at
		FROM dives
		WHERE mid = $1
		  AND ($2::timestamptz IS NULL OR started_at >= $2)
		  AND ($3::timestamptz IS NULL OR started_at <= $3)
		ORDER BY started_at ASC
	`, mid, tsOrNil(from), tsOrNil(to))
	if err != nil {
		return nil, fmt.Errorf("list dives for mid: %w", err)
	}
	defer rows.Close()

	return scanDives(rows)
}

func scanDives(rows pgx.Rows) ([]Dive, error) {
	var out []Dive
	for rows.Next() {
		var d Dive
		if err := rows.Scan(&d.ID, &d.MID, &d.CmdSeq, &d.OK, &d.Summary, &d.StartedAt, &d.EndedAt, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dive: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
