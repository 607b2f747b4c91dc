package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/subseactl/fleetd/internal/metrics"
)

const pgUniqueViolation = "23505"

func (q *Queries) HasInFlightCommand(ctx context.Context, mid string) (bool, error) {
	row := q.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM commands WHERE mid = $1 AND status IN ('QUEUED','ISSUED','EXECUTING'))
	`, mid)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("has in-flight command: %w", err)
	}
	return exists, nil
}

// EnqueueCommand assigns seq = max(seq)+1 for the mid and inserts the new
// QUEUED row in one statement. A partial unique index on commands(mid)
// WHERE status IN ('QUEUED','ISSUED','EXECUTING') is the actual arbiter
// under concurrent enqueues (§8 S6): the CTE's NOT EXISTS check is an
// optimization that avoids the index hit on the common case, not the
// correctness guarantee.
func (q *Queries) EnqueueCommand(ctx context.Context, arg EnqueueCommandParams) (Command, error) {
	row := q.db.QueryRow(ctx, `
		WITH next_seq AS (
			SELECT COALESCE(MAX(seq), 0) + 1 AS seq FROM commands WHERE mid = $1
		)
		INSERT INTO commands (mid, seq, cmd, args, plan_hash, status)
		SELECT $1, next_seq.seq, $2, $3, $4, 'QUEUED'
		FROM next_seq
		WHERE NOT EXISTS (
			SELECT 1 FROM commands WHERE mid = $1 AND status IN ('QUEUED','ISSUED','EXECUTING')
		)
		RETURNING id, mid, seq, cmd, args, plan_hash, status, dispensed_at_hb_seq, created_at, issued_at, executing_at, completed_at
	`, arg.MID, arg.Cmd, arg.Args, arg.PlanHash)

	var c Command
	err := row.Scan(&c.ID, &c.MID, &c.Seq, &c.Cmd, &c.Args, &c.PlanHash, &c.Status, &c.DispensedAtHbSeq, &c.CreatedAt, &c.IssuedAt, &c.ExecutingAt, &c.CompletedAt)
	if err != nil {
		metrics.ObserveStoreOp("enqueue_command", false)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Command{}, ErrInFlightConflict
		}
		if err == pgx.ErrNoRows {
			return Command{}, ErrInFlightConflict
		}
		return Command{}, fmt.Errorf("enqueue command: %w", err)
	}
	metrics.ObserveStoreOp("enqueue_command", true)
	return c, nil
}

func (q *Queries) GetOldestQueuedCommand(ctx context.Context, mid string) (Command, bool, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, mid, seq, cmd, args, plan_hash, status, dispensed_at_hb_seq, created_at, issued_at, executing_at, completed_at
		FROM commands WHERE mid = $1 AND status = 'QUEUED'
		ORDER BY seq ASC LIMIT 1
	`, mid)

	var c Command
	err := row.Scan(&c.ID, &c.MID, &c.Seq, &c.Cmd, &c.Args, &c.PlanHash, &c.Status, &c.DispensedAtHbSeq, &c.CreatedAt, &c.IssuedAt, &c.ExecutingAt, &c.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Command{}, false, nil
		}
		return Command{}, false, fmt.Errorf("get oldest queued command: %w", err)
	}
	return c, true, nil
}

// GetCommandDispensedAtHbSeq backs the heartbeat idempotence contract
// (§4.2): a retransmitted heartbeat looks up the command dispensed at
// exactly this hb_seq for this mid and re-returns it rather than advancing.
func (q *Queries) GetCommandDispensedAtHbSeq(ctx context.Context, arg GetCommandDispensedAtHbSeqParams) (Command, bool, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, mid, seq, cmd, args, plan_hash, status, dispensed_at_hb_seq, created_at, issued_at, executing_at, completed_at
		FROM commands WHERE mid = $1 AND dispensed_at_hb_seq = $2
	`, arg.MID, arg.HbSeq)

	var c Command
	err := row.Scan(&c.ID, &c.MID, &c.Seq, &c.Cmd, &c.Args, &c.PlanHash, &c.Status, &c.DispensedAtHbSeq, &c.CreatedAt, &c.IssuedAt, &c.ExecutingAt, &c.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Command{}, false, nil
		}
		return Command{}, false, fmt.Errorf("get command dispensed at hb_seq: %w", err)
	}
	return c, true, nil
}

func (q *Queries) GetCommandByID(ctx context.Context, id pgtype.UUID) (Command, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, mid, seq, cmd, args, plan_hash, status, dispensed_at_hb_seq, created_at, issued_at, executing_at, completed_at
		FROM commands WHERE id = $1
	`, id)

	var c Command
	err := row.Scan(&c.ID, &c.MID, &c.Seq, &c.Cmd, &c.Args, &c.PlanHash, &c.Status, &c.DispensedAtHbSeq, &c.CreatedAt, &c.IssuedAt, &c.ExecutingAt, &c.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Command{}, ErrNoRows
		}
		return Command{}, fmt.Errorf("get command by id: %w", err)
	}
	return c, nil
}

func (q *Queries) GetCommandByMIDSeq(ctx context.Context, mid string, seq int64) (Command, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, mid, seq, cmd, args, plan_hash, status, dispensed_at_hb_seq, created_at, issued_at, executing_at, completed_at
		FROM commands WHERE mid = $1 AND seq = $2
	`, mid, seq)

	var c Command
	err := row.Scan(&c.ID, &c.MID, &c.Seq, &c.Cmd, &c.Args, &c.PlanHash, &c.Status, &c.DispensedAtHbSeq, &c.CreatedAt, &c.IssuedAt, &c.ExecutingAt, &c.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Command{}, ErrNoRows
		}
		return Command{}, fmt.Errorf("get command by mid/seq: %w", err)
	}
	return c, nil
}

// ListCommands orders by (created_at, id) rather than id alone: id is a
// random gen_random_uuid() with no relationship to insertion order, so
// cursoring on it in isolation would return pages in random order and let
// concurrent inserts skip or repeat rows across pages (§4.7's cursor pair).
func (q *Queries) ListCommands(ctx context.Context, arg ListCommandsParams) ([]Command, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, mid, seq, cmd, args, plan_hash, status, dispensed_at_hb_seq, created_at, issued_at, executing_at, completed_at
		FROM commands
		WHERE ($1::text IS NULL OR mid = $1)
		  AND ($2::text IS NULL OR status = $2)
		  AND ($4::timestamptz IS NULL OR (created_at, id::text) > ($4, $5))
		ORDER BY created_at, id
		LIMIT $3
	`, textOrNil(arg.MID), textOrNil(arg.Status), arg.Limit, tsOrNil(arg.CursorCreatedAt), arg.CursorID.String)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer rows.Close()

	var out []Command
	for rows.Next() {
		var c Command
		if err := rows.Scan(&c.ID, &c.MID, &c.Seq, &c.Cmd, &c.Args, &c.PlanHash, &c.Status, &c.DispensedAtHbSeq, &c.CreatedAt, &c.IssuedAt, &c.ExecutingAt, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("list commands scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// TransitionQueuedToIssued is component B's guarded transition: it only
// takes effect if the row is still QUEUED, stamping issued_at and the
// hb_seq that dispensed it so a retransmit can find the same answer.
func (q *Queries) TransitionQueuedToIssued(ctx context.Context, arg TransitionQueuedToIssuedParams) (int64, error) {
	return q.guardedTransition(ctx, "transition_queued_to_issued", `
		UPDATE commands SET status = 'ISSUED', issued_at = now(), dispensed_at_hb_seq = $2
		WHERE id = $1 AND status = 'QUEUED'
	`, arg.ID, arg.HbSeq)
}

func (q *Queries) TransitionIssuedToExecuting(ctx context.Context, id pgtype.UUID) (int64, error) {
	return q.guardedTransition(ctx, "transition_issued_to_executing", `
		UPDATE commands SET status = 'EXECUTING', executing_at = now()
		WHERE id = $1 AND status = 'ISSUED'
	`, id)
}

func (q *Queries) TransitionIssuedToCanceled(ctx context.Context, id pgtype.UUID) (int64, error) {
	return q.guardedTransition(ctx, "transition_issued_to_canceled", `
		UPDATE commands SET status = 'CANCELED', completed_at = now()
		WHERE id = $1 AND status = 'ISSUED'
	`, id)
}

func (q *Queries) TransitionExecutingToCompleted(ctx context.Context, id pgtype.UUID) (int64, error) {
	return q.guardedTransition(ctx, "transition_executing_to_completed", `
		UPDATE commands SET status = 'COMPLETED', completed_at = now()
		WHERE id = $1 AND status = 'EXECUTING'
	`, id)
}

func (q *Queries) TransitionExecutingToError(ctx context.Context, id pgtype.UUID) (int64, error) {
	return q.guardedTransition(ctx, "transition_executing_to_error", `
		UPDATE commands SET status = 'ERROR', completed_at = now()
		WHERE id = $1 AND status = 'EXECUTING'
	`, id)
}

// SweepExpireQueued is the background sweep's guarded transition: any
// QUEUED command older than olderThan moves to EXPIRED, safe to run
// concurrently with ingest since it too only matches status = 'QUEUED'.
func (q *Queries) SweepExpireQueued(ctx context.Context, olderThan time.Time) (int64, error) {
	return q.guardedTransition(ctx, "sweep_expire_queued", `
		UPDATE commands SET status = 'EXPIRED', completed_at = now()
		WHERE status = 'QUEUED' AND created_at < $1
	`, olderThan)
}

func (q *Queries) guardedTransition(ctx context.Context, op, sql string, args ...interface{}) (int64, error) {
	tag, err := q.db.Exec(ctx, sql, args...)
	if err != nil {
		metrics.ObserveStoreOp(op, false)
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n := tag.RowsAffected()
	metrics.ObserveStoreOp(op, n > 0)
	return n, nil
}
