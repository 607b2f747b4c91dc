package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/subseactl/fleetd/internal/metrics"
)

// InsertDescentCheckIfAbsent records one pre-dive decision. The DescentCheck
// row is inserted regardless of the decision (append-only audit, §4.4); its
// natural key (mid, check_seq) makes a retried request a no-op like
// heartbeats rather than a duplicate audit entry.
func (q *Queries) InsertDescentCheckIfAbsent(ctx context.Context, arg InsertDescentCheckIfAbsentParams) (DescentCheck, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO descent_checks (mid, check_seq, cmd_seq, plan_hash, ok, reason, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (mid, check_seq) DO UPDATE SET mid = EXCLUDED.mid
		RETURNING id, mid, check_seq, cmd_seq, plan_hash, ok, reason, payload, created_at
	`, arg.MID, arg.CheckSeq, arg.CmdSeq, arg.PlanHash, arg.OK, arg.Reason, arg.Payload)

	var dc DescentCheck
	err := row.Scan(&dc.ID, &dc.MID, &dc.CheckSeq, &dc.CmdSeq, &dc.PlanHash, &dc.OK, &dc.Reason, &dc.Payload, &dc.CreatedAt)
	metrics.ObserveStoreOp("insert_descent_check", err == nil)
	if err != nil {
		if err == pgx.ErrNoRows {
			return DescentCheck{}, ErrNoRows
		}
		return DescentCheck{}, fmt.Errorf("insert descent check: %w", err)
	}
	return dc, nil
}
