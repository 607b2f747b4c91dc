package store

import (
	"context"
	"fmt"

	"github.com/subseactl/fleetd/internal/metrics"
)

// Ping backs the /health probe (§4.8): a trivial round trip against the pool.
func (q *Queries) Ping(ctx context.Context) error {
	row := q.db.QueryRow(ctx, `SELECT 1`)
	var one int
	if err := row.Scan(&one); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// ResetAll truncates every table in FK-safe dependency order. Gated by
// ADMIN_RESET_ENABLED above this layer; development use only.
func (q *Queries) ResetAll(ctx context.Context) error {
	_, err := q.db.Exec(ctx, `
		TRUNCATE event_logs, dives, descent_checks, commands, heartbeats, devices
	`)
	metrics.ObserveStoreOp("reset_all", err == nil)
	if err != nil {
		return fmt.Errorf("reset all: %w", err)
	}
	return nil
}
