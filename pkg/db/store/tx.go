package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Beginner is satisfied by *pgxpool.Pool: anything that can start a
// transaction for RunTx to scope a Queries to via WithTx.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RunTx begins a transaction on db, runs fn against a Queries bound to it,
// and commits on success. Any error from fn, or a failure to commit, rolls
// the transaction back; rolling back an already-committed transaction is a
// no-op on pgx.Tx, so the deferred Rollback is unconditional.
func (q *Queries) RunTx(ctx context.Context, db Beginner, fn func(tx Querier) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(q.WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
