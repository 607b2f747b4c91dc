package store

import "errors"

// ErrNoRows is returned by single-row lookups that find nothing, letting
// callers distinguish "not found" from a transport failure without
// depending on the pgx error type directly.
var ErrNoRows = errors.New("store: no rows")

// ErrInFlightConflict is returned by EnqueueCommand when a command for the
// target mid is already in {QUEUED, ISSUED, EXECUTING}, whether observed by
// the pre-check or enforced by the database's partial unique index under
// concurrent enqueues.
var ErrInFlightConflict = errors.New("store: command already in flight for mid")
