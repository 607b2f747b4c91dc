// Package command implements the command store and lifecycle component (C):
// enqueueing operator-issued instructions and running the background
// expiration sweep. The guarded state-machine transitions themselves live
// in the store layer; this package owns validation, plan-hash derivation,
// and orchestration around them.
package command

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/subseactl/fleetd/internal/metrics"
	"github.com/subseactl/fleetd/internal/planhash"
	"github.com/subseactl/fleetd/pkg/db/store"
	cperrors "github.com/subseactl/fleetd/pkg/errors"
)

// RunDiveArgs is the only command kind whose args Enqueue validates. Other
// kinds are representable in the schema and pass through enqueue
// unvalidated; the descent gate's plan_hash check applies to every kind.
type RunDiveArgs struct {
	TargetDepthM  float64 `json:"target_depth_m"`
	HoldAtDepthS  float64 `json:"hold_at_depth_s"`
	Cycles        int     `json:"cycles"`
}

const cmdRunDive = "RUN_DIVE"

// EnqueueRequest is the validated input to Enqueue.
type EnqueueRequest struct {
	MID  string
	Cmd  string
	Args json.RawMessage
}

// Service enqueues commands against the store, deriving plan_hash and
// validating RUN_DIVE argument shapes before the row ever reaches the
// database.
type Service struct {
	store store.Querier
}

func New(q store.Querier) *Service {
	return &Service{store: q}
}

// Enqueue validates req, computes its plan_hash, and inserts a new QUEUED
// command. A concurrent enqueue for the same mid with something already in
// flight surfaces as ErrConflict (mapped from the store's ErrInFlightConflict,
// itself backed by a partial unique index — see §8 S6).
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (store.Command, error) {
	if req.MID == "" || req.Cmd == "" {
		return store.Command{}, cperrors.ErrInvalidPayload
	}

	if req.Cmd == cmdRunDive {
		if err := validateRunDive(req.Args); err != nil {
			return store.Command{}, err
		}
	}

	hash, err := planhash.Compute(req.Cmd, req.Args)
	if err != nil {
		return store.Command{}, cperrors.ErrInvalidPayload
	}

	cmd, err := s.store.EnqueueCommand(ctx, store.EnqueueCommandParams{
		MID:      req.MID,
		Cmd:      req.Cmd,
		Args:     req.Args,
		PlanHash: hash,
	})
	if err != nil {
		if err == store.ErrInFlightConflict {
			return store.Command{}, cperrors.ErrConflict
		}
		return store.Command{}, fmt.Errorf("command: enqueue: %w", err)
	}

	metrics.CommandsEnqueuedTotal.Inc()
	return cmd, nil
}

// validateRunDive enforces the shape a malformed args blob would otherwise
// slip through enqueue with: target_depth_m must be positive, hold_at_depth_s
// non-negative, cycles at least one.
func validateRunDive(args json.RawMessage) error {
	var a RunDiveArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return cperrors.ErrInvalidPayload
	}
	if a.TargetDepthM <= 0 || a.HoldAtDepthS < 0 || a.Cycles < 1 {
		return cperrors.ErrInvalidPayload
	}
	return nil
}
