// Package descent implements the descent gate (component D): the one
// validation checkpoint between a command being issued and a vehicle
// actually starting a dive.
package descent

import (
	"context"
	"fmt"
	"time"

	"github.com/subseactl/fleetd/internal/metrics"
	"github.com/subseactl/fleetd/internal/planhash"
	"github.com/subseactl/fleetd/pkg/db/store"
)

// Request is one descent-check frame from the vehicle.
type Request struct {
	MID      string
	CheckSeq int64
	CmdSeq   int64
	PlanHash string
	Payload  []byte
}

// Result is the decision returned to the vehicle. Reason is empty when OK.
type Result struct {
	OK     bool
	Reason string
}

const (
	reasonUnknownCommand = "UNKNOWN_COMMAND"
	reasonBadState       = "BAD_STATE"
	reasonPlanMismatch   = "PLAN_MISMATCH"
	reasonStale          = "STALE"
)

// Service runs the five-step descent-check algorithm.
type Service struct {
	store      store.Querier
	freshness  time.Duration
}

func New(q store.Querier, freshness time.Duration) *Service {
	return &Service{store: q, freshness: freshness}
}

// Check runs the algorithm from §4.4. The DescentCheck row is inserted
// regardless of outcome; a failing decision also guarded-transitions the
// command ISSUED → CANCELED so the vehicle's next heartbeat does not
// re-receive it.
func (s *Service) Check(ctx context.Context, req Request) (Result, error) {
	result, cmd := s.decide(ctx, req)

	if _, err := s.store.InsertDescentCheckIfAbsent(ctx, store.InsertDescentCheckIfAbsentParams{
		MID:      req.MID,
		CheckSeq: req.CheckSeq,
		CmdSeq:   req.CmdSeq,
		PlanHash: req.PlanHash,
		OK:       result.OK,
		Reason:   store.ToText(result.Reason),
		Payload:  req.Payload,
	}); err != nil {
		return Result{}, fmt.Errorf("descent: record check: %w", err)
	}

	reasonLabel := result.Reason
	if reasonLabel == "" {
		reasonLabel = "OK"
	}
	metrics.DescentChecksTotal.WithLabelValues(reasonLabel).Inc()

	if result.OK {
		n, err := s.store.TransitionIssuedToExecuting(ctx, cmd.ID)
		if err != nil {
			return Result{}, fmt.Errorf("descent: transition to executing: %w", err)
		}
		if n == 0 {
			// Lost a race (e.g. concurrent sweep/cancel): report failure
			// rather than a false ok=true.
			return Result{OK: false, Reason: reasonBadState}, nil
		}
		return result, nil
	}

	if result.Reason != reasonUnknownCommand {
		if _, err := s.store.TransitionIssuedToCanceled(ctx, cmd.ID); err != nil {
			return Result{}, fmt.Errorf("descent: transition to canceled: %w", err)
		}
	}

	return result, nil
}

func (s *Service) decide(ctx context.Context, req Request) (Result, store.Command) {
	cmd, err := s.store.GetCommandByMIDSeq(ctx, req.MID, req.CmdSeq)
	if err != nil {
		return Result{OK: false, Reason: reasonUnknownCommand}, store.Command{}
	}

	if cmd.Status != store.CommandStatusIssued {
		return Result{OK: false, Reason: reasonBadState}, cmd
	}

	computed, err := planhash.Compute(cmd.Cmd, cmd.Args)
	if err != nil || computed != req.PlanHash {
		return Result{OK: false, Reason: reasonPlanMismatch}, cmd
	}

	if cmd.IssuedAt.Valid && time.Since(cmd.IssuedAt.Time) > s.freshness {
		return Result{OK: false, Reason: reasonStale}, cmd
	}

	return Result{OK: true}, cmd
}
