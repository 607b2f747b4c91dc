// Package ascent implements the ascent reconciler (component E): recording
// the outcome of one dive attempt and closing out the command that drove it.
package ascent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/subseactl/fleetd/internal/metrics"
	"github.com/subseactl/fleetd/pkg/db/store"
)

// Request is one ascent-notify frame from the vehicle.
type Request struct {
	MID       string
	CmdSeq    int64
	OK        bool
	StartedAt time.Time
	EndedAt   time.Time
	Remarks   json.RawMessage
}

type summary struct {
	OK      bool            `json:"ok"`
	Orphan  bool            `json:"orphan"`
	Remarks json.RawMessage `json:"remarks,omitempty"`
}

// Service records dive outcomes and reconciles the driving command.
type Service struct {
	store store.Querier
}

func New(q store.Querier) *Service {
	return &Service{store: q}
}

// Handle creates the Dive row, attempts the matching guarded transition, and
// writes an EventLog entry. A command not in EXECUTING (e.g. the
// descent-check was never received) still gets its Dive recorded, flagged
// orphan, with no transition attempted.
func (s *Service) Handle(ctx context.Context, req Request) (store.Dive, error) {
	cmd, err := s.store.GetCommandByMIDSeq(ctx, req.MID, req.CmdSeq)
	orphan := err != nil || cmd.Status != store.CommandStatusExecuting

	summaryBytes, err := json.Marshal(summary{OK: req.OK, Orphan: orphan, Remarks: req.Remarks})
	if err != nil {
		return store.Dive{}, fmt.Errorf("ascent: marshal summary: %w", err)
	}

	dive, err := s.store.CreateDive(ctx, store.CreateDiveParams{
		MID:       req.MID,
		CmdSeq:    req.CmdSeq,
		OK:        req.OK,
		Summary:   summaryBytes,
		StartedAt: store.ToTimestamptz(req.StartedAt),
		EndedAt:   store.ToTimestamptz(req.EndedAt),
	})
	if err != nil {
		return store.Dive{}, fmt.Errorf("ascent: create dive: %w", err)
	}

	outcome := "completed"
	if !req.OK {
		outcome = "error"
	}
	if orphan {
		outcome = "orphan"
	}
	metrics.DivesTotal.WithLabelValues(outcome).Inc()

	if !orphan {
		if req.OK {
			if _, err := s.store.TransitionExecutingToCompleted(ctx, cmd.ID); err != nil {
				return store.Dive{}, fmt.Errorf("ascent: transition to completed: %w", err)
			}
		} else {
			if _, err := s.store.TransitionExecutingToError(ctx, cmd.ID); err != nil {
				return store.Dive{}, fmt.Errorf("ascent: transition to error: %w", err)
			}
		}
	}

	kind := "dive_completed"
	if orphan {
		kind = "dive_orphaned"
	} else if !req.OK {
		kind = "dive_failed"
	}
	if _, err := s.store.CreateEventLog(ctx, store.CreateEventLogParams{
		MID:     store.ToText(req.MID),
		Kind:    kind,
		Message: fmt.Sprintf("dive for cmd_seq %d reported ok=%v", req.CmdSeq, req.OK),
		Data:    summaryBytes,
	}); err != nil {
		return store.Dive{}, fmt.Errorf("ascent: record event: %w", err)
	}

	return dive, nil
}
