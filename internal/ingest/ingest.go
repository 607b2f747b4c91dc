// Package ingest implements the heartbeat ingest contract (component B): it
// accepts one vehicle frame, persists it idempotently, advances the device
// rollup, and dispenses the oldest queued command for the vehicle.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/subseactl/fleetd/internal/metrics"
	"github.com/subseactl/fleetd/pkg/db/store"
	"github.com/subseactl/fleetd/pkg/logger"
)

// maxDispenseAttempts bounds the guarded-transition retry: the wire contract
// allows retrying once with the next candidate (§4.2); since only one
// command may be QUEUED per mid at a time, a lost race leaves no candidate
// and the second attempt always finds nothing.
const maxDispenseAttempts = 2

// Request is the parsed, validated heartbeat frame. RawPayload is the
// original request body, stored verbatim as the Heartbeat's opaque payload.
type Request struct {
	MID         string
	HbSeq       uint64
	TsUTC       time.Time
	State       string
	Position    json.RawMessage
	Power       json.RawMessage
	Environment json.RawMessage
	Network     json.RawMessage
	FirmwareTag string
	RawPayload  []byte
}

type wireRequest struct {
	MID         string          `json:"mid"`
	HbSeq       *uint64         `json:"hb_seq"`
	TsUTC       time.Time       `json:"ts_utc"`
	State       string          `json:"state"`
	Position    json.RawMessage `json:"position"`
	Power       json.RawMessage `json:"power"`
	Environment json.RawMessage `json:"environment"`
	Network     json.RawMessage `json:"network"`
	FirmwareTag string          `json:"firmware_tag"`
}

// ErrInvalidPayload is returned by ParseRequest when the body fails the
// minimal wire schema check (§4.2 "Malformed payload → 4xx").
var ErrInvalidPayload = errors.New("ingest: invalid heartbeat payload")

// ParseRequest decodes and validates the minimum viable heartbeat frame:
// mid, hb_seq, ts_utc and state must all be present. Everything else is
// carried as opaque JSON.
func ParseRequest(body []byte) (Request, error) {
	var w wireRequest
	if err := json.Unmarshal(body, &w); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if w.MID == "" || w.HbSeq == nil || w.State == "" || w.TsUTC.IsZero() {
		return Request{}, ErrInvalidPayload
	}

	return Request{
		MID:         w.MID,
		HbSeq:       *w.HbSeq,
		TsUTC:       w.TsUTC,
		State:       w.State,
		Position:    w.Position,
		Power:       w.Power,
		Environment: w.Environment,
		Network:     w.Network,
		FirmwareTag: w.FirmwareTag,
		RawPayload:  body,
	}, nil
}

// DispensedCommand is the command slot returned in the heartbeat response.
type DispensedCommand struct {
	Seq      int64
	Cmd      string
	Args     json.RawMessage
	PlanHash string
}

// Transactor is satisfied by *store.Queries bound to the connection pool: it
// serves plain reads like any Querier, and its RunTx scopes a whole batch of
// statements to one transaction bound via store.Queries.WithTx.
type Transactor interface {
	store.Querier
	RunTx(ctx context.Context, db store.Beginner, fn func(tx store.Querier) error) error
}

// Service wires the three logical primitives (insert-if-absent, idempotent
// upsert, guarded transition) into the ingest algorithm from §4.2.
type Service struct {
	queries Transactor
	pool    store.Beginner
	logger  *logger.Logger
}

func New(queries Transactor, pool store.Beginner, l *logger.Logger) *Service {
	return &Service{queries: queries, pool: pool, logger: l}
}

// Handle runs the full ingest algorithm inside a single database
// transaction: either the heartbeat is logged, the rollup advanced, and a
// command is (possibly) dispensed, or none of it is (§4.2 no partial
// acceptance).
func (s *Service) Handle(ctx context.Context, req Request) (*DispensedCommand, error) {
	hbSeq := int64(req.HbSeq)

	var result *DispensedCommand
	err := s.queries.RunTx(ctx, s.pool, func(tx store.Querier) error {
		hb, fresh, err := tx.InsertHeartbeatIfAbsent(ctx, store.InsertHeartbeatIfAbsentParams{
			MID:        req.MID,
			HbSeq:      hbSeq,
			TsUTC:      store.ToTimestamptz(req.TsUTC),
			ReceivedAt: time.Now().UTC(),
			Payload:    req.RawPayload,
		})
		if err != nil {
			return fmt.Errorf("ingest: insert heartbeat: %w", err)
		}
		_ = hb

		metrics.HeartbeatsTotal.WithLabelValues(req.MID).Inc()

		if !fresh {
			// Retransmit: re-return whatever command was dispensed at this
			// hb_seq, rather than advancing to the next one (§4.2 idempotence).
			cmd, ok, err := tx.GetCommandDispensedAtHbSeq(ctx, store.GetCommandDispensedAtHbSeqParams{
				MID:   req.MID,
				HbSeq: hbSeq,
			})
			if err != nil {
				return fmt.Errorf("ingest: idempotent re-return: %w", err)
			}
			if ok {
				result = toDispensedCommand(cmd)
			}
			return nil
		}

		if err := s.upsertRollup(ctx, tx, req); err != nil {
			return err
		}

		result, err = s.dispense(ctx, tx, req.MID, hbSeq)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) upsertRollup(ctx context.Context, tx store.Querier, req Request) error {
	existing, err := tx.GetDevice(ctx, req.MID)
	firstContact := errors.Is(err, store.ErrNoRows)
	outOfOrder := !firstContact && err == nil && existing.LastHbSeq.Valid && int64(req.HbSeq) < existing.LastHbSeq.Int64

	_, err = tx.UpsertDeviceRollup(ctx, store.UpsertDeviceRollupParams{
		MID:         req.MID,
		FirmwareTag: store.ToText(req.FirmwareTag),
		HbSeq:       int64(req.HbSeq),
		ReceivedAt:  time.Now().UTC(),
		LastState:   store.ToText(req.State),
		Position:    req.Position,
		Power:       req.Power,
		Environment: req.Environment,
		Network:     req.Network,
	})
	if err != nil {
		return fmt.Errorf("ingest: upsert device rollup: %w", err)
	}

	if firstContact {
		s.event(ctx, tx, req.MID, "device_first_contact", fmt.Sprintf("first heartbeat from %s", req.MID))
	} else if outOfOrder {
		s.event(ctx, tx, req.MID, "heartbeat_out_of_order", fmt.Sprintf("hb_seq %d behind stored rollup %d", req.HbSeq, existing.LastHbSeq.Int64))
	}
	return nil
}

func (s *Service) dispense(ctx context.Context, tx store.Querier, mid string, hbSeq int64) (*DispensedCommand, error) {
	for attempt := 0; attempt < maxDispenseAttempts; attempt++ {
		cmd, ok, err := tx.GetOldestQueuedCommand(ctx, mid)
		if err != nil {
			return nil, fmt.Errorf("ingest: get oldest queued command: %w", err)
		}
		if !ok {
			return nil, nil
		}

		n, err := tx.TransitionQueuedToIssued(ctx, store.TransitionQueuedToIssuedParams{ID: cmd.ID, HbSeq: hbSeq})
		if err != nil {
			return nil, fmt.Errorf("ingest: issue command: %w", err)
		}
		if n > 0 {
			cmd.Status = store.CommandStatusIssued
			cmd.DispensedAtHbSeq = store.ToInt8(hbSeq)
			return toDispensedCommand(cmd), nil
		}
		// Lost the race to another worker; retry once with whatever is now
		// the oldest QUEUED command for this mid.
	}
	return nil, nil
}

func (s *Service) event(ctx context.Context, tx store.Querier, mid, kind, message string) {
	if _, err := tx.CreateEventLog(ctx, store.CreateEventLogParams{
		MID:     store.ToText(mid),
		Kind:    kind,
		Message: message,
	}); err != nil {
		s.logger.Warn("failed to record event log", "kind", kind, "error", err)
	}
}

func toDispensedCommand(cmd store.Command) *DispensedCommand {
	return &DispensedCommand{
		Seq:      cmd.Seq,
		Cmd:      cmd.Cmd,
		Args:     json.RawMessage(cmd.Args),
		PlanHash: cmd.PlanHash,
	}
}
