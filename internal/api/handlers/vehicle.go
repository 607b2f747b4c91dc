// Package handlers wires the component services (ingest, descent, ascent,
// command, trajectory) into chi routes, translating wire JSON to service
// requests and domain results back to wire JSON.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/subseactl/fleetd/internal/ascent"
	"github.com/subseactl/fleetd/internal/descent"
	"github.com/subseactl/fleetd/internal/ingest"
	"github.com/subseactl/fleetd/internal/metrics"
	"github.com/subseactl/fleetd/pkg/appcontext"
	cperrors "github.com/subseactl/fleetd/pkg/errors"
)

// VehicleHandler serves the three vehicle-facing endpoints: /hb,
// /descent-check and /ascent-notify. Each wraps one component service and
// nothing else — session-less, one request in, one response out.
type VehicleHandler struct {
	ingest  *ingest.Service
	descent *descent.Service
	ascent  *ascent.Service
}

func NewVehicleHandler(i *ingest.Service, d *descent.Service, a *ascent.Service) *VehicleHandler {
	return &VehicleHandler{ingest: i, descent: d, ascent: a}
}

// Register mounts the vehicle-facing tree under r.
func (h *VehicleHandler) Register(r chi.Router) {
	r.Post("/hb", h.Heartbeat)
	r.Post("/descent-check", h.DescentCheck)
	r.Post("/ascent-notify", h.AscentNotify)
}

type heartbeatResponse struct {
	Ack     bool             `json:"ack"`
	Command *commandResponse `json:"command"`
}

type commandResponse struct {
	Seq      int64           `json:"seq"`
	Cmd      string          `json:"cmd"`
	Args     json.RawMessage `json:"args"`
	PlanHash string          `json:"plan_hash"`
}

// Heartbeat implements §4.2: persist the frame, update the rollup, dispense
// the oldest queued command (if any).
func (h *VehicleHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := appcontext.GetLogger(ctx)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		cperrors.Response(w, r, cperrors.ErrInvalidPayload)
		return
	}

	req, err := ingest.ParseRequest(body)
	if err != nil {
		metrics.HeartbeatsRejectedTotal.Inc()
		cperrors.Response(w, r, cperrors.ErrInvalidPayload)
		return
	}

	dispensed, err := h.ingest.Handle(ctx, req)
	if err != nil {
		l.Error("heartbeat ingest failed", "mid", req.MID, "error", err)
		cperrors.Response(w, r, cperrors.ErrUnavailable)
		return
	}

	resp := heartbeatResponse{Ack: true}
	if dispensed != nil {
		resp.Command = &commandResponse{
			Seq:      dispensed.Seq,
			Cmd:      dispensed.Cmd,
			Args:     dispensed.Args,
			PlanHash: dispensed.PlanHash,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type descentCheckWire struct {
	MID      string `json:"mid"`
	CheckSeq int64  `json:"check_seq"`
	CmdSeq   int64  `json:"cmd_seq"`
	PlanHash string `json:"plan_hash"`
}

type descentCheckResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// DescentCheck implements §4.4: validate the vehicle's plan_hash against the
// issued command and gate the dive.
func (h *VehicleHandler) DescentCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := appcontext.GetLogger(ctx)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		cperrors.Response(w, r, cperrors.ErrInvalidPayload)
		return
	}

	var wire descentCheckWire
	if err := json.Unmarshal(body, &wire); err != nil || wire.MID == "" {
		cperrors.Response(w, r, cperrors.ErrInvalidPayload)
		return
	}

	result, err := h.descent.Check(ctx, descent.Request{
		MID:      wire.MID,
		CheckSeq: wire.CheckSeq,
		CmdSeq:   wire.CmdSeq,
		PlanHash: wire.PlanHash,
		Payload:  body,
	})
	if err != nil {
		l.Error("descent check failed", "mid", wire.MID, "error", err)
		cperrors.Response(w, r, cperrors.ErrUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, descentCheckResponse{OK: result.OK, Reason: result.Reason})
}

type ascentNotifyWire struct {
	MID       string          `json:"mid"`
	CmdSeq    int64           `json:"cmd_seq"`
	OK        bool            `json:"ok"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at"`
	Summary   json.RawMessage `json:"summary"`
}

type ackResponse struct {
	Ack bool `json:"ack"`
}

// AscentNotify implements §4.5: record the dive outcome and reconcile the
// driving command.
func (h *VehicleHandler) AscentNotify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := appcontext.GetLogger(ctx)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		cperrors.Response(w, r, cperrors.ErrInvalidPayload)
		return
	}

	var wire ascentNotifyWire
	if err := json.Unmarshal(body, &wire); err != nil || wire.MID == "" {
		cperrors.Response(w, r, cperrors.ErrInvalidPayload)
		return
	}

	startedAt, endedAt := wire.StartedAt, wire.EndedAt
	if endedAt.IsZero() {
		endedAt = time.Now().UTC()
	}
	if startedAt.IsZero() {
		startedAt = endedAt
	}

	_, err = h.ascent.Handle(ctx, ascent.Request{
		MID:       wire.MID,
		CmdSeq:    wire.CmdSeq,
		OK:        wire.OK,
		StartedAt: startedAt,
		EndedAt:   endedAt,
		Remarks:   wire.Summary,
	})
	if err != nil {
		l.Error("ascent notify failed", "mid", wire.MID, "error", err)
		cperrors.Response(w, r, cperrors.ErrUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, ackResponse{Ack: true})
}
