package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/subseactl/fleetd/internal/trajectory"
	"github.com/subseactl/fleetd/pkg/appcontext"
	"github.com/subseactl/fleetd/pkg/db/store"
	cperrors "github.com/subseactl/fleetd/pkg/errors"
)

// TelemetryHandler serves heartbeat reads and the trajectory builder:
// GET /telemetry/latest/{mid}, GET /telemetry/heartbeats,
// GET /telemetry/trajectory/{mid}.
type TelemetryHandler struct {
	trajectory *trajectory.Builder
}

func NewTelemetryHandler(t *trajectory.Builder) *TelemetryHandler {
	return &TelemetryHandler{trajectory: t}
}

func (h *TelemetryHandler) Register(r chi.Router) {
	r.Get("/telemetry/latest/{mid}", h.Latest)
	r.Get("/telemetry/heartbeats", h.List)
	r.Get("/telemetry/trajectory/{mid}", h.Trajectory)
}

type heartbeatWire struct {
	ID         string          `json:"id"`
	MID        string          `json:"mid"`
	HbSeq      int64           `json:"hb_seq"`
	TsUTC      time.Time       `json:"ts_utc"`
	ReceivedAt time.Time       `json:"received_at"`
	Payload    json.RawMessage `json:"payload"`
}

func toHeartbeatWire(hb store.Heartbeat) heartbeatWire {
	return heartbeatWire{
		ID:         store.UUIDString(hb.ID),
		MID:        hb.MID,
		HbSeq:      hb.HbSeq,
		TsUTC:      hb.TsUTC.Time,
		ReceivedAt: hb.ReceivedAt.Time,
		Payload:    hb.Payload,
	}
}

func (h *TelemetryHandler) Latest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := appcontext.GetQuerier(ctx)
	mid := chi.URLParam(r, "mid")

	hb, err := q.GetLatestHeartbeat(ctx, mid)
	if err != nil {
		if err == store.ErrNoRows {
			cperrors.Response(w, r, cperrors.ErrUnknownDevice)
			return
		}
		cperrors.Response(w, r, cperrors.ErrUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, toHeartbeatWire(hb))
}

func (h *TelemetryHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := appcontext.GetQuerier(ctx)
	page := parsePage(r)

	hbs, err := q.ListHeartbeats(ctx, store.ListHeartbeatsParams{
		MID:             textFilter(r.URL.Query().Get("mid")),
		From:            parseTimeFilter(r.URL.Query().Get("from")),
		To:              parseTimeFilter(r.URL.Query().Get("to")),
		Limit:           page.limit + 1,
		CursorID:        cursorID(page),
		CursorCreatedAt: cursorCreatedAt(page),
	})
	if err != nil {
		cperrors.Response(w, r, cperrors.ErrUnavailable)
		return
	}

	full := int32(len(hbs)) > page.limit
	if full {
		hbs = hbs[:page.limit]
	}

	items := make([]heartbeatWire, len(hbs))
	for i, hb := range hbs {
		items[i] = toHeartbeatWire(hb)
	}

	var cursor string
	if len(hbs) > 0 {
		last := hbs[len(hbs)-1]
		cursor = nextCursor(full, store.UUIDString(last.ID), last.CreatedAt.Time)
	}

	writeJSON(w, http.StatusOK, listEnvelope{Items: items, NextCursor: cursor})
}

// defaultTrajectoryWindow is the "last 24 hours" default from §4.6 when the
// caller supplies neither from nor to.
const defaultTrajectoryWindow = 24 * time.Hour

// Trajectory implements §4.6 and §4.7's ?format=geojson|detailed query.
func (h *TelemetryHandler) Trajectory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	mid := chi.URLParam(r, "mid")

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "geojson"
	}
	if format != "geojson" && format != "detailed" {
		cperrors.Response(w, r, cperrors.ErrInvalidParams)
		return
	}

	now := time.Now().UTC()
	from, to := now.Add(-defaultTrajectoryWindow), now
	if v := r.URL.Query().Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			from = t
		} else {
			cperrors.Response(w, r, cperrors.ErrInvalidParams)
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			to = t
		} else {
			cperrors.Response(w, r, cperrors.ErrInvalidParams)
			return
		}
	}

	fc, err := h.trajectory.Build(ctx, mid, from, to, format == "detailed")
	if err != nil {
		cperrors.Response(w, r, cperrors.ErrUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(fc)
}
