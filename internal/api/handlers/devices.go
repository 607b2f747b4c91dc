package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/subseactl/fleetd/pkg/appcontext"
	"github.com/subseactl/fleetd/pkg/db/store"
	cperrors "github.com/subseactl/fleetd/pkg/errors"
)

// DeviceHandler serves the device rollup reads: GET /devices,
// GET /devices/{mid}, GET /devices/{mid}/status.
type DeviceHandler struct{}

func NewDeviceHandler() *DeviceHandler {
	return &DeviceHandler{}
}

func (h *DeviceHandler) Register(r chi.Router) {
	r.Get("/devices", h.List)
	r.Get("/devices/{mid}", h.Get)
	r.Get("/devices/{mid}/status", h.Status)
}

type deviceResponse struct {
	MID           string          `json:"mid"`
	FirmwareTag   string          `json:"firmware_tag,omitempty"`
	LastHbSeq     int64           `json:"last_hb_seq"`
	LastContactAt *time.Time      `json:"last_contact_at,omitempty"`
	LastState     string          `json:"last_state,omitempty"`
	Position      json.RawMessage `json:"position,omitempty"`
	Power         json.RawMessage `json:"power,omitempty"`
	Environment   json.RawMessage `json:"environment,omitempty"`
	Network       json.RawMessage `json:"network,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func toDeviceResponse(d store.Device) deviceResponse {
	resp := deviceResponse{
		MID:         d.MID,
		FirmwareTag: d.FirmwareTag.String,
		LastState:   d.LastState.String,
		Position:    d.Position,
		Power:       d.Power,
		Environment: d.Environment,
		Network:     d.Network,
		CreatedAt:   d.CreatedAt.Time,
		UpdatedAt:   d.UpdatedAt.Time,
	}
	if d.LastHbSeq.Valid {
		resp.LastHbSeq = d.LastHbSeq.Int64
	}
	if d.LastContactAt.Valid {
		t := d.LastContactAt.Time
		resp.LastContactAt = &t
	}
	return resp
}

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := appcontext.GetQuerier(ctx)
	page := parsePage(r)

	devices, err := q.ListDevices(ctx, store.ListDevicesParams{Limit: page.limit + 1, Cursor: textFilter(page.cursor.ID)})
	if err != nil {
		cperrors.Response(w, r, cperrors.ErrUnavailable)
		return
	}

	full := int32(len(devices)) > page.limit
	if full {
		devices = devices[:page.limit]
	}

	items := make([]deviceResponse, len(devices))
	for i, d := range devices {
		items[i] = toDeviceResponse(d)
	}

	var cursor string
	if len(devices) > 0 {
		last := devices[len(devices)-1]
		cursor = nextCursor(full, last.MID, last.UpdatedAt.Time)
	}

	writeJSON(w, http.StatusOK, listEnvelope{Items: items, NextCursor: cursor})
}

func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := appcontext.GetQuerier(ctx)
	mid := chi.URLParam(r, "mid")

	d, err := q.GetDevice(ctx, mid)
	if err != nil {
		if err == store.ErrNoRows {
			cperrors.Response(w, r, cperrors.ErrUnknownDevice)
			return
		}
		cperrors.Response(w, r, cperrors.ErrUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, toDeviceResponse(d))
}

type deviceStatusResponse struct {
	MID            string     `json:"mid"`
	LastState      string     `json:"last_state,omitempty"`
	LastHbSeq      int64      `json:"last_hb_seq"`
	LastContactAt  *time.Time `json:"last_contact_at,omitempty"`
	InFlightStatus string     `json:"in_flight_command_status,omitempty"`
}

// Status is a condensed view combining the device rollup with whether a
// command is currently in flight for it — the operator UI's at-a-glance
// fleet summary doesn't need the full rollup payload for this.
func (h *DeviceHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := appcontext.GetQuerier(ctx)
	mid := chi.URLParam(r, "mid")

	d, err := q.GetDevice(ctx, mid)
	if err != nil {
		if err == store.ErrNoRows {
			cperrors.Response(w, r, cperrors.ErrUnknownDevice)
			return
		}
		cperrors.Response(w, r, cperrors.ErrUnavailable)
		return
	}

	resp := deviceStatusResponse{MID: d.MID, LastState: d.LastState.String}
	if d.LastHbSeq.Valid {
		resp.LastHbSeq = d.LastHbSeq.Int64
	}
	if d.LastContactAt.Valid {
		t := d.LastContactAt.Time
		resp.LastContactAt = &t
	}

	cmds, err := q.ListCommands(ctx, store.ListCommandsParams{MID: textFilter(mid), Limit: 100})
	if err == nil {
		for _, c := range cmds {
			if c.Status == store.CommandStatusQueued || c.Status == store.CommandStatusIssued || c.Status == store.CommandStatusExecuting {
				resp.InFlightStatus = string(c.Status)
				break
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
