package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/subseactl/fleetd/pkg/appcontext"
	"github.com/subseactl/fleetd/pkg/db/store"
	cperrors "github.com/subseactl/fleetd/pkg/errors"
)

// DiveHandler serves the dive history reads: GET /dives, GET /dives/{id}.
type DiveHandler struct{}

func NewDiveHandler() *DiveHandler {
	return &DiveHandler{}
}

func (h *DiveHandler) Register(r chi.Router) {
	r.Get("/dives", h.List)
	r.Get("/dives/{id}", h.Get)
}

type diveWire struct {
	ID        string          `json:"id"`
	MID       string          `json:"mid"`
	CmdSeq    int64           `json:"cmd_seq"`
	OK        bool            `json:"ok"`
	Summary   json.RawMessage `json:"summary"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at"`
	CreatedAt time.Time       `json:"created_at"`
}

func toDiveWire(d store.Dive) diveWire {
	return diveWire{
		ID:        store.UUIDString(d.ID),
		MID:       d.MID,
		CmdSeq:    d.CmdSeq,
		OK:        d.OK,
		Summary:   d.Summary,
		StartedAt: d.StartedAt.Time,
		EndedAt:   d.EndedAt.Time,
		CreatedAt: d.CreatedAt.Time,
	}
}

func (h *DiveHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := appcontext.GetQuerier(ctx)
	page := parsePage(r)

	dives, err := q.ListDives(ctx, store.ListDivesParams{
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

	full := int32(len(dives)) > page.limit
	if full {
		dives = dives[:page.limit]
	}

	items := make([]diveWire, len(dives))
	for i, d := range dives {
		items[i] = toDiveWire(d)
	}

	var cursor string
	if len(dives) > 0 {
		last := dives[len(dives)-1]
		cursor = nextCursor(full, store.UUIDString(last.ID), last.CreatedAt.Time)
	}

	writeJSON(w, http.StatusOK, listEnvelope{Items: items, NextCursor: cursor})
}

func (h *DiveHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := appcontext.GetQuerier(ctx)
	id := chi.URLParam(r, "id")

	if _, err := uuid.Parse(id); err != nil {
		cperrors.Response(w, r, cperrors.ErrInvalidParams)
		return
	}

	d, err := q.GetDive(ctx, store.ToUUID(id))
	if err != nil {
		if err == store.ErrNoRows {
			cperrors.Response(w, r, cperrors.ErrNotFound)
			return
		}
		cperrors.Response(w, r, cperrors.ErrUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, toDiveWire(d))
}
