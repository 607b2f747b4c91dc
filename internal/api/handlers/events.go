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

// EventHandler serves the diagnostic trail read: GET /events. EventLog is
// not semantically load-bearing (§3) so there is no per-id lookup, only the
// paged list the operator UI and tests consume.
type EventHandler struct{}

func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

func (h *EventHandler) Register(r chi.Router) {
	r.Get("/events", h.List)
}

type eventWire struct {
	ID        string          `json:"id"`
	MID       string          `json:"mid,omitempty"`
	Kind      string          `json:"kind"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := appcontext.GetQuerier(ctx)
	page := parsePage(r)

	events, err := q.ListEvents(ctx, store.ListEventsParams{
		MID:             textFilter(r.URL.Query().Get("mid")),
		Limit:           page.limit + 1,
		CursorID:        cursorID(page),
		CursorCreatedAt: cursorCreatedAt(page),
	})
	if err != nil {
		cperrors.Response(w, r, cperrors.ErrUnavailable)
		return
	}

	full := int32(len(events)) > page.limit
	if full {
		events = events[:page.limit]
	}

	items := make([]eventWire, len(events))
	for i, e := range events {
		items[i] = eventWire{
			ID:        store.UUIDString(e.ID),
			MID:       e.MID.String,
			Kind:      e.Kind,
			Message:   e.Message,
			Data:      e.Data,
			CreatedAt: e.CreatedAt.Time,
		}
	}

	var cursor string
	if len(events) > 0 {
		last := events[len(events)-1]
		cursor = nextCursor(full, store.UUIDString(last.ID), last.CreatedAt.Time)
	}

	writeJSON(w, http.StatusOK, listEnvelope{Items: items, NextCursor: cursor})
}
