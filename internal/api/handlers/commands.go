package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/subseactl/fleetd/internal/command"
	"github.com/subseactl/fleetd/pkg/appcontext"
	"github.com/subseactl/fleetd/pkg/db/store"
	cperrors "github.com/subseactl/fleetd/pkg/errors"
)

// CommandHandler serves the command enqueue and read endpoints: POST
// /commands, GET /commands, GET /commands/{id}.
type CommandHandler struct {
	commands *command.Service
}

func NewCommandHandler(c *command.Service) *CommandHandler {
	return &CommandHandler{commands: c}
}

func (h *CommandHandler) Register(r chi.Router) {
	r.Post("/commands", h.Enqueue)
	r.Get("/commands", h.List)
	r.Get("/commands/{id}", h.Get)
}

type enqueueCommandWire struct {
	MID  string          `json:"mid"`
	Cmd  string          `json:"cmd"`
	Args json.RawMessage `json:"args"`
}

type commandWire struct {
	ID          string          `json:"id"`
	MID         string          `json:"mid"`
	Seq         int64           `json:"seq"`
	Cmd         string          `json:"cmd"`
	Args        json.RawMessage `json:"args"`
	PlanHash    string          `json:"plan_hash"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	IssuedAt    *time.Time      `json:"issued_at,omitempty"`
	ExecutingAt *time.Time      `json:"executing_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

func toCommandWire(c store.Command) commandWire {
	w := commandWire{
		ID:        store.UUIDString(c.ID),
		MID:       c.MID,
		Seq:       c.Seq,
		Cmd:       c.Cmd,
		Args:      c.Args,
		PlanHash:  c.PlanHash,
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt.Time,
	}
	if c.IssuedAt.Valid {
		t := c.IssuedAt.Time
		w.IssuedAt = &t
	}
	if c.ExecutingAt.Valid {
		t := c.ExecutingAt.Time
		w.ExecutingAt = &t
	}
	if c.CompletedAt.Valid {
		t := c.CompletedAt.Time
		w.CompletedAt = &t
	}
	return w
}

// Enqueue implements the web side of §4.3's enqueue rule: 409 CONFLICT when
// a command is already in flight for the mid, otherwise 200 with the new
// QUEUED row.
func (h *CommandHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var wire enqueueCommandWire
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		cperrors.Response(w, r, cperrors.ErrInvalidPayload)
		return
	}

	cmd, err := h.commands.Enqueue(ctx, command.EnqueueRequest{MID: wire.MID, Cmd: wire.Cmd, Args: wire.Args})
	if err != nil {
		cperrors.Response(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toCommandWire(cmd))
}

func (h *CommandHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := appcontext.GetQuerier(ctx)
	page := parsePage(r)

	cmds, err := q.ListCommands(ctx, store.ListCommandsParams{
		MID:             textFilter(r.URL.Query().Get("mid")),
		Status:          textFilter(r.URL.Query().Get("status")),
		Limit:           page.limit + 1,
		CursorID:        cursorID(page),
		CursorCreatedAt: cursorCreatedAt(page),
	})
	if err != nil {
		cperrors.Response(w, r, cperrors.ErrUnavailable)
		return
	}

	full := int32(len(cmds)) > page.limit
	if full {
		cmds = cmds[:page.limit]
	}

	items := make([]commandWire, len(cmds))
	for i, c := range cmds {
		items[i] = toCommandWire(c)
	}

	var cursor string
	if len(cmds) > 0 {
		last := cmds[len(cmds)-1]
		cursor = nextCursor(full, store.UUIDString(last.ID), last.CreatedAt.Time)
	}

	writeJSON(w, http.StatusOK, listEnvelope{Items: items, NextCursor: cursor})
}

func (h *CommandHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := appcontext.GetQuerier(ctx)
	id := chi.URLParam(r, "id")

	if _, err := uuid.Parse(id); err != nil {
		cperrors.Response(w, r, cperrors.ErrInvalidParams)
		return
	}

	cmd, err := q.GetCommandByID(ctx, store.ToUUID(id))
	if err != nil {
		if err == store.ErrNoRows {
			cperrors.Response(w, r, cperrors.ErrUnknownCommand)
			return
		}
		cperrors.Response(w, r, cperrors.ErrUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, toCommandWire(cmd))
}
