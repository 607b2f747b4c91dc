package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/subseactl/fleetd/pkg/appcontext"
	cperrors "github.com/subseactl/fleetd/pkg/errors"
)

// AdminHandler serves the operational scaffolding (H): the health probe and
// the gated development-only reset.
type AdminHandler struct {
	resetEnabled bool
}

func NewAdminHandler(resetEnabled bool) *AdminHandler {
	return &AdminHandler{resetEnabled: resetEnabled}
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Get("/health", h.Health)
	r.Post("/admin/reset-db", h.ResetDB)
}

type healthResponse struct {
	Status string `json:"status"`
}

// Health performs a trivial SELECT against the database (§4.8).
func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := appcontext.GetQuerier(ctx)

	if err := q.Ping(ctx); err != nil {
		cperrors.Response(w, r, cperrors.ErrUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// ResetDB truncates every table in dependency order. Gated off in
// production builds by ADMIN_RESET_ENABLED (§4.8, §6 configuration).
func (h *AdminHandler) ResetDB(w http.ResponseWriter, r *http.Request) {
	if !h.resetEnabled {
		cperrors.Response(w, r, cperrors.ErrNotFound)
		return
	}

	ctx := r.Context()
	q := appcontext.GetQuerier(ctx)

	if err := q.ResetAll(ctx); err != nil {
		cperrors.Response(w, r, cperrors.ErrUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{Status: "reset"})
}
