package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/subseactl/fleetd/pkg/pagination"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// pageRequest is the common limit/cursor pair every list endpoint parses
// from its query string. cursor carries the full (id, created_at) pair
// (§4.7) rather than id alone, since id is a random gen_random_uuid() with
// no relationship to insertion order.
type pageRequest struct {
	limit  int32
	cursor pagination.Cursor
}

func parsePage(r *http.Request) pageRequest {
	limit := pagination.ClampLimit(atoiOr(r.URL.Query().Get("limit"), 0))
	var cursor pagination.Cursor
	if tok := r.URL.Query().Get("cursor"); tok != "" {
		if c, err := pagination.Decode(tok); err == nil {
			cursor = c
		}
	}
	return pageRequest{limit: limit, cursor: cursor}
}

// cursorID and cursorCreatedAt adapt a decoded pageRequest.cursor into the
// store layer's compound cursor params.
func cursorID(p pageRequest) pgtype.Text {
	return textFilter(p.cursor.ID)
}

func cursorCreatedAt(p pageRequest) pgtype.Timestamptz {
	if p.cursor.ID == "" {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: p.cursor.CreatedAt, Valid: true}
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// nextCursor builds the opaque token for the next page from the last row's
// (id, created_at) pair, per §4.7's cursor contract. Returns "" when the
// page came back short, signaling there is no further page.
func nextCursor(full bool, id string, createdAt time.Time) string {
	if !full {
		return ""
	}
	return pagination.Encode(pagination.Cursor{ID: id, CreatedAt: createdAt})
}

func parseTimeFilter(v string) pgtype.Timestamptz {
	if v == "" {
		return pgtype.Timestamptz{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func textFilter(v string) pgtype.Text {
	if v == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: v, Valid: true}
}

type listEnvelope struct {
	Items      interface{} `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}
