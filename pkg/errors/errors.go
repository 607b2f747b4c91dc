package errors

import (
	"encoding/json"
	"net/http"

	"github.com/subseactl/fleetd/pkg/appcontext"
	"github.com/subseactl/fleetd/pkg/db/store"
)

// ControlPlaneError is the typed error surfaced to HTTP and wire clients.
// Every domain error kind from the error-handling design is one of the
// package-level values below.
type ControlPlaneError struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

func (e *ControlPlaneError) Error() string {
	return e.Message
}

// Catalog. Kinds match the wire contract's error vocabulary exactly;
// NotFound/Internal/InvalidParams exist alongside it for conditions the
// wire contract doesn't name but the HTTP surface still has to report.
// BAD_STATE, PLAN_MISMATCH, and STALE are wire-contract error kinds too, but
// they're descent-check outcomes reported in the {"ok":false,"reason":...}
// response body (internal/descent), never as an HTTP-level ControlPlaneError.
var (
	ErrInvalidPayload = &ControlPlaneError{Kind: "INVALID_PAYLOAD", Message: "payload failed validation", HTTPStatus: http.StatusBadRequest}
	ErrUnknownDevice  = &ControlPlaneError{Kind: "UNKNOWN_DEVICE", Message: "device not found", HTTPStatus: http.StatusNotFound}
	ErrUnknownCommand = &ControlPlaneError{Kind: "UNKNOWN_COMMAND", Message: "command not found", HTTPStatus: http.StatusNotFound}
	ErrConflict       = &ControlPlaneError{Kind: "CONFLICT", Message: "a command is already in flight for this device", HTTPStatus: http.StatusConflict}
	ErrUnavailable    = &ControlPlaneError{Kind: "UNAVAILABLE", Message: "database unavailable", HTTPStatus: http.StatusServiceUnavailable}
	ErrNotFound       = &ControlPlaneError{Kind: "NOT_FOUND", Message: "resource not found", HTTPStatus: http.StatusNotFound}
	ErrInvalidParams  = &ControlPlaneError{Kind: "INVALID_PARAMS", Message: "invalid query parameters", HTTPStatus: http.StatusBadRequest}
	ErrInternal       = &ControlPlaneError{Kind: "INTERNAL_ERROR", Message: "internal server error", HTTPStatus: http.StatusInternalServerError}
)

type errorBody struct {
	Error *ControlPlaneError `json:"error"`
}

// Response writes err as {"error":{"kind":...,"message":...}}. Unrecognized
// errors are reported as INTERNAL_ERROR and never leak their text or a
// stack trace to the client; they are logged and recorded instead.
func Response(w http.ResponseWriter, r *http.Request, err error) {
	cpe, ok := err.(*ControlPlaneError)
	if !ok {
		cpe = ErrInternal
		logInternalError(r, err)
	} else if cpe.HTTPStatus >= http.StatusInternalServerError {
		logInternalError(r, err)
	}

	if cpe.HTTPStatus >= http.StatusInternalServerError {
		if reqID := appcontext.GetRequestID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(cpe.HTTPStatus)
	json.NewEncoder(w).Encode(errorBody{Error: cpe})
}

func logInternalError(r *http.Request, originalErr error) {
	ctx := r.Context()
	l := appcontext.GetLogger(ctx)
	l.Error("internal server error", "error", originalErr, "path", r.URL.Path, "request_id", appcontext.GetRequestID(ctx))

	db := appcontext.GetQuerier(ctx)
	if db == nil {
		return
	}

	data, _ := json.Marshal(map[string]interface{}{
		"method": r.Method,
		"path":   r.URL.Path,
		"query":  r.URL.RawQuery,
	})

	if _, err := db.CreateEventLog(ctx, store.CreateEventLogParams{
		Kind:    "internal_error",
		Message: originalErr.Error(),
		Data:    data,
	}); err != nil {
		l.Error("failed to persist internal error event", "error", err)
	}
}
