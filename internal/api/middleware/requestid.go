package middleware

import (
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/subseactl/fleetd/pkg/appcontext"
)

// RequestID assigns chi's request-id to the request and mirrors it into
// appcontext, so every logger call and error response downstream can read
// it with appcontext.GetRequestID without taking a chi dependency itself.
func RequestID(next http.Handler) http.Handler {
	return chimiddleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chimiddleware.GetReqID(r.Context())
		ctx := appcontext.WithRequestID(r.Context(), id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	}))
}
