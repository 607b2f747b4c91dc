// Package middleware holds the HTTP middleware chain wrapping every route:
// dependency injection, request correlation, panic recovery, CORS, and
// per-mid rate limiting on the vehicle-facing tree.
package middleware

import (
	"net/http"

	"github.com/subseactl/fleetd/pkg/appcontext"
	"github.com/subseactl/fleetd/pkg/db/store"
	"github.com/subseactl/fleetd/pkg/logger"
)

// InjectDependencies injects the logger and database querier into the
// request context so handlers never take them as constructor arguments.
func InjectDependencies(db store.Querier, l *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = appcontext.WithLogger(ctx, l)
			ctx = appcontext.WithQuerier(ctx, db)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
