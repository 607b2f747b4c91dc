package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/subseactl/fleetd/pkg/appcontext"
	cperrors "github.com/subseactl/fleetd/pkg/errors"
)

// Recovery recovers from panics in downstream handlers, logs the stack
// trace, and responds with the standard internal-error envelope.
// errors.Response persists an event_logs row for every 5xx it writes, so the
// panic still shows up in the audit trail without a second write here.
func Recovery() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					err, ok := rvr.(error)
					if !ok {
						err = fmt.Errorf("%v", rvr)
					}

					l := appcontext.GetLogger(r.Context())
					l.Error("panic recovered", "error", err, "stack", string(debug.Stack()), "path", r.URL.Path)

					cperrors.Response(w, r, err)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
