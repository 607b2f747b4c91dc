package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	cperrors "github.com/subseactl/fleetd/pkg/errors"
)

// VehicleRequestTimeout is the hard wall-clock cap on the vehicle-facing
// tree: if the database hasn't answered by then, the vehicle gets a 503
// and retries on its next heartbeat cadence rather than hang the handler.
const VehicleRequestTimeout = 15 * time.Second

// Timeout caps request handling at d, propagating the deadline through the
// request context so a handler's database call gets canceled rather than
// left running past the response. Handlers must read r.Context(), not
// context.Background(), for this to take effect.
//
// Unlike http.TimeoutHandler, a deadline here writes the standard
// {"error":{"kind":...}} envelope (§7) instead of a plain-text body, so a
// vehicle that times out gets a response its JSON client can still parse.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			r = r.WithContext(ctx)

			tw := &timeoutWriter{ResponseWriter: w}
			done := make(chan struct{})
			go func() {
				next.ServeHTTP(tw, r)
				close(done)
			}()

			select {
			case <-done:
			case <-ctx.Done():
				tw.mu.Lock()
				defer tw.mu.Unlock()
				if !tw.wroteHeader {
					tw.timedOut = true
					cperrors.Response(w, r, cperrors.ErrUnavailable)
				}
			}
		})
	}
}

// timeoutWriter guards the underlying ResponseWriter against a handler
// goroutine still running (and writing) after the deadline has already
// produced the 503 envelope.
type timeoutWriter struct {
	http.ResponseWriter
	mu          sync.Mutex
	timedOut    bool
	wroteHeader bool
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut || tw.wroteHeader {
		return
	}
	tw.wroteHeader = true
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *timeoutWriter) Write(p []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return len(p), nil
	}
	if !tw.wroteHeader {
		tw.wroteHeader = true
		tw.ResponseWriter.WriteHeader(http.StatusOK)
	}
	return tw.ResponseWriter.Write(p)
}
