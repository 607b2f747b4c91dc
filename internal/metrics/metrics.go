// Package metrics holds the Prometheus instrumentation shared by the store
// layer, the background sweep, and the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// StoreOpsTotal counts every guarded transition and insert-if-absent
	// call issued by the persistence layer, labeled by outcome so a losing
	// racer on a guarded transition is visible without digging into logs.
	StoreOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_store_ops_total",
			Help: "Total store operations by op and outcome",
		},
		[]string{"op", "outcome"},
	)

	HeartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_heartbeats_total",
			Help: "Total accepted heartbeats by mid",
		},
		[]string{"mid"},
	)

	HeartbeatsRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "controlplane_heartbeats_rejected_total",
			Help: "Total heartbeats rejected for malformed payload",
		},
	)

	DescentChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_descent_checks_total",
			Help: "Total descent-check decisions by reason (OK on success)",
		},
		[]string{"reason"},
	)

	DivesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_dives_total",
			Help: "Total dives recorded by outcome",
		},
		[]string{"outcome"},
	)

	CommandsEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "controlplane_commands_enqueued_total",
			Help: "Total commands accepted by the web API",
		},
	)

	CommandsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "controlplane_commands_expired_total",
			Help: "Total commands swept from QUEUED to EXPIRED",
		},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_http_requests_total",
			Help: "Total HTTP requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "controlplane_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		StoreOpsTotal,
		HeartbeatsTotal,
		HeartbeatsRejectedTotal,
		DescentChecksTotal,
		DivesTotal,
		CommandsEnqueuedTotal,
		CommandsExpiredTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// ObserveStoreOp records the outcome of one persistence-layer call. ok is
// false both for transport errors and for a guarded transition that affected
// zero rows (lost a race) — callers that need to tell those apart log
// separately; the metric only answers "did this op take effect."
func ObserveStoreOp(op string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	StoreOpsTotal.WithLabelValues(op, outcome).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// InstrumentHandler wraps an http.Handler with request count and latency
// metrics, normalizing path parameters to keep cardinality bounded.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath collapses path segments that look like a UUID or a numeric
// id so per-resource cardinality doesn't leak into the metric label set.
// Other segments, including a mid, are kept as they are.
func normalizePath(path string) string {
	parts := splitPath(path)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if isUUID(part) || isNumeric(part) {
			out = append(out, ":id")
		} else {
			out = append(out, part)
		}
	}
	result := "/" + joinPath(out)
	if result == "/" {
		return "/"
	}
	return result
}

func splitPath(path string) []string {
	result := []string{}
	current := ""
	for _, c := range path {
		if c == '/' {
			if current != "" {
				result = append(result, current)
				current = ""
			}
		} else {
			current += string(c)
		}
	}
	if current != "" {
		result = append(result, current)
	}
	return result
}

func joinPath(parts []string) string {
	result := ""
	for i, p := range parts {
		if i > 0 {
			result += "/"
		}
		result += p
	}
	return result
}

func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	return s[8] == '-' && s[13] == '-' && s[18] == '-' && s[23] == '-'
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
