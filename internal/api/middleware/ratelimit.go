package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	cperrors "github.com/subseactl/fleetd/pkg/errors"
)

// RateLimiter is a token bucket rate limiter keyed on an arbitrary string.
// The vehicle-facing tree keys it on mid rather than client IP: every
// vehicle rides a cellular NAT, so IP-keying would bucket an entire fleet
// behind one shared limit.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	rate     int
	interval time.Duration
	burst    int
	cleanup  time.Duration
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewRateLimiter creates a rate limiter allowing rate tokens per interval,
// up to burst tokens banked at once.
func NewRateLimiter(rate int, interval time.Duration, burst int) *RateLimiter {
	rl := &RateLimiter{
		buckets:  make(map[string]*bucket),
		rate:     rate,
		interval: interval,
		burst:    burst,
		cleanup:  10 * time.Minute,
	}

	go rl.cleanupLoop()

	return rl
}

// DefaultRateLimiter allows 4 requests per 15s interval per mid, burst of 8
// — a vehicle's nominal heartbeat cadence is 15s, so this tolerates a
// handful of retries without opening the gate to a runaway firmware loop.
func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(4, 15*time.Second, 8)
}

// Allow reports whether a request keyed by key should proceed.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, exists := rl.buckets[key]

	if !exists {
		rl.buckets[key] = &bucket{
			tokens:     rl.burst - 1,
			lastRefill: now,
		}
		return true
	}

	elapsed := now.Sub(b.lastRefill)
	tokensToAdd := int(elapsed/rl.interval) * rl.rate
	if tokensToAdd > 0 {
		b.tokens = min(b.tokens+tokensToAdd, rl.burst)
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}

	return false
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		cutoff := time.Now().Add(-rl.cleanup)
		for key, b := range rl.buckets {
			if b.lastRefill.Before(cutoff) {
				delete(rl.buckets, key)
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimitByKey rate limits requests using keyFunc to derive the bucket
// key from the request, responding with the standard error envelope
// instead of a bare http.Error so vehicle clients get the same
// {"error":{"kind":...}} shape on every path.
func RateLimitByKey(limiter *RateLimiter, keyFunc func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" || !limiter.Allow(key) {
				w.Header().Set("Retry-After", "15")
				cperrors.Response(w, r, rateLimitError)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

var rateLimitError = &cperrors.ControlPlaneError{
	Kind:       "RATE_LIMITED",
	Message:    "too many requests for this device",
	HTTPStatus: http.StatusTooManyRequests,
}

// MIDFromJSONBody peeks the "mid" field out of a vehicle request body
// without consuming it, so the rate limiter can key on the device before
// the real handler parses the payload. The vehicle-facing tree carries mid
// in the body rather than the URL, unlike the web tree's {mid} path param.
func MIDFromJSONBody(r *http.Request) string {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return ""
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var peek struct {
		MID string `json:"mid"`
	}
	if err := json.Unmarshal(body, &peek); err != nil {
		return ""
	}
	return peek.MID
}
