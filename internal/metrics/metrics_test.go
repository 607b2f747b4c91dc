package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstrumentHandler(t *testing.T) {
	handler := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("OK"))
	}))

	req := httptest.NewRequest("GET", "/api/v1/devices/TR4-001", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestObserveStoreOp(t *testing.T) {
	// Recording ok and error outcomes must not panic and must hit distinct
	// label values.
	ObserveStoreOp("enqueue_command", true)
	ObserveStoreOp("enqueue_command", false)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{"root", "/", "/"},
		{"simple", "/health", "/health"},
		{
			name:     "with uuid",
			path:     "/api/v1/commands/123e4567-e89b-12d3-a456-426614174000",
			expected: "/api/v1/commands/:id",
		},
		{
			name:     "with numeric id",
			path:     "/api/v1/dives/42",
			expected: "/api/v1/dives/:id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizePath(tt.path))
		})
	}
}

func TestIsUUID(t *testing.T) {
	assert.True(t, isUUID("123e4567-e89b-12d3-a456-426614174000"))
	assert.False(t, isUUID("TR4-001"))
}

func TestIsNumeric(t *testing.T) {
	assert.True(t, isNumeric("123"))
	assert.False(t, isNumeric("TR4-001"))
}
