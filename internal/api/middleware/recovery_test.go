package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/subseactl/fleetd/pkg/appcontext"
	"github.com/subseactl/fleetd/pkg/db/store"
	"github.com/subseactl/fleetd/pkg/logger"
)

// stubQuerier embeds store.Querier to satisfy the interface. Unimplemented
// methods panic if called; only CreateEventLog is exercised here.
type stubQuerier struct {
	store.Querier
	CreateEventLogFunc func(ctx context.Context, arg store.CreateEventLogParams) (store.EventLog, error)
}

func (s *stubQuerier) CreateEventLog(ctx context.Context, arg store.CreateEventLogParams) (store.EventLog, error) {
	if s.CreateEventLogFunc != nil {
		return s.CreateEventLogFunc(ctx, arg)
	}
	return store.EventLog{}, nil
}

func TestRecovery_RecoversAndPersistsEvent(t *testing.T) {
	l := logger.New("test")
	captured := false
	db := &stubQuerier{
		CreateEventLogFunc: func(ctx context.Context, arg store.CreateEventLogParams) (store.EventLog, error) {
			captured = true
			if arg.Message != "test panic" {
				t.Errorf("expected message 'test panic', got %q", arg.Message)
			}
			if arg.Kind != "internal_error" {
				t.Errorf("expected kind 'internal_error', got %q", arg.Kind)
			}
			return store.EventLog{}, nil
		},
	}

	handler := Recovery()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("test panic"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := appcontext.WithLogger(req.Context(), l)
	ctx = appcontext.WithQuerier(ctx, db)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("middleware did not recover panic: %v", r)
			}
		}()
		handler.ServeHTTP(rec, req)
	}()

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
	if !captured {
		t.Error("expected panic to be persisted as an event log")
	}
}

func TestRecovery_PassesThroughWithoutPanic(t *testing.T) {
	handler := Recovery()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}
