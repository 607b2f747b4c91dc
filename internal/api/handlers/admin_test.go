package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/subseactl/fleetd/pkg/appcontext"
	"github.com/subseactl/fleetd/pkg/db/store"
	"github.com/subseactl/fleetd/pkg/logger"
)

type stubQuerier struct {
	store.Querier
	pingErr   error
	resetErr  error
	resetCall bool
}

func (s *stubQuerier) Ping(ctx context.Context) error {
	return s.pingErr
}

func (s *stubQuerier) ResetAll(ctx context.Context) error {
	s.resetCall = true
	return s.resetErr
}

func withDeps(r *http.Request, q store.Querier) *http.Request {
	ctx := appcontext.WithQuerier(r.Context(), q)
	ctx = appcontext.WithLogger(ctx, logger.New("test"))
	return r.WithContext(ctx)
}

func TestHealth_OK(t *testing.T) {
	router := chi.NewRouter()
	NewAdminHandler(false).Register(router)

	req := withDeps(httptest.NewRequest(http.MethodGet, "/health", nil), &stubQuerier{})
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth_DatabaseDown(t *testing.T) {
	router := chi.NewRouter()
	NewAdminHandler(false).Register(router)

	req := withDeps(httptest.NewRequest(http.MethodGet, "/health", nil), &stubQuerier{pingErr: assertErr})
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestResetDB_GatedWhenDisabled(t *testing.T) {
	router := chi.NewRouter()
	NewAdminHandler(false).Register(router)

	q := &stubQuerier{}
	req := withDeps(httptest.NewRequest(http.MethodPost, "/admin/reset-db", nil), q)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, q.resetCall)
}

func TestResetDB_RunsWhenEnabled(t *testing.T) {
	router := chi.NewRouter()
	NewAdminHandler(true).Register(router)

	q := &stubQuerier{}
	req := withDeps(httptest.NewRequest(http.MethodPost, "/admin/reset-db", nil), q)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, q.resetCall)
}

var assertErr = &stubError{}

type stubError struct{}

func (e *stubError) Error() string { return "stub error" }
