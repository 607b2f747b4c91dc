package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/subseactl/fleetd/internal/ascent"
	"github.com/subseactl/fleetd/internal/descent"
	"github.com/subseactl/fleetd/internal/ingest"
	"github.com/subseactl/fleetd/pkg/db/store"
	"github.com/subseactl/fleetd/pkg/logger"
)

type heartbeatStub struct {
	store.Querier
}

func (s *heartbeatStub) InsertHeartbeatIfAbsent(ctx context.Context, arg store.InsertHeartbeatIfAbsentParams) (store.Heartbeat, bool, error) {
	return store.Heartbeat{ID: pgtype.UUID{Valid: true}, MID: arg.MID, HbSeq: arg.HbSeq}, true, nil
}

func (s *heartbeatStub) GetDevice(ctx context.Context, mid string) (store.Device, error) {
	return store.Device{}, store.ErrNoRows
}

func (s *heartbeatStub) UpsertDeviceRollup(ctx context.Context, arg store.UpsertDeviceRollupParams) (store.Device, error) {
	return store.Device{MID: arg.MID}, nil
}

func (s *heartbeatStub) GetOldestQueuedCommand(ctx context.Context, mid string) (store.Command, bool, error) {
	return store.Command{}, false, nil
}

func (s *heartbeatStub) CreateEventLog(ctx context.Context, arg store.CreateEventLogParams) (store.EventLog, error) {
	return store.EventLog{}, nil
}

// txStub satisfies ingest.Transactor without a real database: RunTx invokes
// fn directly against the embedded Querier.
type txStub struct {
	store.Querier
}

func (s *txStub) RunTx(ctx context.Context, db store.Beginner, fn func(tx store.Querier) error) error {
	return fn(s.Querier)
}

func TestHeartbeat_NoCommandPending(t *testing.T) {
	q := &heartbeatStub{}
	l := logger.New("test")
	ingestSvc := ingest.New(&txStub{Querier: q}, nil, l)
	descentSvc := descent.New(q, 0)
	ascentSvc := ascent.New(q)

	router := chi.NewRouter()
	NewVehicleHandler(ingestSvc, descentSvc, ascentSvc).Register(router)

	body := `{"mid":"TR4-001","hb_seq":1,"ts_utc":"2026-07-31T00:00:00Z","state":"SURFACE_WAIT"}`
	req := httptest.NewRequest(http.MethodPost, "/hb", bytes.NewBufferString(body))
	req = withDeps(req, q)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ack":true,"command":null}`, rec.Body.String())
}

func TestHeartbeat_InvalidPayload(t *testing.T) {
	q := &heartbeatStub{}
	l := logger.New("test")
	router := chi.NewRouter()
	NewVehicleHandler(ingest.New(&txStub{Querier: q}, nil, l), descent.New(q, 0), ascent.New(q)).Register(router)

	req := httptest.NewRequest(http.MethodPost, "/hb", bytes.NewBufferString(`{"mid":""}`))
	req = withDeps(req, q)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
