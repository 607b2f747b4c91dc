package command

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/subseactl/fleetd/pkg/db/store"
	cperrors "github.com/subseactl/fleetd/pkg/errors"
	"github.com/subseactl/fleetd/pkg/logger"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) UpsertDeviceRollup(ctx context.Context, arg store.UpsertDeviceRollupParams) (store.Device, error) {
	return store.Device{}, nil
}
func (m *mockStore) GetDevice(ctx context.Context, mid string) (store.Device, error) {
	return store.Device{}, store.ErrNoRows
}
func (m *mockStore) ListDevices(ctx context.Context, arg store.ListDevicesParams) ([]store.Device, error) {
	return nil, nil
}
func (m *mockStore) InsertHeartbeatIfAbsent(ctx context.Context, arg store.InsertHeartbeatIfAbsentParams) (store.Heartbeat, bool, error) {
	return store.Heartbeat{}, true, nil
}
func (m *mockStore) GetLatestHeartbeat(ctx context.Context, mid string) (store.Heartbeat, error) {
	return store.Heartbeat{}, nil
}
func (m *mockStore) ListHeartbeats(ctx context.Context, arg store.ListHeartbeatsParams) ([]store.Heartbeat, error) {
	return nil, nil
}
func (m *mockStore) ListHeartbeatsForTrajectory(ctx context.Context, arg store.ListHeartbeatsForTrajectoryParams) ([]store.Heartbeat, error) {
	return nil, nil
}
func (m *mockStore) HasInFlightCommand(ctx context.Context, mid string) (bool, error) {
	return false, nil
}
func (m *mockStore) EnqueueCommand(ctx context.Context, arg store.EnqueueCommandParams) (store.Command, error) {
	args := m.Called(ctx, arg)
	if args.Get(0) == nil {
		return store.Command{}, args.Error(1)
	}
	return args.Get(0).(store.Command), args.Error(1)
}
func (m *mockStore) GetOldestQueuedCommand(ctx context.Context, mid string) (store.Command, bool, error) {
	return store.Command{}, false, nil
}
func (m *mockStore) GetCommandDispensedAtHbSeq(ctx context.Context, arg store.GetCommandDispensedAtHbSeqParams) (store.Command, bool, error) {
	return store.Command{}, false, nil
}
func (m *mockStore) GetCommandByID(ctx context.Context, id pgtype.UUID) (store.Command, error) {
	return store.Command{}, nil
}
func (m *mockStore) GetCommandByMIDSeq(ctx context.Context, mid string, seq int64) (store.Command, error) {
	return store.Command{}, nil
}
func (m *mockStore) ListCommands(ctx context.Context, arg store.ListCommandsParams) ([]store.Command, error) {
	return nil, nil
}
func (m *mockStore) TransitionQueuedToIssued(ctx context.Context, arg store.TransitionQueuedToIssuedParams) (int64, error) {
	return 0, nil
}
func (m *mockStore) TransitionIssuedToExecuting(ctx context.Context, id pgtype.UUID) (int64, error) {
	return 0, nil
}
func (m *mockStore) TransitionIssuedToCanceled(ctx context.Context, id pgtype.UUID) (int64, error) {
	return 0, nil
}
func (m *mockStore) TransitionExecutingToCompleted(ctx context.Context, id pgtype.UUID) (int64, error) {
	return 0, nil
}
func (m *mockStore) TransitionExecutingToError(ctx context.Context, id pgtype.UUID) (int64, error) {
	return 0, nil
}
func (m *mockStore) SweepExpireQueued(ctx context.Context, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockStore) InsertDescentCheckIfAbsent(ctx context.Context, arg store.InsertDescentCheckIfAbsentParams) (store.DescentCheck, error) {
	return store.DescentCheck{}, nil
}
func (m *mockStore) CreateDive(ctx context.Context, arg store.CreateDiveParams) (store.Dive, error) {
	return store.Dive{}, nil
}
func (m *mockStore) GetDive(ctx context.Context, id pgtype.UUID) (store.Dive, error) {
	return store.Dive{}, nil
}
func (m *mockStore) ListDives(ctx context.Context, arg store.ListDivesParams) ([]store.Dive, error) {
	return nil, nil
}
func (m *mockStore) ListDivesForMID(ctx context.Context, mid string, from, to pgtype.Timestamptz) ([]store.Dive, error) {
	return nil, nil
}
func (m *mockStore) CreateEventLog(ctx context.Context, arg store.CreateEventLogParams) (store.EventLog, error) {
	return store.EventLog{}, nil
}
func (m *mockStore) ListEvents(ctx context.Context, arg store.ListEventsParams) ([]store.EventLog, error) {
	return nil, nil
}
func (m *mockStore) Ping(ctx context.Context) error     { return nil }
func (m *mockStore) ResetAll(ctx context.Context) error { return nil }

func TestEnqueue_ValidRunDive(t *testing.T) {
	ms := new(mockStore)
	svc := New(ms)

	args := json.RawMessage(`{"target_depth_m":10,"hold_at_depth_s":30,"cycles":2}`)
	want := store.Command{MID: "TR4-001", Cmd: "RUN_DIVE", Args: args}

	ms.On("EnqueueCommand", mock.Anything, mock.MatchedBy(func(p store.EnqueueCommandParams) bool {
		return p.MID == "TR4-001" && p.Cmd == "RUN_DIVE" && p.PlanHash != ""
	})).Return(want, nil)

	got, err := svc.Enqueue(context.Background(), EnqueueRequest{MID: "TR4-001", Cmd: "RUN_DIVE", Args: args})

	assert.NoError(t, err)
	assert.Equal(t, want, got)
	ms.AssertExpectations(t)
}

func TestEnqueue_RejectsInvalidRunDiveArgs(t *testing.T) {
	ms := new(mockStore)
	svc := New(ms)

	cases := []string{
		`{"target_depth_m":0,"hold_at_depth_s":30,"cycles":1}`,
		`{"target_depth_m":10,"hold_at_depth_s":-1,"cycles":1}`,
		`{"target_depth_m":10,"hold_at_depth_s":30,"cycles":0}`,
	}
	for _, raw := range cases {
		_, err := svc.Enqueue(context.Background(), EnqueueRequest{MID: "TR4-001", Cmd: "RUN_DIVE", Args: json.RawMessage(raw)})
		assert.Equal(t, cperrors.ErrInvalidPayload, err)
	}
	ms.AssertNotCalled(t, "EnqueueCommand")
}

func TestEnqueue_ConflictMapsToErrConflict(t *testing.T) {
	ms := new(mockStore)
	svc := New(ms)
	args := json.RawMessage(`{"target_depth_m":10,"hold_at_depth_s":30,"cycles":1}`)

	ms.On("EnqueueCommand", mock.Anything, mock.Anything).Return(store.Command{}, store.ErrInFlightConflict)

	_, err := svc.Enqueue(context.Background(), EnqueueRequest{MID: "TR4-001", Cmd: "RUN_DIVE", Args: args})

	assert.Equal(t, cperrors.ErrConflict, err)
}

func TestEnqueue_SameSemanticArgsProduceSamePlanHash(t *testing.T) {
	ms := new(mockStore)
	svc := New(ms)

	a := json.RawMessage(`{"target_depth_m":10,"hold_at_depth_s":30,"cycles":1}`)
	b := json.RawMessage(`{"cycles":1,"hold_at_depth_s":30,"target_depth_m":10}`)

	var hashA, hashB string
	ms.On("EnqueueCommand", mock.Anything, mock.MatchedBy(func(p store.EnqueueCommandParams) bool {
		hashA = p.PlanHash
		return true
	})).Return(store.Command{}, nil).Once()

	_, err := svc.Enqueue(context.Background(), EnqueueRequest{MID: "TR4-001", Cmd: "RUN_DIVE", Args: a})
	assert.NoError(t, err)

	ms.On("EnqueueCommand", mock.Anything, mock.MatchedBy(func(p store.EnqueueCommandParams) bool {
		hashB = p.PlanHash
		return true
	})).Return(store.Command{}, nil).Once()

	_, err = svc.Enqueue(context.Background(), EnqueueRequest{MID: "TR4-001", Cmd: "RUN_DIVE", Args: b})
	assert.NoError(t, err)

	assert.Equal(t, hashA, hashB)
}

func TestSweeper_SweepExpiresStaleQueued(t *testing.T) {
	ms := new(mockStore)
	l := logger.New("test")
	ms.On("SweepExpireQueued", mock.Anything, mock.Anything).Return(int64(3), nil)

	s := NewSweeper(ms, l, time.Hour, 10*time.Millisecond)
	s.sweep(context.Background())

	ms.AssertExpectations(t)
}

func TestSweeper_RunStopsOnContextCancel(t *testing.T) {
	ms := new(mockStore)
	l := logger.New("test")
	ms.On("SweepExpireQueued", mock.Anything, mock.Anything).Return(int64(0), nil)

	s := NewSweeper(ms, l, time.Hour, 5*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	s.Run(ctx)
}
