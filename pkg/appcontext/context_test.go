package appcontext

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/subseactl/fleetd/pkg/db/store"
	"github.com/subseactl/fleetd/pkg/logger"
)

// MockQuerier is a no-op stub of store.Querier, just enough to exercise the
// context plumbing without a live database.
type MockQuerier struct{}

var _ store.Querier = (*MockQuerier)(nil)

func (m *MockQuerier) UpsertDeviceRollup(ctx context.Context, arg store.UpsertDeviceRollupParams) (store.Device, error) {
	return store.Device{}, nil
}
func (m *MockQuerier) GetDevice(ctx context.Context, mid string) (store.Device, error) {
	return store.Device{}, nil
}
func (m *MockQuerier) ListDevices(ctx context.Context, arg store.ListDevicesParams) ([]store.Device, error) {
	return nil, nil
}
func (m *MockQuerier) InsertHeartbeatIfAbsent(ctx context.Context, arg store.InsertHeartbeatIfAbsentParams) (store.Heartbeat, bool, error) {
	return store.Heartbeat{}, true, nil
}
func (m *MockQuerier) GetLatestHeartbeat(ctx context.Context, mid string) (store.Heartbeat, error) {
	return store.Heartbeat{}, nil
}
func (m *MockQuerier) ListHeartbeats(ctx context.Context, arg store.ListHeartbeatsParams) ([]store.Heartbeat, error) {
	return nil, nil
}
func (m *MockQuerier) ListHeartbeatsForTrajectory(ctx context.Context, arg store.ListHeartbeatsForTrajectoryParams) ([]store.Heartbeat, error) {
	return nil, nil
}
func (m *MockQuerier) HasInFlightCommand(ctx context.Context, mid string) (bool, error) {
	return false, nil
}
func (m *MockQuerier) EnqueueCommand(ctx context.Context, arg store.EnqueueCommandParams) (store.Command, error) {
	return store.Command{}, nil
}
func (m *MockQuerier) GetOldestQueuedCommand(ctx context.Context, mid string) (store.Command, bool, error) {
	return store.Command{}, false, nil
}
func (m *MockQuerier) GetCommandDispensedAtHbSeq(ctx context.Context, arg store.GetCommandDispensedAtHbSeqParams) (store.Command, bool, error) {
	return store.Command{}, false, nil
}
func (m *MockQuerier) GetCommandByID(ctx context.Context, id pgtype.UUID) (store.Command, error) {
	return store.Command{}, nil
}
func (m *MockQuerier) GetCommandByMIDSeq(ctx context.Context, mid string, seq int64) (store.Command, error) {
	return store.Command{}, nil
}
func (m *MockQuerier) ListCommands(ctx context.Context, arg store.ListCommandsParams) ([]store.Command, error) {
	return nil, nil
}
func (m *MockQuerier) TransitionQueuedToIssued(ctx context.Context, arg store.TransitionQueuedToIssuedParams) (int64, error) {
	return 0, nil
}
func (m *MockQuerier) TransitionIssuedToExecuting(ctx context.Context, id pgtype.UUID) (int64, error) {
	return 0, nil
}
func (m *MockQuerier) TransitionIssuedToCanceled(ctx context.Context, id pgtype.UUID) (int64, error) {
	return 0, nil
}
func (m *MockQuerier) TransitionExecutingToCompleted(ctx context.Context, id pgtype.UUID) (int64, error) {
	return 0, nil
}
func (m *MockQuerier) TransitionExecutingToError(ctx context.Context, id pgtype.UUID) (int64, error) {
	return 0, nil
}
func (m *MockQuerier) SweepExpireQueued(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}
func (m *MockQuerier) InsertDescentCheckIfAbsent(ctx context.Context, arg store.InsertDescentCheckIfAbsentParams) (store.DescentCheck, error) {
	return store.DescentCheck{}, nil
}
func (m *MockQuerier) CreateDive(ctx context.Context, arg store.CreateDiveParams) (store.Dive, error) {
	return store.Dive{}, nil
}
func (m *MockQuerier) GetDive(ctx context.Context, id pgtype.UUID) (store.Dive, error) {
	return store.Dive{}, nil
}
func (m *MockQuerier) ListDives(ctx context.Context, arg store.ListDivesParams) ([]store.Dive, error) {
	return nil, nil
}
func (m *MockQuerier) ListDivesForMID(ctx context.Context, mid string, from, to pgtype.Timestamptz) ([]store.Dive, error) {
	return nil, nil
}
func (m *MockQuerier) CreateEventLog(ctx context.Context, arg store.CreateEventLogParams) (store.EventLog, error) {
	return store.EventLog{}, nil
}
func (m *MockQuerier) ListEvents(ctx context.Context, arg store.ListEventsParams) ([]store.EventLog, error) {
	return nil, nil
}
func (m *MockQuerier) Ping(ctx context.Context) error     { return nil }
func (m *MockQuerier) ResetAll(ctx context.Context) error { return nil }

func TestGetLogger_WithLogger(t *testing.T) {
	l := logger.New("test")
	ctx := context.WithValue(context.Background(), LoggerKey, l)

	result := GetLogger(ctx)

	assert.NotNil(t, result)
	assert.Equal(t, l, result)
}

func TestGetLogger_WithoutLogger(t *testing.T) {
	result := GetLogger(context.Background())
	assert.NotNil(t, result)
}

func TestGetLogger_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), LoggerKey, "not a logger")
	result := GetLogger(ctx)
	assert.NotNil(t, result)
}

func TestGetQuerier_WithQuerier(t *testing.T) {
	q := &MockQuerier{}
	ctx := context.WithValue(context.Background(), QuerierKey, q)

	result := GetQuerier(ctx)

	assert.NotNil(t, result)
	assert.Equal(t, q, result)
}

func TestGetQuerier_WithoutQuerier(t *testing.T) {
	result := GetQuerier(context.Background())
	assert.Nil(t, result)
}

func TestGetQuerier_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), QuerierKey, "not a querier")
	result := GetQuerier(ctx)
	assert.Nil(t, result)
}

func TestGetRequestID(t *testing.T) {
	assert.Equal(t, "", GetRequestID(context.Background()))

	ctx := WithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", GetRequestID(ctx))
}

func TestWithLogger(t *testing.T) {
	l := logger.New("test")
	ctx := WithLogger(context.Background(), l)

	assert.Equal(t, l, ctx.Value(LoggerKey))
}

func TestWithQuerier(t *testing.T) {
	q := &MockQuerier{}
	ctx := WithQuerier(context.Background(), q)

	assert.Equal(t, q, ctx.Value(QuerierKey))
}

func TestWithLogger_ChainedContext(t *testing.T) {
	l1 := logger.New("first")
	l2 := logger.New("second")
	ctx := WithLogger(context.Background(), l1)
	ctx = WithLogger(ctx, l2)

	assert.Equal(t, l2, GetLogger(ctx))
}

func TestWithQuerier_ChainedContext(t *testing.T) {
	q1 := &MockQuerier{}
	q2 := &MockQuerier{}
	ctx := WithQuerier(context.Background(), q1)
	ctx = WithQuerier(ctx, q2)

	assert.Equal(t, q2, GetQuerier(ctx))
}

func TestCombinedContext(t *testing.T) {
	l := logger.New("test")
	q := &MockQuerier{}
	ctx := WithLogger(context.Background(), l)
	ctx = WithQuerier(ctx, q)
	ctx = WithRequestID(ctx, "req-456")

	assert.Equal(t, l, GetLogger(ctx))
	assert.Equal(t, q, GetQuerier(ctx))
	assert.Equal(t, "req-456", GetRequestID(ctx))
}
