package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Querier is the full set of logical primitives the persistence model
// exposes: idempotent upserts, insert-if-absent, and guarded transitions,
// plus the read-side queries the web API surface needs. Components never
// issue raw SQL directly; they go through this interface so B/D/E's shared
// ownership of the Command row stays confined to the guarded-transition
// methods below.
type Querier interface {
	// Device
	UpsertDeviceRollup(ctx context.Context, arg UpsertDeviceRollupParams) (Device, error)
	GetDevice(ctx context.Context, mid string) (Device, error)
	ListDevices(ctx context.Context, arg ListDevicesParams) ([]Device, error)

	// Heartbeat
	InsertHeartbeatIfAbsent(ctx context.Context, arg InsertHeartbeatIfAbsentParams) (Heartbeat, bool, error)
	GetLatestHeartbeat(ctx context.Context, mid string) (Heartbeat, error)
	ListHeartbeats(ctx context.Context, arg ListHeartbeatsParams) ([]Heartbeat, error)
	ListHeartbeatsForTrajectory(ctx context.Context, arg ListHeartbeatsForTrajectoryParams) ([]Heartbeat, error)

	// Command
	HasInFlightCommand(ctx context.Context, mid string) (bool, error)
	EnqueueCommand(ctx context.Context, arg EnqueueCommandParams) (Command, error)
	GetOldestQueuedCommand(ctx context.Context, mid string) (Command, bool, error)
	GetCommandDispensedAtHbSeq(ctx context.Context, arg GetCommandDispensedAtHbSeqParams) (Command, bool, error)
	GetCommandByID(ctx context.Context, id pgtype.UUID) (Command, error)
	GetCommandByMIDSeq(ctx context.Context, mid string, seq int64) (Command, error)
	ListCommands(ctx context.Context, arg ListCommandsParams) ([]Command, error)
	TransitionQueuedToIssued(ctx context.Context, arg TransitionQueuedToIssuedParams) (int64, error)
	TransitionIssuedToExecuting(ctx context.Context, id pgtype.UUID) (int64, error)
	TransitionIssuedToCanceled(ctx context.Context, id pgtype.UUID) (int64, error)
	TransitionExecutingToCompleted(ctx context.Context, id pgtype.UUID) (int64, error)
	TransitionExecutingToError(ctx context.Context, id pgtype.UUID) (int64, error)
	SweepExpireQueued(ctx context.Context, olderThan time.Time) (int64, error)

	// DescentCheck
	InsertDescentCheckIfAbsent(ctx context.Context, arg InsertDescentCheckIfAbsentParams) (DescentCheck, error)

	// Dive
	CreateDive(ctx context.Context, arg CreateDiveParams) (Dive, error)
	GetDive(ctx context.Context, id pgtype.UUID) (Dive, error)
	ListDives(ctx context.Context, arg ListDivesParams) ([]Dive, error)
	ListDivesForMID(ctx context.Context, mid string, from, to pgtype.Timestamptz) ([]Dive, error)

	// EventLog
	CreateEventLog(ctx context.Context, arg CreateEventLogParams) (EventLog, error)
	ListEvents(ctx context.Context, arg ListEventsParams) ([]EventLog, error)

	// Operational
	Ping(ctx context.Context) error
	ResetAll(ctx context.Context) error
}

type UpsertDeviceRollupParams struct {
	MID           string
	FirmwareTag   pgtype.Text
	HbSeq         int64
	ReceivedAt    time.Time
	LastState     pgtype.Text
	Position      []byte
	Power         []byte
	Environment   []byte
	Network       []byte
}

type ListDevicesParams struct {
	Limit  int32
	Cursor pgtype.Text
}

type InsertHeartbeatIfAbsentParams struct {
	MID        string
	HbSeq      int64
	TsUTC      pgtype.Timestamptz
	ReceivedAt time.Time
	Payload    []byte
}

type ListHeartbeatsParams struct {
	MID             pgtype.Text
	From            pgtype.Timestamptz
	To              pgtype.Timestamptz
	Limit           int32
	CursorID        pgtype.Text
	CursorCreatedAt pgtype.Timestamptz
}

type ListHeartbeatsForTrajectoryParams struct {
	MID  string
	From pgtype.Timestamptz
	To   pgtype.Timestamptz
}

type EnqueueCommandParams struct {
	MID      string
	Cmd      string
	Args     []byte
	PlanHash string
}

type GetCommandDispensedAtHbSeqParams struct {
	MID   string
	HbSeq int64
}

type ListCommandsParams struct {
	MID             pgtype.Text
	Status          pgtype.Text
	Limit           int32
	CursorID        pgtype.Text
	CursorCreatedAt pgtype.Timestamptz
}

type TransitionQueuedToIssuedParams struct {
	ID    pgtype.UUID
	HbSeq int64
}

type InsertDescentCheckIfAbsentParams struct {
	MID      string
	CheckSeq int64
	CmdSeq   int64
	PlanHash string
	OK       bool
	Reason   pgtype.Text
	Payload  []byte
}

type CreateDiveParams struct {
	MID       string
	CmdSeq    int64
	OK        bool
	Summary   []byte
	StartedAt pgtype.Timestamptz
	EndedAt   pgtype.Timestamptz
}

type ListDivesParams struct {
	MID             pgtype.Text
	From            pgtype.Timestamptz
	To              pgtype.Timestamptz
	Limit           int32
	CursorID        pgtype.Text
	CursorCreatedAt pgtype.Timestamptz
}

type CreateEventLogParams struct {
	MID     pgtype.Text
	Kind    string
	Message string
	Data    []byte
}

type ListEventsParams struct {
	MID             pgtype.Text
	Limit           int32
	CursorID        pgtype.Text
	CursorCreatedAt pgtype.Timestamptz
}
