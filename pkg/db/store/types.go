package store

import (
	"github.com/jackc/pgx/v5/pgtype"
)

// CommandStatus is the command lifecycle state machine's domain of values.
type CommandStatus string

const (
	CommandStatusQueued    CommandStatus = "QUEUED"
	CommandStatusIssued    CommandStatus = "ISSUED"
	CommandStatusExecuting CommandStatus = "EXECUTING"
	CommandStatusCompleted CommandStatus = "COMPLETED"
	CommandStatusCanceled  CommandStatus = "CANCELED"
	CommandStatusExpired   CommandStatus = "EXPIRED"
	CommandStatusError     CommandStatus = "ERROR"
)

// Device is the latest-value rollup for one physical vehicle.
type Device struct {
	MID           string
	FirmwareTag   pgtype.Text
	LastHbSeq     pgtype.Int8
	LastContactAt pgtype.Timestamptz
	LastState     pgtype.Text
	Position      []byte
	Power         []byte
	Environment   []byte
	Network       []byte
	CreatedAt     pgtype.Timestamptz
	UpdatedAt     pgtype.Timestamptz
}

// Heartbeat is one append-only telemetry frame keyed on (mid, hb_seq).
type Heartbeat struct {
	ID         pgtype.UUID
	MID        string
	HbSeq      int64
	TsUTC      pgtype.Timestamptz
	ReceivedAt pgtype.Timestamptz
	Payload    []byte
	CreatedAt  pgtype.Timestamptz
}

// Command is one operator-issued instruction targeted at a mid.
type Command struct {
	ID               pgtype.UUID
	MID              string
	Seq              int64
	Cmd              string
	Args             []byte
	PlanHash         string
	Status           CommandStatus
	DispensedAtHbSeq pgtype.Int8
	CreatedAt        pgtype.Timestamptz
	IssuedAt         pgtype.Timestamptz
	ExecutingAt      pgtype.Timestamptz
	CompletedAt      pgtype.Timestamptz
}

// DescentCheck is one pre-dive validation record keyed on (mid, check_seq).
type DescentCheck struct {
	ID        pgtype.UUID
	MID       string
	CheckSeq  int64
	CmdSeq    int64
	PlanHash  string
	OK        bool
	Reason    pgtype.Text
	Payload   []byte
	CreatedAt pgtype.Timestamptz
}

// Dive is a summary of one completed or aborted mission attempt.
type Dive struct {
	ID        pgtype.UUID
	MID       string
	CmdSeq    int64
	OK        bool
	Summary   []byte
	StartedAt pgtype.Timestamptz
	EndedAt   pgtype.Timestamptz
	CreatedAt pgtype.Timestamptz
}

// EventLog is an append-only diagnostic trail entry.
type EventLog struct {
	ID        pgtype.UUID
	MID       pgtype.Text
	Kind      string
	Message   string
	Data      []byte
	CreatedAt pgtype.Timestamptz
}
