package store

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

func ToText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func ToInt4(i int32) pgtype.Int4 {
	return pgtype.Int4{Int32: i, Valid: true}
}

func ToInt8(i int64) pgtype.Int8 {
	return pgtype.Int8{Int64: i, Valid: true}
}

func ToBool(b bool) pgtype.Bool {
	return pgtype.Bool{Bool: b, Valid: true}
}

func ToUUID(s string) pgtype.UUID {
	var u pgtype.UUID
	u.Scan(s)
	return u
}

func ToTimestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

// textOrNil and tsOrNil adapt an optional filter value for use in a SQL
// "$n::type IS NULL OR ..." clause: an invalid (unset) wrapper becomes a
// nil parameter, letting the query decide to skip the filter.
func textOrNil(t pgtype.Text) interface{} {
	if !t.Valid {
		return nil
	}
	return t.String
}

func tsOrNil(t pgtype.Timestamptz) interface{} {
	if !t.Valid {
		return nil
	}
	return t.Time
}

// UUIDString renders a pgtype.UUID back to its canonical string form; the
// zero value (not Valid) renders as the empty string.
func UUIDString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	s, _ := u.Value()
	if str, ok := s.(string); ok {
		return str
	}
	return ""
}
