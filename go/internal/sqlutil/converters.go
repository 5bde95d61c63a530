package sqlutil

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Helper functions for converting between Go pointers and pgtype nullable values

// ToText converts a Go string pointer to pgtype.Text
func ToText(val *string) pgtype.Text {
	if val == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *val, Valid: true}
}

// FromText converts pgtype.Text to a Go string pointer
func FromText(val pgtype.Text) *string {
	if !val.Valid {
		return nil
	}
	s := val.String
	return &s
}

// ToBool converts a Go bool pointer to pgtype.Bool
func ToBool(val *bool) pgtype.Bool {
	if val == nil {
		return pgtype.Bool{Valid: false}
	}
	return pgtype.Bool{Bool: *val, Valid: true}
}

// ToTimestamptz converts a Go time to pgtype.Timestamptz
func ToTimestamptz(val time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: val, Valid: true}
}

// FromTimestamptz converts pgtype.Timestamptz to a Go time, zero when NULL
func FromTimestamptz(val pgtype.Timestamptz) time.Time {
	if !val.Valid {
		return time.Time{}
	}
	return val.Time
}
