package sqlutil

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextRoundTrip(t *testing.T) {
	assert.False(t, ToText(nil).Valid)
	assert.Nil(t, FromText(pgtype.Text{}))

	s := "5"
	got := FromText(ToText(&s))
	require.NotNil(t, got)
	assert.Equal(t, "5", *got)
}

func TestToBool(t *testing.T) {
	assert.False(t, ToBool(nil).Valid)
	b := true
	assert.Equal(t, pgtype.Bool{Bool: true, Valid: true}, ToBool(&b))
}

func TestTimestamptz(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, now, FromTimestamptz(ToTimestamptz(now)))
	assert.True(t, FromTimestamptz(pgtype.Timestamptz{}).IsZero())
}
