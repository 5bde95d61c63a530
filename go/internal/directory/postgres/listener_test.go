package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/planningroom/go/internal/events"
)

func TestDecodeNotification(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	ev, err := decodeNotification(`{"type":"participant_changed","room_id":"r1","participant_id":"p1"}`, at)
	require.NoError(t, err)
	assert.Equal(t, events.Envelope{
		Type:          events.KindParticipantChanged,
		RoomID:        "r1",
		ParticipantID: "p1",
		Timestamp:     at,
	}, ev)

	ev, err = decodeNotification(`{"type":"room_changed","room_id":"r1"}`, at)
	require.NoError(t, err)
	assert.Equal(t, events.KindRoomChanged, ev.Type)
}

func TestDecodeNotification_Rejects(t *testing.T) {
	for _, payload := range []string{
		`not json`,
		`{"type":"room_changed"}`,
		`{"type":"presence_sync","room_id":"r1"}`,
	} {
		_, err := decodeNotification(payload, time.Now())
		assert.Error(t, err, payload)
	}
}
