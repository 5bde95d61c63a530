package events

import (
	"fmt"
	"time"
)

// Kind identifies what an Envelope carries.
type Kind string

const (
	// KindRoomChanged and KindParticipantChanged announce that stored rows changed.
	// Receivers re-fetch the whole room instead of applying a diff.
	KindRoomChanged        Kind = "room_changed"
	KindParticipantChanged Kind = "participant_changed"

	KindPresenceSync  Kind = "presence_sync"
	KindPresenceJoin  Kind = "presence_join"
	KindPresenceLeave Kind = "presence_leave"

	// KindTrack is sent by a client to announce its own participant id on a channel.
	KindTrack Kind = "track"
)

// Envelope is the message shape shared by the bus, the gateway and its clients.
type Envelope struct {
	Type           Kind      `json:"type"`
	RoomID         string    `json:"room_id"`
	ParticipantID  string    `json:"participant_id,omitempty"`
	ParticipantIDs []string  `json:"participant_ids,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// IsChange reports whether the envelope announces a stored row change.
func (e Envelope) IsChange() bool {
	return e.Type == KindRoomChanged || e.Type == KindParticipantChanged
}

// IsPresence reports whether the envelope is a presence event.
func (e Envelope) IsPresence() bool {
	switch e.Type {
	case KindPresenceSync, KindPresenceJoin, KindPresenceLeave:
		return true
	}
	return false
}

// RoomChanged builds a room change notification.
func RoomChanged(roomID string, at time.Time) Envelope {
	return Envelope{Type: KindRoomChanged, RoomID: roomID, Timestamp: at}
}

// ParticipantChanged builds a participant change notification.
func ParticipantChanged(roomID, participantID string, at time.Time) Envelope {
	return Envelope{Type: KindParticipantChanged, RoomID: roomID, ParticipantID: participantID, Timestamp: at}
}

// Subject returns the bus subject for an envelope: <prefix>.<room_id>.<kind>.
func Subject(prefix string, e Envelope) string {
	return fmt.Sprintf("%s.%s.%s", prefix, e.RoomID, e.Type)
}
