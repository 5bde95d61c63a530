package session

import (
	"context"
	"errors"
	"time"
)

// MaxAge is how long a stored session stays valid after it was joined.
const MaxAge = 24 * time.Hour

// ErrEmptySession is returned when saving a session without room or participant.
var ErrEmptySession = errors.New("session: room id and participant id are required")

// Session ties this client to one participant identity in one room.
type Session struct {
	RoomID        string `json:"room_id" yaml:"room_id"`
	ParticipantID string `json:"participant_id" yaml:"participant_id"`
	Nickname      string `json:"nickname" yaml:"nickname"`
	JoinedAt      int64  `json:"joined_at" yaml:"joined_at"` // epoch ms
}

// New builds a session joined at now.
func New(roomID, participantID, nickname string, now time.Time) Session {
	return Session{
		RoomID:        roomID,
		ParticipantID: participantID,
		Nickname:      nickname,
		JoinedAt:      now.UnixMilli(),
	}
}

// Expired reports whether the session is older than MaxAge at now.
func (s Session) Expired(now time.Time) bool {
	return now.Sub(time.UnixMilli(s.JoinedAt)) > MaxAge
}

func (s Session) validate() error {
	if s.RoomID == "" || s.ParticipantID == "" {
		return ErrEmptySession
	}
	return nil
}

// Profile is the last identity used, kept without expiry to prefill the identity prompt.
type Profile struct {
	Nickname string `json:"nickname" yaml:"nickname"`
	Avatar   string `json:"avatar" yaml:"avatar"`
}

// Store persists the current session and the last used profile.
// Load returns nil without error when there is no session or it has expired;
// expired sessions are removed as a side effect.
type Store interface {
	Save(ctx context.Context, s Session) error
	Load(ctx context.Context) (*Session, error)
	Clear(ctx context.Context) error
	SaveProfile(ctx context.Context, p Profile) error
	LoadProfile(ctx context.Context) (*Profile, error)
}
