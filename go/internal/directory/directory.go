package directory

import (
	"context"
	"time"

	"github.com/mcdev12/planningroom/go/internal/events"
	"github.com/mcdev12/planningroom/go/internal/models"
)

// Directory is the room directory service the synchronization engine talks to.
// Implementations perform authorization remotely; callers only pass the requester id.
type Directory interface {
	GetRoomInfo(ctx context.Context, roomID string) (*RoomInfo, error)
	CreateRoom(ctx context.Context, req CreateRoomRequest) (*Membership, error)
	JoinRoom(ctx context.Context, req JoinRoomRequest) (*Membership, error)
	// ReconnectToRoom returns nil, nil when the room or participant no longer exists.
	ReconnectToRoom(ctx context.Context, roomID, participantID string) (*Membership, error)
	LeaveRoom(ctx context.Context, roomID, participantID string) error
	// CastVote records a vote; a nil vote retracts it.
	CastVote(ctx context.Context, participantID string, vote *string) error
	RevealVotes(ctx context.Context, roomID string) error
	ResetVotes(ctx context.Context, roomID string) error
	UpdateParticipantProfile(ctx context.Context, participantID string, update ProfileUpdate) error
	UpdateParticipantLastSeen(ctx context.Context, participantID string) error
	UpdateRoomName(ctx context.Context, roomID, name, requesterID string) error
	ToggleAutoReveal(ctx context.Context, roomID string, enabled bool, requesterID string) error
	UpdateDeckType(ctx context.Context, roomID string, deckType models.DeckType, requesterID string) error
	KickParticipant(ctx context.Context, roomID, targetID, requesterID string) error
	GetRoomWithParticipants(ctx context.Context, roomID string) (*models.Room, error)
}

// Subscription is a live change feed for one room. Close releases everything it owns.
type Subscription interface {
	Close()
}

// Subscriber opens change feeds. onChange receives full room snapshots and
// onPresence the ids currently online.
type Subscriber interface {
	SubscribeToRoom(ctx context.Context, roomID, participantID string, onChange func(*models.Room), onPresence func([]string)) Subscription
	Unsubscribe(sub Subscription)
}

// Notifier receives change notifications after a mutation is stored.
type Notifier interface {
	Notify(ctx context.Context, ev events.Envelope) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev events.Envelope) error

func (f NotifierFunc) Notify(ctx context.Context, ev events.Envelope) error { return f(ctx, ev) }

// RoomInfo is the public summary of a room shown before joining.
type RoomInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	HasPassword bool   `json:"has_password"`
	AutoReveal  bool   `json:"auto_reveal"`
}

type CreateRoomRequest struct {
	Name            string          `json:"name"`
	CreatorNickname string          `json:"creator_nickname"`
	Avatar          string          `json:"avatar"`
	DeckType        models.DeckType `json:"deck_type"`
	Password        *string         `json:"password,omitempty"`
	AutoReveal      bool            `json:"auto_reveal"`
	IsSpectator     bool            `json:"is_spectator"`
}

type JoinRoomRequest struct {
	RoomID      string  `json:"room_id"`
	Nickname    string  `json:"nickname"`
	Avatar      string  `json:"avatar"`
	Password    *string `json:"password,omitempty"`
	IsSpectator bool    `json:"is_spectator"`
}

// Membership is a room together with the caller's participant in it.
type Membership struct {
	Room        *models.Room        `json:"room"`
	Participant *models.Participant `json:"participant"`
}

// ProfileUpdate changes the fields that are set.
type ProfileUpdate struct {
	Nickname *string `json:"nickname,omitempty"`
	Avatar   *string `json:"avatar,omitempty"`
}

// RoomUpdate changes the room settings that are set.
type RoomUpdate struct {
	Name       *string
	AutoReveal *bool
	DeckType   *models.DeckType
}

// Repository is the storage the App needs.
type Repository interface {
	// CreateRoom stores the room and its creator together; room.CreatorID is set by the caller.
	CreateRoom(ctx context.Context, room *models.Room, passwordHash []byte, creator *models.Participant) error
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	GetPasswordHash(ctx context.Context, roomID string) ([]byte, error)
	UpdateRoom(ctx context.Context, roomID string, update RoomUpdate) error
	SetRevealed(ctx context.Context, roomID string, revealed bool) error
	// ResetRound clears every vote in the room and hides them again.
	ResetRound(ctx context.Context, roomID string) error

	AddParticipant(ctx context.Context, p *models.Participant) error
	GetParticipant(ctx context.Context, participantID string) (*models.Participant, error)
	UpdateParticipant(ctx context.Context, participantID string, update ProfileUpdate) error
	SetVote(ctx context.Context, participantID string, vote *string) error
	TouchParticipant(ctx context.Context, participantID string, at time.Time) error
	DeleteParticipant(ctx context.Context, participantID string) error
}
