package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcdev12/planningroom/go/internal/events"
	"github.com/mcdev12/planningroom/go/internal/models"
)

// App implements Directory on top of a Repository. It owns validation,
// password checks and creator-only rules, and announces every stored change.
type App struct {
	repo     Repository
	notifier Notifier
	clock    clockwork.Clock
}

var _ Directory = (*App)(nil)

// NewApp creates a new directory App. A nil notifier disables change notifications,
// which is what the Postgres setup wants since its triggers announce changes.
func NewApp(repo Repository, notifier Notifier, clock clockwork.Clock) *App {
	return &App{repo: repo, notifier: notifier, clock: clock}
}

func (a *App) GetRoomInfo(ctx context.Context, roomID string) (*RoomInfo, error) {
	if err := ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	room, err := a.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return &RoomInfo{
		ID:          room.ID,
		Name:        room.Name,
		HasPassword: room.HasPassword,
		AutoReveal:  room.AutoReveal,
	}, nil
}

func (a *App) CreateRoom(ctx context.Context, req CreateRoomRequest) (*Membership, error) {
	nickname, err := NormalizeNickname(req.CreatorNickname)
	if err != nil {
		return nil, err
	}
	if req.DeckType == "" {
		req.DeckType = models.DeckTypeFibonacci
	}
	if err := ValidateDeck(req.DeckType); err != nil {
		return nil, err
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = DefaultRoomName(nickname)
	}

	now := a.clock.Now().UTC()
	roomID := uuid.NewString()
	creator := &models.Participant{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		Nickname:    nickname,
		Avatar:      avatarOrDefault(req.Avatar),
		IsSpectator: req.IsSpectator,
		JoinedAt:    now,
		LastSeen:    now,
	}
	room := &models.Room{
		ID:          roomID,
		Name:        name,
		CreatorID:   &creator.ID,
		DeckType:    req.DeckType,
		HasPassword: hash != nil,
		AutoReveal:  req.AutoReveal,
		CreatedAt:   now,
	}

	if err := a.repo.CreateRoom(ctx, room, hash, creator); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	log.Info().
		Str("room_id", roomID).
		Str("participant_id", creator.ID).
		Str("deck_type", string(req.DeckType)).
		Msg("room created")

	return a.membership(ctx, roomID, creator.ID)
}

func (a *App) JoinRoom(ctx context.Context, req JoinRoomRequest) (*Membership, error) {
	if err := ValidateRoomID(req.RoomID); err != nil {
		return nil, err
	}
	nickname, err := NormalizeNickname(req.Nickname)
	if err != nil {
		return nil, err
	}

	hash, err := a.repo.GetPasswordHash(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	if len(hash) > 0 {
		if req.Password == nil || bcrypt.CompareHashAndPassword(hash, []byte(*req.Password)) != nil {
			return nil, ErrInvalidPassword
		}
	}

	now := a.clock.Now().UTC()
	p := &models.Participant{
		ID:          uuid.NewString(),
		RoomID:      req.RoomID,
		Nickname:    nickname,
		Avatar:      avatarOrDefault(req.Avatar),
		IsSpectator: req.IsSpectator,
		JoinedAt:    now,
		LastSeen:    now,
	}
	if err := a.repo.AddParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to add participant: %w", err)
	}

	log.Info().Str("room_id", req.RoomID).Str("participant_id", p.ID).Msg("participant joined")
	a.notify(ctx, events.ParticipantChanged(req.RoomID, p.ID, now))

	return a.membership(ctx, req.RoomID, p.ID)
}

func (a *App) ReconnectToRoom(ctx context.Context, roomID, participantID string) (*Membership, error) {
	if err := ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	p, err := a.repo.GetParticipant(ctx, participantID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.RoomID != roomID {
		return nil, nil
	}
	if err := a.repo.TouchParticipant(ctx, participantID, a.clock.Now().UTC()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to touch participant: %w", err)
	}

	m, err := a.membership(ctx, roomID, participantID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return m, err
}

func (a *App) LeaveRoom(ctx context.Context, roomID, participantID string) error {
	p, err := a.participantInRoom(ctx, roomID, participantID)
	if err != nil {
		return err
	}
	if err := a.repo.DeleteParticipant(ctx, p.ID); err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	log.Info().Str("room_id", roomID).Str("participant_id", participantID).Msg("participant left")
	a.notify(ctx, events.ParticipantChanged(roomID, participantID, a.clock.Now().UTC()))
	return nil
}

func (a *App) CastVote(ctx context.Context, participantID string, vote *string) error {
	p, err := a.repo.GetParticipant(ctx, participantID)
	if err != nil {
		return err
	}
	room, err := a.repo.GetRoom(ctx, p.RoomID)
	if err != nil {
		return err
	}
	if err := ValidateVote(room.DeckType, vote); err != nil {
		return err
	}
	if err := a.repo.SetVote(ctx, participantID, vote); err != nil {
		return fmt.Errorf("failed to cast vote: %w", err)
	}
	a.notify(ctx, events.ParticipantChanged(p.RoomID, participantID, a.clock.Now().UTC()))
	return nil
}

func (a *App) RevealVotes(ctx context.Context, roomID string) error {
	if err := ValidateRoomID(roomID); err != nil {
		return err
	}
	if err := a.repo.SetRevealed(ctx, roomID, true); err != nil {
		return fmt.Errorf("failed to reveal votes: %w", err)
	}
	log.Info().Str("room_id", roomID).Msg("votes revealed")
	a.notify(ctx, events.RoomChanged(roomID, a.clock.Now().UTC()))
	return nil
}

func (a *App) ResetVotes(ctx context.Context, roomID string) error {
	if err := ValidateRoomID(roomID); err != nil {
		return err
	}
	if err := a.repo.ResetRound(ctx, roomID); err != nil {
		return fmt.Errorf("failed to reset votes: %w", err)
	}
	log.Info().Str("room_id", roomID).Msg("votes reset")
	now := a.clock.Now().UTC()
	a.notify(ctx, events.RoomChanged(roomID, now))
	a.notify(ctx, events.ParticipantChanged(roomID, "", now))
	return nil
}

func (a *App) UpdateParticipantProfile(ctx context.Context, participantID string, update ProfileUpdate) error {
	if update.Nickname != nil {
		n, err := NormalizeNickname(*update.Nickname)
		if err != nil {
			return err
		}
		update.Nickname = &n
	}
	if update.Avatar != nil {
		av := avatarOrDefault(*update.Avatar)
		update.Avatar = &av
	}
	p, err := a.repo.GetParticipant(ctx, participantID)
	if err != nil {
		return err
	}
	if err := a.repo.UpdateParticipant(ctx, participantID, update); err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	a.notify(ctx, events.ParticipantChanged(p.RoomID, participantID, a.clock.Now().UTC()))
	return nil
}

// UpdateParticipantLastSeen is a liveness heartbeat. It does not announce a change.
func (a *App) UpdateParticipantLastSeen(ctx context.Context, participantID string) error {
	return a.repo.TouchParticipant(ctx, participantID, a.clock.Now().UTC())
}

func (a *App) UpdateRoomName(ctx context.Context, roomID, name, requesterID string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid("name", "required")
	}
	return a.updateRoom(ctx, roomID, requesterID, RoomUpdate{Name: &name})
}

func (a *App) ToggleAutoReveal(ctx context.Context, roomID string, enabled bool, requesterID string) error {
	return a.updateRoom(ctx, roomID, requesterID, RoomUpdate{AutoReveal: &enabled})
}

func (a *App) UpdateDeckType(ctx context.Context, roomID string, deckType models.DeckType, requesterID string) error {
	if err := ValidateDeck(deckType); err != nil {
		return err
	}
	return a.updateRoom(ctx, roomID, requesterID, RoomUpdate{DeckType: &deckType})
}

func (a *App) KickParticipant(ctx context.Context, roomID, targetID, requesterID string) error {
	room, err := a.requireCreator(ctx, roomID, requesterID)
	if err != nil {
		return err
	}
	if room.IsCreator(targetID) {
		return fmt.Errorf("cannot remove the room creator: %w", ErrUnauthorized)
	}
	if room.Participant(targetID) == nil {
		return fmt.Errorf("participant %s: %w", targetID, ErrNotFound)
	}
	if err := a.repo.DeleteParticipant(ctx, targetID); err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	log.Info().
		Str("room_id", roomID).
		Str("participant_id", targetID).
		Str("requester_id", requesterID).
		Msg("participant removed")
	a.notify(ctx, events.ParticipantChanged(roomID, targetID, a.clock.Now().UTC()))
	return nil
}

func (a *App) GetRoomWithParticipants(ctx context.Context, roomID string) (*models.Room, error) {
	if err := ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	return a.repo.GetRoom(ctx, roomID)
}

func (a *App) updateRoom(ctx context.Context, roomID, requesterID string, update RoomUpdate) error {
	if _, err := a.requireCreator(ctx, roomID, requesterID); err != nil {
		return err
	}
	if err := a.repo.UpdateRoom(ctx, roomID, update); err != nil {
		return fmt.Errorf("failed to update room: %w", err)
	}
	a.notify(ctx, events.RoomChanged(roomID, a.clock.Now().UTC()))
	return nil
}

func (a *App) requireCreator(ctx context.Context, roomID, requesterID string) (*models.Room, error) {
	if err := ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	room, err := a.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsCreator(requesterID) {
		return nil, fmt.Errorf("only the room creator can do this: %w", ErrUnauthorized)
	}
	return room, nil
}

func (a *App) participantInRoom(ctx context.Context, roomID, participantID string) (*models.Participant, error) {
	p, err := a.repo.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if p.RoomID != roomID {
		return nil, fmt.Errorf("participant %s in room %s: %w", participantID, roomID, ErrNotFound)
	}
	return p, nil
}

func (a *App) membership(ctx context.Context, roomID, participantID string) (*Membership, error) {
	room, err := a.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	p := room.Participant(participantID)
	if p == nil {
		return nil, fmt.Errorf("participant %s: %w", participantID, ErrNotFound)
	}
	return &Membership{Room: room, Participant: p.Clone()}, nil
}

func (a *App) notify(ctx context.Context, ev events.Envelope) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.Notify(ctx, ev); err != nil {
		log.Warn().Err(err).
			Str("room_id", ev.RoomID).
			Str("event_type", string(ev.Type)).
			Msg("failed to announce change")
	}
}

func hashPassword(password *string) ([]byte, error) {
	if password == nil || *password == "" {
		return nil, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}
