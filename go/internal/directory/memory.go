package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mcdev12/planningroom/go/internal/models"
)

type storedRoom struct {
	room         models.Room
	passwordHash []byte
	participants map[string]*models.Participant
}

// MemoryRepository keeps rooms in process memory. Used by tests and single-node deployments.
type MemoryRepository struct {
	mu           sync.RWMutex
	rooms        map[string]*storedRoom
	participants map[string]string // participant id -> room id
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates a new empty MemoryRepository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rooms:        make(map[string]*storedRoom),
		participants: make(map[string]string),
	}
}

func (m *MemoryRepository) CreateRoom(_ context.Context, room *models.Room, passwordHash []byte, creator *models.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rooms[room.ID]; exists {
		return fmt.Errorf("room %s already exists", room.ID)
	}
	stored := &storedRoom{
		room:         *room.Clone(),
		passwordHash: append([]byte(nil), passwordHash...),
		participants: map[string]*models.Participant{creator.ID: creator.Clone()},
	}
	stored.room.Participants = nil
	m.rooms[room.ID] = stored
	m.participants[creator.ID] = room.ID
	return nil
}

func (m *MemoryRepository) GetRoom(_ context.Context, roomID string) (*models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, err := m.room(roomID)
	if err != nil {
		return nil, err
	}
	room := stored.room.Clone()
	room.Participants = make([]*models.Participant, 0, len(stored.participants))
	for _, p := range stored.participants {
		room.Participants = append(room.Participants, p.Clone())
	}
	sort.Slice(room.Participants, func(i, j int) bool {
		a, b := room.Participants[i], room.Participants[j]
		if a.JoinedAt.Equal(b.JoinedAt) {
			return a.ID < b.ID
		}
		return a.JoinedAt.Before(b.JoinedAt)
	})
	return room, nil
}

func (m *MemoryRepository) GetPasswordHash(_ context.Context, roomID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, err := m.room(roomID)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), stored.passwordHash...), nil
}

func (m *MemoryRepository) UpdateRoom(_ context.Context, roomID string, update RoomUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.room(roomID)
	if err != nil {
		return err
	}
	if update.Name != nil {
		stored.room.Name = *update.Name
	}
	if update.AutoReveal != nil {
		stored.room.AutoReveal = *update.AutoReveal
	}
	if update.DeckType != nil {
		stored.room.DeckType = *update.DeckType
	}
	return nil
}

func (m *MemoryRepository) SetRevealed(_ context.Context, roomID string, revealed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.room(roomID)
	if err != nil {
		return err
	}
	stored.room.IsRevealed = revealed
	return nil
}

func (m *MemoryRepository) ResetRound(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.room(roomID)
	if err != nil {
		return err
	}
	stored.room.IsRevealed = false
	for _, p := range stored.participants {
		p.SetVote(nil)
	}
	return nil
}

func (m *MemoryRepository) AddParticipant(_ context.Context, p *models.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.room(p.RoomID)
	if err != nil {
		return err
	}
	stored.participants[p.ID] = p.Clone()
	m.participants[p.ID] = p.RoomID
	return nil
}

func (m *MemoryRepository) GetParticipant(_ context.Context, participantID string) (*models.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, err := m.participant(participantID)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

func (m *MemoryRepository) UpdateParticipant(_ context.Context, participantID string, update ProfileUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.participant(participantID)
	if err != nil {
		return err
	}
	if update.Nickname != nil {
		p.Nickname = *update.Nickname
	}
	if update.Avatar != nil {
		p.Avatar = *update.Avatar
	}
	return nil
}

func (m *MemoryRepository) SetVote(_ context.Context, participantID string, vote *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.participant(participantID)
	if err != nil {
		return err
	}
	p.SetVote(vote)
	return nil
}

func (m *MemoryRepository) TouchParticipant(_ context.Context, participantID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.participant(participantID)
	if err != nil {
		return err
	}
	p.LastSeen = at
	return nil
}

func (m *MemoryRepository) DeleteParticipant(_ context.Context, participantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomID, ok := m.participants[participantID]
	if !ok {
		return fmt.Errorf("participant %s: %w", participantID, ErrNotFound)
	}
	delete(m.participants, participantID)
	if stored, ok := m.rooms[roomID]; ok {
		delete(stored.participants, participantID)
	}
	return nil
}

// DeleteRoom removes a room and all its participants.
func (m *MemoryRepository) DeleteRoom(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.room(roomID)
	if err != nil {
		return err
	}
	for id := range stored.participants {
		delete(m.participants, id)
	}
	delete(m.rooms, roomID)
	return nil
}

func (m *MemoryRepository) room(roomID string) (*storedRoom, error) {
	stored, ok := m.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	return stored, nil
}

func (m *MemoryRepository) participant(participantID string) (*models.Participant, error) {
	roomID, ok := m.participants[participantID]
	if !ok {
		return nil, fmt.Errorf("participant %s: %w", participantID, ErrNotFound)
	}
	stored, ok := m.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	p, ok := stored.participants[participantID]
	if !ok {
		return nil, fmt.Errorf("participant %s: %w", participantID, ErrNotFound)
	}
	return p, nil
}
