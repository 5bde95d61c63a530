package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/planningroom/go/internal/directory"
	"github.com/mcdev12/planningroom/go/internal/models"
	"github.com/mcdev12/planningroom/go/internal/sqlutil"
)

// Repository stores rooms and participants in Postgres.
type Repository struct {
	pool    *pgxpool.Pool
	queries *Queries
}

var _ directory.Repository = (*Repository)(nil)

// NewRepository creates a new Postgres repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, queries: New(pool)}
}

func (r *Repository) CreateRoom(ctx context.Context, room *models.Room, passwordHash []byte, creator *models.Participant) error {
	return sqlutil.Run(ctx, r.pool, newTxQueries, func(q *Queries) error {
		if err := q.InsertRoom(ctx, room, passwordHash); err != nil {
			return fmt.Errorf("insert room: %w", err)
		}
		if err := q.InsertParticipant(ctx, creator); err != nil {
			return fmt.Errorf("insert creator: %w", err)
		}
		return nil
	})
}

func (r *Repository) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := r.queries.GetRoom(ctx, roomID)
	if err != nil {
		return nil, notFound(err, "room", roomID)
	}
	room.Participants, err = r.queries.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return room, nil
}

func (r *Repository) GetPasswordHash(ctx context.Context, roomID string) ([]byte, error) {
	hash, err := r.queries.GetPasswordHash(ctx, roomID)
	if err != nil {
		return nil, notFound(err, "room", roomID)
	}
	return hash, nil
}

func (r *Repository) UpdateRoom(ctx context.Context, roomID string, update directory.RoomUpdate) error {
	var deck *string
	if update.DeckType != nil {
		d := string(*update.DeckType)
		deck = &d
	}
	n, err := r.queries.UpdateRoom(ctx, roomID, update.Name, update.AutoReveal, deck)
	return affected(n, err, "room", roomID)
}

func (r *Repository) SetRevealed(ctx context.Context, roomID string, revealed bool) error {
	n, err := r.queries.SetRevealed(ctx, roomID, revealed)
	return affected(n, err, "room", roomID)
}

func (r *Repository) ResetRound(ctx context.Context, roomID string) error {
	return sqlutil.Run(ctx, r.pool, newTxQueries, func(q *Queries) error {
		n, err := q.SetRevealed(ctx, roomID, false)
		if err := affected(n, err, "room", roomID); err != nil {
			return err
		}
		if err := q.ClearVotes(ctx, roomID); err != nil {
			return fmt.Errorf("clear votes: %w", err)
		}
		return nil
	})
}

func (r *Repository) AddParticipant(ctx context.Context, p *models.Participant) error {
	if err := r.queries.InsertParticipant(ctx, p); err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (r *Repository) GetParticipant(ctx context.Context, participantID string) (*models.Participant, error) {
	p, err := r.queries.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, notFound(err, "participant", participantID)
	}
	return p, nil
}

func (r *Repository) UpdateParticipant(ctx context.Context, participantID string, update directory.ProfileUpdate) error {
	n, err := r.queries.UpdateParticipant(ctx, participantID, update.Nickname, update.Avatar)
	return affected(n, err, "participant", participantID)
}

func (r *Repository) SetVote(ctx context.Context, participantID string, vote *string) error {
	n, err := r.queries.SetVote(ctx, participantID, vote)
	return affected(n, err, "participant", participantID)
}

func (r *Repository) TouchParticipant(ctx context.Context, participantID string, at time.Time) error {
	n, err := r.queries.TouchParticipant(ctx, participantID, at)
	return affected(n, err, "participant", participantID)
}

func (r *Repository) DeleteParticipant(ctx context.Context, participantID string) error {
	n, err := r.queries.DeleteParticipant(ctx, participantID)
	return affected(n, err, "participant", participantID)
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, directory.ErrNotFound)
	}
	return fmt.Errorf("query %s %s: %w", kind, id, err)
}

func affected(n int64, err error, kind, id string) error {
	if err != nil {
		return fmt.Errorf("update %s %s: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, directory.ErrNotFound)
	}
	return nil
}
