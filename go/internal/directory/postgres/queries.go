package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/mcdev12/planningroom/go/internal/models"
	"github.com/mcdev12/planningroom/go/internal/sqlutil"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries holds the SQL for rooms and participants, bound to a pool or a transaction.
type Queries struct {
	db DBTX
}

// New binds queries to db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func newTxQueries(tx pgx.Tx) *Queries { return New(tx) }

const insertRoom = `
INSERT INTO rooms (id, name, is_revealed, creator_id, deck_type, password_hash, auto_reveal, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`

func (q *Queries) InsertRoom(ctx context.Context, r *models.Room, passwordHash []byte) error {
	_, err := q.db.Exec(ctx, insertRoom,
		r.ID, r.Name, r.IsRevealed, sqlutil.ToText(r.CreatorID), string(r.DeckType),
		passwordHash, r.AutoReveal, sqlutil.ToTimestamptz(r.CreatedAt))
	return err
}

const selectRoom = `
SELECT id, name, is_revealed, creator_id, deck_type, password_hash IS NOT NULL, auto_reveal, created_at
FROM rooms WHERE id = $1`

func (q *Queries) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var (
		r         models.Room
		creatorID pgtype.Text
		deck      string
		createdAt pgtype.Timestamptz
	)
	err := q.db.QueryRow(ctx, selectRoom, roomID).Scan(
		&r.ID, &r.Name, &r.IsRevealed, &creatorID, &deck, &r.HasPassword, &r.AutoReveal, &createdAt)
	if err != nil {
		return nil, err
	}
	r.CreatorID = sqlutil.FromText(creatorID)
	r.DeckType = models.DeckType(deck)
	r.CreatedAt = sqlutil.FromTimestamptz(createdAt)
	return &r, nil
}

const selectPasswordHash = `SELECT password_hash FROM rooms WHERE id = $1`

func (q *Queries) GetPasswordHash(ctx context.Context, roomID string) ([]byte, error) {
	var hash []byte
	if err := q.db.QueryRow(ctx, selectPasswordHash, roomID).Scan(&hash); err != nil {
		return nil, err
	}
	return hash, nil
}

const updateRoom = `
UPDATE rooms SET
    name = COALESCE($2, name),
    auto_reveal = COALESCE($3, auto_reveal),
    deck_type = COALESCE($4, deck_type),
    updated_at = now()
WHERE id = $1`

func (q *Queries) UpdateRoom(ctx context.Context, roomID string, name *string, autoReveal *bool, deck *string) (int64, error) {
	tag, err := q.db.Exec(ctx, updateRoom, roomID, sqlutil.ToText(name), sqlutil.ToBool(autoReveal), sqlutil.ToText(deck))
	return tag.RowsAffected(), err
}

const setRevealed = `UPDATE rooms SET is_revealed = $2, updated_at = now() WHERE id = $1`

func (q *Queries) SetRevealed(ctx context.Context, roomID string, revealed bool) (int64, error) {
	tag, err := q.db.Exec(ctx, setRevealed, roomID, revealed)
	return tag.RowsAffected(), err
}

const clearVotes = `
UPDATE participants SET vote = NULL, has_voted = FALSE, updated_at = now()
WHERE room_id = $1 AND has_voted`

func (q *Queries) ClearVotes(ctx context.Context, roomID string) error {
	_, err := q.db.Exec(ctx, clearVotes, roomID)
	return err
}

const insertParticipant = `
INSERT INTO participants (id, room_id, nickname, avatar, vote, has_voted, is_spectator, joined_at, last_seen, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $8)`

func (q *Queries) InsertParticipant(ctx context.Context, p *models.Participant) error {
	_, err := q.db.Exec(ctx, insertParticipant,
		p.ID, p.RoomID, p.Nickname, p.Avatar, sqlutil.ToText(p.Vote), p.HasVoted, p.IsSpectator,
		sqlutil.ToTimestamptz(p.JoinedAt), sqlutil.ToTimestamptz(p.LastSeen))
	return err
}

const participantColumns = `id, room_id, nickname, avatar, vote, has_voted, is_spectator, joined_at, last_seen`

const selectParticipant = `SELECT ` + participantColumns + ` FROM participants WHERE id = $1`

func (q *Queries) GetParticipant(ctx context.Context, participantID string) (*models.Participant, error) {
	return scanParticipant(q.db.QueryRow(ctx, selectParticipant, participantID))
}

const selectRoomParticipants = `SELECT ` + participantColumns + ` FROM participants WHERE room_id = $1 ORDER BY joined_at, id`

func (q *Queries) ListParticipants(ctx context.Context, roomID string) ([]*models.Participant, error) {
	rows, err := q.db.Query(ctx, selectRoomParticipants, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := []*models.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

const updateParticipant = `
UPDATE participants SET
    nickname = COALESCE($2, nickname),
    avatar = COALESCE($3, avatar),
    updated_at = now()
WHERE id = $1`

func (q *Queries) UpdateParticipant(ctx context.Context, participantID string, nickname, avatar *string) (int64, error) {
	tag, err := q.db.Exec(ctx, updateParticipant, participantID, sqlutil.ToText(nickname), sqlutil.ToText(avatar))
	return tag.RowsAffected(), err
}

const setVote = `UPDATE participants SET vote = $2, has_voted = $3, updated_at = now() WHERE id = $1`

func (q *Queries) SetVote(ctx context.Context, participantID string, vote *string) (int64, error) {
	tag, err := q.db.Exec(ctx, setVote, participantID, sqlutil.ToText(vote), vote != nil)
	return tag.RowsAffected(), err
}

const touchParticipant = `UPDATE participants SET last_seen = $2 WHERE id = $1`

func (q *Queries) TouchParticipant(ctx context.Context, participantID string, at time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, touchParticipant, participantID, sqlutil.ToTimestamptz(at))
	return tag.RowsAffected(), err
}

const deleteParticipant = `DELETE FROM participants WHERE id = $1`

func (q *Queries) DeleteParticipant(ctx context.Context, participantID string) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteParticipant, participantID)
	return tag.RowsAffected(), err
}

const selectChangedRooms = `
SELECT id FROM rooms WHERE updated_at > $1
UNION
SELECT DISTINCT room_id FROM participants WHERE updated_at > $1`

// ChangedRoomIDs lists rooms with row changes after since.
func (q *Queries) ChangedRoomIDs(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := q.db.Query(ctx, selectChangedRooms, sqlutil.ToTimestamptz(since))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var (
		p                  models.Participant
		vote               pgtype.Text
		joinedAt, lastSeen pgtype.Timestamptz
	)
	err := row.Scan(&p.ID, &p.RoomID, &p.Nickname, &p.Avatar, &vote, &p.HasVoted, &p.IsSpectator, &joinedAt, &lastSeen)
	if err != nil {
		return nil, err
	}
	p.Vote = sqlutil.FromText(vote)
	p.JoinedAt = sqlutil.FromTimestamptz(joinedAt)
	p.LastSeen = sqlutil.FromTimestamptz(lastSeen)
	return &p, nil
}
