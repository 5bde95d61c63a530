package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NotifyChannel is the LISTEN/NOTIFY channel the triggers publish on.
const NotifyChannel = "room_changes"

// Schema creates the tables and the change triggers. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS rooms (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    is_revealed   BOOLEAN NOT NULL DEFAULT FALSE,
    creator_id    TEXT,
    deck_type     TEXT NOT NULL,
    password_hash BYTEA,
    auto_reveal   BOOLEAN NOT NULL DEFAULT FALSE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS participants (
    id           TEXT PRIMARY KEY,
    room_id      TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
    nickname     TEXT NOT NULL CHECK (char_length(nickname) BETWEEN 1 AND 20),
    avatar       TEXT NOT NULL,
    vote         TEXT,
    has_voted    BOOLEAN NOT NULL DEFAULT FALSE,
    is_spectator BOOLEAN NOT NULL DEFAULT FALSE,
    joined_at    TIMESTAMPTZ NOT NULL,
    last_seen    TIMESTAMPTZ NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    CHECK (has_voted OR vote IS NULL)
);

CREATE INDEX IF NOT EXISTS participants_room_id_idx ON participants (room_id);
CREATE INDEX IF NOT EXISTS participants_updated_at_idx ON participants (updated_at);
CREATE INDEX IF NOT EXISTS rooms_updated_at_idx ON rooms (updated_at);

CREATE OR REPLACE FUNCTION notify_room_change() RETURNS trigger AS $$
DECLARE
    rec RECORD;
BEGIN
    IF TG_OP = 'DELETE' THEN
        rec := OLD;
    ELSE
        rec := NEW;
    END IF;
    IF TG_TABLE_NAME = 'rooms' THEN
        PERFORM pg_notify('room_changes',
            json_build_object('type', 'room_changed', 'room_id', rec.id)::text);
    ELSE
        PERFORM pg_notify('room_changes',
            json_build_object('type', 'participant_changed', 'room_id', rec.room_id, 'participant_id', rec.id)::text);
    END IF;
    RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS rooms_notify ON rooms;
CREATE TRIGGER rooms_notify
    AFTER UPDATE OR DELETE ON rooms
    FOR EACH ROW EXECUTE FUNCTION notify_room_change();

DROP TRIGGER IF EXISTS participants_notify_insert_delete ON participants;
CREATE TRIGGER participants_notify_insert_delete
    AFTER INSERT OR DELETE ON participants
    FOR EACH ROW EXECUTE FUNCTION notify_room_change();

-- last_seen heartbeats are not changes other clients need to see.
DROP TRIGGER IF EXISTS participants_notify_update ON participants;
CREATE TRIGGER participants_notify_update
    AFTER UPDATE ON participants
    FOR EACH ROW
    WHEN ((OLD.nickname, OLD.avatar, OLD.vote, OLD.has_voted, OLD.is_spectator)
          IS DISTINCT FROM (NEW.nickname, NEW.avatar, NEW.vote, NEW.has_voted, NEW.is_spectator))
    EXECUTE FUNCTION notify_room_change();
`

// Migrate applies Schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
