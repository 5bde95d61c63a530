package realtime

import (
	"context"

	"github.com/mcdev12/planningroom/go/internal/events"
)

// Transport opens live channels scoped to one room.
type Transport interface {
	Dial(ctx context.Context, roomID string) (Conn, error)
}

// Conn is one live channel. Events is closed when the channel ends; Err then
// reports why (nil after Close).
type Conn interface {
	Events() <-chan events.Envelope
	// Track announces the local participant on the channel's presence.
	Track(ctx context.Context, participantID string) error
	Err() error
	Close() error
}
