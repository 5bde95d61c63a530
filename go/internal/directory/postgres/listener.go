package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/planningroom/go/internal/directory"
	"github.com/mcdev12/planningroom/go/internal/events"
)

type ListenerConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to poll for changes a dropped connection missed
	PingInterval     time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:    NotifyChannel,
		FallbackInterval: 30 * time.Second,
		PingInterval:     90 * time.Second,
	}
}

// Listener forwards row change notifications from Postgres to a Notifier.
// A fallback poll re-announces rooms changed since the last pass, covering
// notifications lost while the LISTEN connection was down.
type Listener struct {
	pool     *pgxpool.Pool
	queries  *Queries
	listener *pq.Listener
	notifier directory.Notifier
	clock    clockwork.Clock
	cfg      ListenerConfig
	lastPoll time.Time
}

func NewListener(pool *pgxpool.Pool, notifier directory.Notifier, clock clockwork.Clock, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for notifications")

	return &Listener{
		pool:     pool,
		queries:  New(pool),
		listener: l,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		lastPoll: clock.Now(),
	}, nil
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("listener started")

	pingTicker := l.clock.NewTicker(l.cfg.PingInterval)
	fallbackTicker := l.clock.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.Stop()
		case note := <-l.listener.Notify:
			if note == nil {
				// nil notification means the connection was re-established; catch up now
				l.pollChanges(ctx)
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-fallbackTicker.Chan():
			l.pollChanges(ctx)
		case <-pingTicker.Chan():
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) Stop() error {
	return l.listener.Close()
}

// handleNotification decodes a trigger payload and forwards it.
func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	ev, err := decodeNotification(extra, l.clock.Now().UTC())
	if err != nil {
		return err
	}
	if err := l.notifier.Notify(ctx, ev); err != nil {
		return fmt.Errorf("failed to forward %s for room %s: %w", ev.Type, ev.RoomID, err)
	}
	return nil
}

func (l *Listener) pollChanges(ctx context.Context) {
	since := l.lastPoll
	l.lastPoll = l.clock.Now()

	roomIDs, err := l.queries.ChangedRoomIDs(ctx, since)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch changed rooms")
		l.lastPoll = since
		return
	}
	for _, id := range roomIDs {
		if err := l.notifier.Notify(ctx, events.RoomChanged(id, l.lastPoll.UTC())); err != nil {
			log.Error().Err(err).Str("room_id", id).Msg("failed to announce changed room")
		}
	}
	if len(roomIDs) > 0 {
		log.Debug().Int("rooms", len(roomIDs)).Msg("fallback poll announced changes")
	}
}

func decodeNotification(extra string, at time.Time) (events.Envelope, error) {
	var ev events.Envelope
	if err := json.Unmarshal([]byte(extra), &ev); err != nil {
		return ev, fmt.Errorf("invalid notification payload: %w", err)
	}
	if ev.RoomID == "" || !ev.IsChange() {
		return ev, fmt.Errorf("unexpected notification %q", extra)
	}
	ev.Timestamp = at
	return ev, nil
}
