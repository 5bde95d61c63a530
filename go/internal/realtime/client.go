package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/planningroom/go/internal/directory"
	"github.com/mcdev12/planningroom/go/internal/events"
	"github.com/mcdev12/planningroom/go/internal/models"
)

// State is the health of a subscription.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateDegraded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config tunes reconnection and the polling fallback.
type Config struct {
	MaxRetries        int           // reconnect attempts before degrading to polling
	BaseBackoff       time.Duration // first reconnect delay, doubled per attempt
	MaxBackoff        time.Duration // backoff cap, also the reconnect period while degraded
	PollInterval      time.Duration // snapshot refresh period while degraded
	HeartbeatInterval time.Duration // last-seen refresh period, 0 disables
	FetchTimeout      time.Duration
	DialTimeout       time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		BaseBackoff:       time.Second,
		MaxBackoff:        10 * time.Second,
		PollInterval:      3 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		FetchTimeout:      10 * time.Second,
		DialTimeout:       10 * time.Second,
	}
}

// Backoff returns the delay before reconnect attempt n (1-based).
func (c Config) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := c.BaseBackoff
	for i := 1; i < n && d < c.MaxBackoff; i++ {
		d *= 2
	}
	if d > c.MaxBackoff {
		d = c.MaxBackoff
	}
	return d
}

// Fetcher is the part of the directory a subscription needs.
type Fetcher interface {
	GetRoomWithParticipants(ctx context.Context, roomID string) (*models.Room, error)
	UpdateParticipantLastSeen(ctx context.Context, participantID string) error
}

// Client opens room subscriptions over a Transport, falling back to polling
// the directory when the transport stays down.
type Client struct {
	fetcher   Fetcher
	transport Transport
	clock     clockwork.Clock
	cfg       Config
}

var _ directory.Subscriber = (*Client)(nil)

// NewClient creates a new subscription client
func NewClient(fetcher Fetcher, transport Transport, clock clockwork.Clock, cfg Config) *Client {
	return &Client{fetcher: fetcher, transport: transport, clock: clock, cfg: cfg}
}

// SubscribeToRoom opens a subscription; see Open.
func (c *Client) SubscribeToRoom(ctx context.Context, roomID, participantID string, onChange func(*models.Room), onPresence func([]string)) directory.Subscription {
	return c.Open(ctx, roomID, participantID, onChange, onPresence)
}

// Unsubscribe closes a subscription returned by SubscribeToRoom.
func (c *Client) Unsubscribe(sub directory.Subscription) {
	if sub != nil {
		sub.Close()
	}
}

// Open starts a subscription for roomID. onChange receives every fetched snapshot
// and onPresence the online ids after every presence event. Callbacks are never
// invoked concurrently with each other, and never after Close returns.
func (c *Client) Open(ctx context.Context, roomID, participantID string, onChange func(*models.Room), onPresence func([]string)) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		client:        c,
		roomID:        roomID,
		participantID: participantID,
		onChange:      onChange,
		onPresence:    onPresence,
		presence:      NewPresence(),
		ctx:           ctx,
		cancel:        cancel,
		state:         StateConnecting,
		logger:        log.With().Str("room_id", roomID).Str("participant_id", participantID).Logger(),
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.run()
	}()

	if c.cfg.HeartbeatInterval > 0 && participantID != "" {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			runHeartbeat(ctx, c.clock, c.cfg.HeartbeatInterval, h.logger, func(ctx context.Context) error {
				return c.fetcher.UpdateParticipantLastSeen(ctx, participantID)
			})
		}()
	}
	return h
}

// Handle owns everything a subscription started: the channel, the poller,
// the heartbeat and the retry timers. Close releases all of them.
type Handle struct {
	client        *Client
	roomID        string
	participantID string
	onChange      func(*models.Room)
	onPresence    func([]string)
	presence      *Presence

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	logger zerolog.Logger

	mu    sync.Mutex
	state State
}

// State returns the current health state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Close stops the subscription and waits for its goroutines to exit.
func (h *Handle) Close() {
	h.once.Do(func() {
		h.cancel()
		h.wg.Wait()
		h.setState(StateClosed)
	})
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	prev := h.state
	if prev == StateClosed {
		h.mu.Unlock()
		return
	}
	h.state = s
	h.mu.Unlock()

	if prev != s {
		h.logger.Debug().Str("from", prev.String()).Str("state", s.String()).Msg("subscription state changed")
	}
}

func (h *Handle) run() {
	cfg := h.client.cfg
	var (
		failures int
		poll     *poller
	)
	defer func() {
		if poll != nil {
			poll.stop()
		}
	}()

	for {
		conn, err := h.dial()
		if err == nil {
			if poll != nil {
				poll.stop()
				poll = nil
				h.logger.Info().Msg("channel recovered, polling stopped")
			}
			failures = 0
			h.setState(StateConnected)
			err = h.serve(conn)
		}
		if h.ctx.Err() != nil {
			return
		}

		failures++
		var wait time.Duration
		if failures <= cfg.MaxRetries {
			wait = cfg.Backoff(failures)
			h.setState(StateConnecting)
			h.logger.Warn().Err(err).Int("attempt", failures).Dur("backoff", wait).Msg("channel failed, reconnecting")
		} else {
			if poll == nil {
				h.setState(StateDegraded)
				h.logger.Warn().
					Err(fmt.Errorf("%w: %w", directory.ErrConnectionDegraded, err)).
					Dur("poll_interval", cfg.PollInterval).
					Msg("retries exhausted, falling back to polling")
				poll = h.startPolling()
			}
			wait = cfg.MaxBackoff
		}
		if !h.sleep(wait) {
			return
		}
	}
}

func (h *Handle) dial() (Conn, error) {
	ctx, cancel := context.WithTimeout(h.ctx, h.client.cfg.DialTimeout)
	defer cancel()

	conn, err := h.client.transport.Dial(ctx, h.roomID)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	if h.participantID != "" {
		if err := conn.Track(ctx, h.participantID); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("track: %w", err)
		}
	}
	return conn, nil
}

// serve consumes the channel until it fails or the handle is closed.
// Every change notification triggers a full re-fetch; a burst of
// notifications already queued is folded into one fetch.
func (h *Handle) serve(conn Conn) error {
	defer conn.Close()

	h.refetch()
	for {
		select {
		case <-h.ctx.Done():
			return h.ctx.Err()
		case ev, ok := <-conn.Events():
			if !ok {
				return channelClosed(conn)
			}
			dirty := h.handle(ev)
			closed := false
		drain:
			for {
				select {
				case ev, ok := <-conn.Events():
					if !ok {
						closed = true
						break drain
					}
					dirty = h.handle(ev) || dirty
				default:
					break drain
				}
			}
			if dirty {
				h.refetch()
			}
			if closed {
				return channelClosed(conn)
			}
		}
	}
}

// handle applies a presence event and reports whether ev calls for a re-fetch.
func (h *Handle) handle(ev events.Envelope) bool {
	if ev.RoomID != "" && ev.RoomID != h.roomID {
		return false
	}
	if h.presence.Apply(ev) {
		if h.onPresence != nil {
			h.onPresence(h.presence.IDs())
		}
		return false
	}
	return ev.IsChange()
}

func (h *Handle) refetch() {
	ctx, cancel := context.WithTimeout(h.ctx, h.client.cfg.FetchTimeout)
	defer cancel()

	room, err := h.client.fetcher.GetRoomWithParticipants(ctx, h.roomID)
	if err != nil {
		if h.ctx.Err() == nil {
			h.logger.Warn().Err(err).Msg("failed to fetch room snapshot")
		}
		return
	}
	if h.ctx.Err() != nil {
		return
	}
	if h.onChange != nil {
		h.onChange(room)
	}
}

func (h *Handle) sleep(d time.Duration) bool {
	t := h.client.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-h.ctx.Done():
		return false
	case <-t.Chan():
		return true
	}
}

func channelClosed(conn Conn) error {
	if err := conn.Err(); err != nil {
		return err
	}
	return errors.New("channel closed")
}

// poller re-fetches the snapshot on a fixed interval while the channel is down.
type poller struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (h *Handle) startPolling() *poller {
	ctx, cancel := context.WithCancel(h.ctx)
	p := &poller{cancel: cancel, done: make(chan struct{})}
	ticker := h.client.clock.NewTicker(h.client.cfg.PollInterval)

	go func() {
		defer close(p.done)
		defer ticker.Stop()

		h.refetch()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				h.refetch()
			}
		}
	}()
	return p
}

func (p *poller) stop() {
	p.cancel()
	<-p.done
}
