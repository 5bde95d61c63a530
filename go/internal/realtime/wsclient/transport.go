package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/planningroom/go/internal/events"
	"github.com/mcdev12/planningroom/go/internal/realtime"
)

// Config holds timeouts for the gateway connection
type Config struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration // extended on every message and server ping
	MaxMessageSize int64
	BufferSize     int
}

// DefaultConfig returns timeouts matching the gateway's ping interval
func DefaultConfig() Config {
	return Config{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		MaxMessageSize: 64 * 1024,
		BufferSize:     64,
	}
}

// Transport dials the realtime gateway over websocket.
type Transport struct {
	endpoint string
	header   http.Header
	dialer   *websocket.Dialer
	cfg      Config
}

var _ realtime.Transport = (*Transport)(nil)

// New creates a transport for the gateway endpoint, e.g. ws://localhost:8080/ws/room.
func New(endpoint string, header http.Header, cfg Config) *Transport {
	return &Transport{
		endpoint: endpoint,
		header:   header,
		dialer:   websocket.DefaultDialer,
		cfg:      cfg,
	}
}

func (t *Transport) Dial(ctx context.Context, roomID string) (realtime.Conn, error) {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway url: %w", err)
	}
	q := u.Query()
	q.Set("room_id", roomID)
	u.RawQuery = q.Encode()

	ws, resp, err := t.dialer.DialContext(ctx, u.String(), t.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial gateway: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("dial gateway: %w", err)
	}

	c := &conn{
		ws:     ws,
		roomID: roomID,
		cfg:    t.cfg,
		events: make(chan events.Envelope, t.cfg.BufferSize),
		done:   make(chan struct{}),
	}
	go c.readPump()
	return c, nil
}

type conn struct {
	ws     *websocket.Conn
	roomID string
	cfg    Config
	events chan events.Envelope
	done   chan struct{}

	writeMu sync.Mutex

	mu     sync.Mutex
	err    error
	closed bool
}

func (c *conn) Events() <-chan events.Envelope { return c.events }

func (c *conn) Track(ctx context.Context, participantID string) error {
	msg, err := json.Marshal(events.Envelope{
		Type:          events.KindTrack,
		RoomID:        c.roomID,
		ParticipantID: participantID,
		Timestamp:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal track: %w", err)
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("send track: %w", err)
	}
	return nil
}

func (c *conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.cfg.WriteTimeout))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// readPump decodes gateway messages until the connection fails or is closed.
func (c *conn) readPump() {
	defer close(c.events)

	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	c.ws.SetPingHandler(func(data string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return c.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.cfg.WriteTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		var ev events.Envelope
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Warn().Err(err).Str("room_id", c.roomID).Msg("dropping malformed gateway message")
			continue
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *conn) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.err = err
}
