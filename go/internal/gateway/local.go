package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/mcdev12/planningroom/go/internal/events"
	"github.com/mcdev12/planningroom/go/internal/realtime"
)

// ErrTransportDown is returned by LocalTransport while it is switched off.
var ErrTransportDown = errors.New("gateway unavailable")

// LocalTransport connects realtime clients to a ConnectionManager in the same
// process. It can be switched off to simulate an outage.
type LocalTransport struct {
	cm *ConnectionManager

	mu    sync.Mutex
	down  bool
	conns map[*localConn]struct{}
}

var _ realtime.Transport = (*LocalTransport)(nil)

// NewLocalTransport creates an in-process transport
func NewLocalTransport(cm *ConnectionManager) *LocalTransport {
	return &LocalTransport{cm: cm, conns: make(map[*localConn]struct{})}
}

func (t *LocalTransport) Dial(ctx context.Context, roomID string) (realtime.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.down {
		return nil, ErrTransportDown
	}
	c := &localConn{transport: t, conn: t.cm.Register(roomID)}
	t.conns[c] = struct{}{}
	return c, nil
}

// SetDown switches the transport off (breaking every open connection) or back on.
func (t *LocalTransport) SetDown(down bool) {
	t.mu.Lock()
	t.down = down
	var open []*localConn
	if down {
		for c := range t.conns {
			open = append(open, c)
		}
	}
	t.mu.Unlock()

	for _, c := range open {
		c.drop(ErrTransportDown)
	}
}

type localConn struct {
	transport *LocalTransport
	conn      *Connection

	mu  sync.Mutex
	err error
}

func (c *localConn) Events() <-chan events.Envelope { return c.conn.Send }

func (c *localConn) Track(ctx context.Context, participantID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.transport.cm.Track(c.conn, participantID)
	return nil
}

func (c *localConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *localConn) Close() error {
	c.drop(nil)
	return nil
}

func (c *localConn) drop(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()

	c.transport.mu.Lock()
	delete(c.transport.conns, c)
	c.transport.mu.Unlock()

	c.transport.cm.Unregister(c.conn)
}
