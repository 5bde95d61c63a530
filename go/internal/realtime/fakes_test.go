package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/mcdev12/planningroom/go/internal/events"
	"github.com/mcdev12/planningroom/go/internal/models"
)

var errRefused = errors.New("connection refused")

type fakeConn struct {
	ch chan events.Envelope

	mu      sync.Mutex
	closed  bool
	err     error
	tracked []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{ch: make(chan events.Envelope, 16)}
}

func (c *fakeConn) Events() <-chan events.Envelope { return c.ch }

func (c *fakeConn) Track(_ context.Context, participantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracked = append(c.tracked, participantID)
	return nil
}

func (c *fakeConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeConn) Close() error {
	c.fail(nil)
	return nil
}

func (c *fakeConn) send(ev events.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.ch <- ev
	}
}

func (c *fakeConn) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.err = err
	close(c.ch)
}

func (c *fakeConn) trackedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.tracked...)
}

type fakeTransport struct {
	mu    sync.Mutex
	down  bool
	dials int
	conns []*fakeConn
}

func (t *fakeTransport) Dial(_ context.Context, _ string) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	if t.down {
		return nil, errRefused
	}
	c := newFakeConn()
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *fakeTransport) setDown(down bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.down = down
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) last() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

type fakeFetcher struct {
	mu        sync.Mutex
	fetches   int
	heartbeat int
	err       error
}

func (f *fakeFetcher) GetRoomWithParticipants(_ context.Context, roomID string) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	return &models.Room{ID: roomID, Name: "room"}, nil
}

func (f *fakeFetcher) UpdateParticipantLastSeen(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeat++
	return nil
}

func (f *fakeFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeFetcher) heartbeatCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heartbeat
}

// recorder collects callback deliveries.
type recorder struct {
	mu       sync.Mutex
	rooms    []*models.Room
	presence [][]string
}

func (r *recorder) onChange(room *models.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = append(r.rooms, room)
}

func (r *recorder) onPresence(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presence = append(r.presence, ids)
}

func (r *recorder) roomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *recorder) lastPresence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.presence) == 0 {
		return nil
	}
	return r.presence[len(r.presence)-1]
}
