package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/planningroom/go/internal/events"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 0
	return cfg
}

func blockUntil(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, n), "waiting for %d timers", n)
}

func TestConfig_Backoff(t *testing.T) {
	cfg := DefaultConfig()
	var got []time.Duration
	for n := 1; n <= 6; n++ {
		got = append(got, cfg.Backoff(n))
	}
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second,
	}, got)
}

func TestClient_FetchesOnConnectAndOnChange(t *testing.T) {
	transport := &fakeTransport{}
	fetcher := &fakeFetcher{}
	rec := &recorder{}
	c := NewClient(fetcher, transport, clockwork.NewFakeClock(), testConfig())

	h := c.Open(context.Background(), "r1", "p1", rec.onChange, rec.onPresence)
	defer h.Close()

	require.Eventually(t, func() bool { return h.State() == StateConnected && rec.roomCount() == 1 }, waitFor, tick)
	conn := transport.last()
	assert.Equal(t, []string{"p1"}, conn.trackedIDs())

	conn.send(events.ParticipantChanged("r1", "p2", time.Now()))
	require.Eventually(t, func() bool { return rec.roomCount() == 2 }, waitFor, tick)

	conn.send(events.RoomChanged("other-room", time.Now()))
	conn.send(events.RoomChanged("r1", time.Now()))
	require.Eventually(t, func() bool { return rec.roomCount() == 3 }, waitFor, tick)
}

func TestClient_PresenceEventsDoNotFetch(t *testing.T) {
	transport := &fakeTransport{}
	fetcher := &fakeFetcher{}
	rec := &recorder{}
	c := NewClient(fetcher, transport, clockwork.NewFakeClock(), testConfig())

	h := c.Open(context.Background(), "r1", "p1", rec.onChange, rec.onPresence)
	defer h.Close()
	require.Eventually(t, func() bool { return rec.roomCount() == 1 }, waitFor, tick)

	conn := transport.last()
	conn.send(events.Envelope{Type: events.KindPresenceSync, RoomID: "r1", ParticipantIDs: []string{"p1", "p2"}})
	conn.send(events.Envelope{Type: events.KindPresenceJoin, RoomID: "r1", ParticipantID: "p3"})
	conn.send(events.Envelope{Type: events.KindPresenceLeave, RoomID: "r1", ParticipantID: "p2"})

	require.Eventually(t, func() bool {
		ids := rec.lastPresence()
		return len(ids) == 2 && ids[0] == "p1" && ids[1] == "p3"
	}, waitFor, tick)
	assert.Equal(t, 1, fetcher.fetchCount())
}

func TestClient_ReconnectsWithBackoff(t *testing.T) {
	transport := &fakeTransport{}
	fetcher := &fakeFetcher{}
	rec := &recorder{}
	clock := clockwork.NewFakeClock()
	c := NewClient(fetcher, transport, clock, testConfig())

	h := c.Open(context.Background(), "r1", "p1", rec.onChange, rec.onPresence)
	defer h.Close()
	require.Eventually(t, func() bool { return h.State() == StateConnected }, waitFor, tick)

	transport.setDown(true)
	transport.last().fail(errRefused)

	blockUntil(t, clock, 1)
	assert.Equal(t, StateConnecting, h.State())

	transport.setDown(false)
	clock.Advance(time.Second)

	require.Eventually(t, func() bool { return h.State() == StateConnected && transport.dialCount() == 2 }, waitFor, tick)
	require.Eventually(t, func() bool { return rec.roomCount() == 2 }, waitFor, tick)
}

func TestClient_DegradesToPollingAndRecovers(t *testing.T) {
	transport := &fakeTransport{down: true}
	fetcher := &fakeFetcher{}
	rec := &recorder{}
	clock := clockwork.NewFakeClock()
	c := NewClient(fetcher, transport, clock, testConfig())

	h := c.Open(context.Background(), "r1", "p1", rec.onChange, rec.onPresence)
	defer h.Close()

	// initial attempt plus three reconnects with 1s, 2s, 4s backoff
	for _, d := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		blockUntil(t, clock, 1)
		assert.Equal(t, StateConnecting, h.State())
		assert.Zero(t, rec.roomCount())
		clock.Advance(d)
	}

	// poll ticker and reconnect timer
	blockUntil(t, clock, 2)
	assert.Equal(t, StateDegraded, h.State())
	assert.Equal(t, 4, transport.dialCount())
	require.Eventually(t, func() bool { return rec.roomCount() == 1 }, waitFor, tick)

	clock.Advance(3 * time.Second)
	require.Eventually(t, func() bool { return rec.roomCount() == 2 }, waitFor, tick)
	clock.Advance(3 * time.Second)
	require.Eventually(t, func() bool { return rec.roomCount() == 3 }, waitFor, tick)

	clock.Advance(3 * time.Second)
	require.Eventually(t, func() bool { return rec.roomCount() == 4 }, waitFor, tick)

	transport.setDown(false)
	clock.Advance(time.Second)

	require.Eventually(t, func() bool { return h.State() == StateConnected }, waitFor, tick)
	require.Eventually(t, func() bool { return rec.roomCount() == 5 }, waitFor, tick)
	assert.Equal(t, 5, transport.dialCount())

	// polling is gone once the channel is back
	clock.Advance(30 * time.Second)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 5, rec.roomCount())
	assert.Equal(t, StateConnected, h.State())
}

func TestClient_DegradedKeepsRetrying(t *testing.T) {
	transport := &fakeTransport{down: true}
	fetcher := &fakeFetcher{}
	clock := clockwork.NewFakeClock()
	c := NewClient(fetcher, transport, clock, testConfig())

	h := c.Open(context.Background(), "r1", "p1", nil, nil)
	defer h.Close()

	for _, d := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		blockUntil(t, clock, 1)
		clock.Advance(d)
	}
	blockUntil(t, clock, 2)

	clock.Advance(10 * time.Second)
	require.Eventually(t, func() bool { return transport.dialCount() == 5 }, waitFor, tick)
	blockUntil(t, clock, 2)
	assert.Equal(t, StateDegraded, h.State())
}

func TestClient_CloseStopsEverything(t *testing.T) {
	transport := &fakeTransport{down: true}
	fetcher := &fakeFetcher{}
	rec := &recorder{}
	clock := clockwork.NewFakeClock()
	cfg := testConfig()
	cfg.HeartbeatInterval = 30 * time.Second
	c := NewClient(fetcher, transport, clock, cfg)

	h := c.Open(context.Background(), "r1", "p1", rec.onChange, rec.onPresence)
	blockUntil(t, clock, 2) // heartbeat ticker and backoff timer

	h.Close()
	assert.Equal(t, StateClosed, h.State())

	dials := transport.dialCount()
	clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, dials, transport.dialCount())
	assert.Zero(t, rec.roomCount())
	assert.Zero(t, fetcher.heartbeatCount())

	c.Unsubscribe(h)
}

func TestClient_Heartbeat(t *testing.T) {
	transport := &fakeTransport{}
	fetcher := &fakeFetcher{}
	clock := clockwork.NewFakeClock()
	cfg := testConfig()
	cfg.HeartbeatInterval = 30 * time.Second
	c := NewClient(fetcher, transport, clock, cfg)

	sub := c.SubscribeToRoom(context.Background(), "r1", "p1", nil, nil)
	defer c.Unsubscribe(sub)

	blockUntil(t, clock, 1)
	clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool { return fetcher.heartbeatCount() == 1 }, waitFor, tick)
	clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool { return fetcher.heartbeatCount() == 2 }, waitFor, tick)
}
