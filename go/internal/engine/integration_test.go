package engine

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/planningroom/go/internal/directory"
	"github.com/mcdev12/planningroom/go/internal/gateway"
	"github.com/mcdev12/planningroom/go/internal/models"
	"github.com/mcdev12/planningroom/go/internal/realtime"
	"github.com/mcdev12/planningroom/go/internal/session"
)

// stack wires engines to the in-memory directory through the gateway hub,
// the way a single roomd process does.
type stack struct {
	t         *testing.T
	clock     *clockwork.FakeClock
	app       *directory.App
	dir       *spyDirectory
	hub       *gateway.ConnectionManager
	transport *gateway.LocalTransport
	realtime  *realtime.Client
}

func newStack(t *testing.T) *stack {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	hubCfg := gateway.DefaultConnectionConfig()
	hubCfg.PresenceSyncInterval = 0
	hub := gateway.NewConnectionManager(hubCfg, clock)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	app := directory.NewApp(directory.NewMemoryRepository(), hub, clock)
	dir := newSpyDirectory(app)
	transport := gateway.NewLocalTransport(hub)

	rtCfg := realtime.DefaultConfig()
	rtCfg.HeartbeatInterval = 0

	return &stack{
		t:         t,
		clock:     clock,
		app:       app,
		dir:       dir,
		hub:       hub,
		transport: transport,
		realtime:  realtime.NewClient(dir, transport, clock, rtCfg),
	}
}

func (s *stack) deps() Deps {
	return Deps{
		Directory:  s.dir,
		Subscriber: s.realtime,
		Sessions:   session.NewMemoryStore(s.clock),
		Clock:      s.clock,
	}
}

func (s *stack) blockUntil(n int) {
	s.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(s.t, s.clock.BlockUntilContext(ctx, n), "waiting for %d timers", n)
}

func (s *stack) eventually(cond func() bool, msg string) {
	s.t.Helper()
	require.Eventually(s.t, cond, waitFor, tick, msg)
}

func (s *stack) joinEngine(roomID, nickname string) *Engine {
	s.t.Helper()
	e := New(roomID, s.deps(), testEngineConfig())
	s.t.Cleanup(e.Close)
	rec, err := e.Recover(context.Background())
	require.NoError(s.t, err)
	require.Equal(s.t, OutcomePromptIdentity, rec.Outcome)
	_, err = e.Join(context.Background(), JoinRequest{Nickname: nickname})
	require.NoError(s.t, err)
	return e
}

func TestIntegration_ThreeVotersAutoReveal(t *testing.T) {
	s := newStack(t)
	ann, err := Create(context.Background(), s.deps(), testEngineConfig(), CreateRequest{Nickname: "Ann", AutoReveal: true})
	require.NoError(t, err)
	t.Cleanup(ann.Close)
	bob := s.joinEngine(ann.RoomID(), "Bob")
	cy := s.joinEngine(ann.RoomID(), "Cy")

	s.eventually(func() bool { return len(ann.State().Room.Participants) == 3 }, "ann sees everyone")
	s.eventually(func() bool {
		for _, p := range ann.State().Room.Participants {
			if !p.IsOnline {
				return false
			}
		}
		return true
	}, "everyone online through presence")

	require.NoError(t, ann.CastVote(context.Background(), "3"))
	require.NoError(t, bob.CastVote(context.Background(), "5"))
	s.eventually(func() bool { return ann.State().Stats.Voted == 2 }, "two votes")
	assert.Equal(t, PhaseIdle, ann.State().Countdown.Phase)

	require.NoError(t, cy.CastVote(context.Background(), "8"))
	for _, e := range []*Engine{ann, bob, cy} {
		s.eventually(func() bool { return e.State().Countdown.Phase == PhaseCountingDown }, "countdown everywhere")
	}

	// every engine runs its own countdown; the first reveal wins and the
	// others see the room revealed before their second tick.
	s.blockUntil(3)
	s.clock.Advance(time.Second)
	for _, e := range []*Engine{ann, bob, cy} {
		s.eventually(func() bool { return e.State().Countdown.Remaining == 1 }, "one second left")
	}
	s.blockUntil(3)
	s.clock.Advance(time.Second)

	for _, e := range []*Engine{ann, bob, cy} {
		s.eventually(func() bool {
			st := e.State()
			return st.Room.IsRevealed && st.Countdown.Phase == PhaseRevealed
		}, "revealed everywhere")
	}
	assert.GreaterOrEqual(t, s.dir.count("RevealVotes"), 1)

	avg := 5
	s.eventually(func() bool {
		st := ann.State().Stats
		return st.Average != nil && *st.Average == avg && st.Voted == 3
	}, "average over revealed votes")
}

func TestIntegration_SingleEngineRevealsExactlyOnce(t *testing.T) {
	s := newStack(t)
	ann, err := Create(context.Background(), s.deps(), testEngineConfig(), CreateRequest{Nickname: "Ann", AutoReveal: true})
	require.NoError(t, err)
	t.Cleanup(ann.Close)

	ctx := context.Background()
	var ids []string
	for _, nick := range []string{"Bob", "Cy"} {
		m, err := s.app.JoinRoom(ctx, directory.JoinRoomRequest{RoomID: ann.RoomID(), Nickname: nick})
		require.NoError(t, err)
		ids = append(ids, m.Participant.ID)
	}
	s.eventually(func() bool { return len(ann.State().Room.Participants) == 3 }, "joins pushed")

	require.NoError(t, s.app.CastVote(ctx, ids[0], strPtr("5")))
	require.NoError(t, ann.CastVote(ctx, "5"))
	s.eventually(func() bool { return ann.State().Stats.Voted == 2 }, "two votes")

	require.NoError(t, s.app.CastVote(ctx, ids[1], strPtr("5")))
	s.eventually(func() bool { return ann.State().Countdown.Phase == PhaseCountingDown }, "countdown")

	s.blockUntil(1)
	s.clock.Advance(time.Second)
	s.eventually(func() bool { return ann.State().Countdown.Remaining == 1 }, "tick")
	s.blockUntil(1)
	s.clock.Advance(time.Second)

	s.eventually(func() bool { return s.dir.count("RevealVotes") == 1 }, "reveal called")
	s.eventually(func() bool { return ann.State().Stats.Consensus }, "consensus after confirmation")
	s.clock.Advance(10 * time.Second)
	settle(ann)
	assert.Equal(t, 1, s.dir.count("RevealVotes"))
}

func TestIntegration_KickedParticipantIsRemoved(t *testing.T) {
	s := newStack(t)
	ann, err := Create(context.Background(), s.deps(), testEngineConfig(), CreateRequest{Nickname: "Ann"})
	require.NoError(t, err)
	t.Cleanup(ann.Close)
	bob := s.joinEngine(ann.RoomID(), "Bob")
	bobID := bob.State().Self.ID

	s.eventually(func() bool { return ann.State().Room.Participant(bobID) != nil }, "ann sees bob")
	require.NoError(t, ann.RemoveParticipant(context.Background(), bobID))

	s.eventually(func() bool { return bob.State().Removed }, "bob notices the kick")
	assert.False(t, bob.State().Joined())
	s.eventually(func() bool {
		for _, id := range s.hub.Online(ann.RoomID()) {
			if id == bobID {
				return false
			}
		}
		return true
	}, "bob's channel closed")
}

func TestIntegration_PollingWhileGatewayDown(t *testing.T) {
	s := newStack(t)
	ann, err := Create(context.Background(), s.deps(), testEngineConfig(), CreateRequest{Nickname: "Ann", Name: "Sprint 12"})
	require.NoError(t, err)
	t.Cleanup(ann.Close)
	ctx := context.Background()
	annID := ann.State().Self.ID
	s.eventually(func() bool { return len(s.hub.Online(ann.RoomID())) == 1 }, "channel up")

	s.transport.SetDown(true)
	for _, backoff := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		s.blockUntil(1)
		s.clock.Advance(backoff)
	}
	// poll ticker and the degraded reconnect timer
	s.blockUntil(2)

	require.NoError(t, s.app.UpdateRoomName(ctx, ann.RoomID(), "Renamed", annID))
	s.clock.Advance(3 * time.Second)
	s.eventually(func() bool { return ann.State().Room.Name == "Renamed" }, "poll delivers the rename")

	require.NoError(t, s.app.ToggleAutoReveal(ctx, ann.RoomID(), true, annID))
	s.clock.Advance(3 * time.Second)
	s.eventually(func() bool { return ann.State().Room.AutoReveal }, "next poll delivers the toggle")

	s.transport.SetDown(false)
	s.clock.Advance(4 * time.Second)
	s.eventually(func() bool { return len(s.hub.Online(ann.RoomID())) == 1 }, "channel back")

	require.NoError(t, s.app.UpdateDeckType(ctx, ann.RoomID(), models.DeckTypeHours, annID))
	s.eventually(func() bool { return ann.State().Room.DeckType == models.DeckTypeHours }, "push works again")
}
