package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/planningroom/go/internal/directory"
	"github.com/mcdev12/planningroom/go/internal/models"
	"github.com/mcdev12/planningroom/go/internal/session"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// spyDirectory wraps a real directory, counting calls and letting tests fail
// or delay selected operations.
type spyDirectory struct {
	directory.Directory

	mu       sync.Mutex
	calls    map[string]int
	failures map[string]error
	hooks    map[string]func()
}

func newSpyDirectory(d directory.Directory) *spyDirectory {
	return &spyDirectory{
		Directory: d,
		calls:     make(map[string]int),
		failures:  make(map[string]error),
		hooks:     make(map[string]func()),
	}
}

func (s *spyDirectory) fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *spyDirectory) hook(op string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[op] = fn
}

func (s *spyDirectory) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *spyDirectory) enter(op string) error {
	s.mu.Lock()
	s.calls[op]++
	err, hook := s.failures[op], s.hooks[op]
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (s *spyDirectory) GetRoomInfo(ctx context.Context, roomID string) (*directory.RoomInfo, error) {
	if err := s.enter("GetRoomInfo"); err != nil {
		return nil, err
	}
	return s.Directory.GetRoomInfo(ctx, roomID)
}

func (s *spyDirectory) JoinRoom(ctx context.Context, req directory.JoinRoomRequest) (*directory.Membership, error) {
	if err := s.enter("JoinRoom"); err != nil {
		return nil, err
	}
	return s.Directory.JoinRoom(ctx, req)
}

func (s *spyDirectory) ReconnectToRoom(ctx context.Context, roomID, participantID string) (*directory.Membership, error) {
	if err := s.enter("ReconnectToRoom"); err != nil {
		return nil, err
	}
	return s.Directory.ReconnectToRoom(ctx, roomID, participantID)
}

func (s *spyDirectory) CastVote(ctx context.Context, participantID string, vote *string) error {
	if err := s.enter("CastVote"); err != nil {
		return err
	}
	return s.Directory.CastVote(ctx, participantID, vote)
}

func (s *spyDirectory) RevealVotes(ctx context.Context, roomID string) error {
	if err := s.enter("RevealVotes"); err != nil {
		return err
	}
	return s.Directory.RevealVotes(ctx, roomID)
}

func (s *spyDirectory) ResetVotes(ctx context.Context, roomID string) error {
	if err := s.enter("ResetVotes"); err != nil {
		return err
	}
	return s.Directory.ResetVotes(ctx, roomID)
}

func (s *spyDirectory) UpdateRoomName(ctx context.Context, roomID, name, requesterID string) error {
	if err := s.enter("UpdateRoomName"); err != nil {
		return err
	}
	return s.Directory.UpdateRoomName(ctx, roomID, name, requesterID)
}

func (s *spyDirectory) KickParticipant(ctx context.Context, roomID, targetID, requesterID string) error {
	if err := s.enter("KickParticipant"); err != nil {
		return err
	}
	return s.Directory.KickParticipant(ctx, roomID, targetID, requesterID)
}

func (s *spyDirectory) UpdateParticipantProfile(ctx context.Context, participantID string, update directory.ProfileUpdate) error {
	if err := s.enter("UpdateParticipantProfile"); err != nil {
		return err
	}
	return s.Directory.UpdateParticipantProfile(ctx, participantID, update)
}

func (s *spyDirectory) GetRoomWithParticipants(ctx context.Context, roomID string) (*models.Room, error) {
	if err := s.enter("GetRoomWithParticipants"); err != nil {
		return nil, err
	}
	return s.Directory.GetRoomWithParticipants(ctx, roomID)
}

// fakeSubscriber hands the test the callbacks of every subscription.
type fakeSubscriber struct {
	mu   sync.Mutex
	subs []*fakeSub
}

type fakeSub struct {
	roomID        string
	participantID string
	onChange      func(*models.Room)
	onPresence    func([]string)
	closed        atomic.Bool
}

func (s *fakeSub) Close() { s.closed.Store(true) }

func (f *fakeSubscriber) SubscribeToRoom(_ context.Context, roomID, participantID string, onChange func(*models.Room), onPresence func([]string)) directory.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSub{roomID: roomID, participantID: participantID, onChange: onChange, onPresence: onPresence}
	f.subs = append(f.subs, sub)
	return sub
}

func (f *fakeSubscriber) Unsubscribe(sub directory.Subscription) { sub.Close() }

func (f *fakeSubscriber) last(t *testing.T) *fakeSub {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.subs, "no subscription opened")
	return f.subs[len(f.subs)-1]
}

// harness is an engine setup over the in-memory directory with push
// delivery controlled by the test.
type harness struct {
	t        *testing.T
	clock    *clockwork.FakeClock
	app      *directory.App
	dir      *spyDirectory
	subs     *fakeSubscriber
	sessions *session.MemoryStore
}

func newHarness(t *testing.T) *harness {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	app := directory.NewApp(directory.NewMemoryRepository(), nil, clock)
	return &harness{
		t:        t,
		clock:    clock,
		app:      app,
		dir:      newSpyDirectory(app),
		subs:     &fakeSubscriber{},
		sessions: session.NewMemoryStore(clock),
	}
}

func testEngineConfig() Config {
	cfg := DefaultConfig()
	cfg.ResyncInterval = 0
	cfg.CallTimeout = waitFor
	return cfg
}

func (h *harness) deps() Deps {
	return Deps{Directory: h.dir, Subscriber: h.subs, Sessions: h.sessions, Clock: h.clock}
}

// create makes a room through an engine, as its creator.
func (h *harness) create(req CreateRequest) *Engine {
	h.t.Helper()
	if req.Nickname == "" {
		req.Nickname = "Ann"
	}
	e, err := Create(context.Background(), h.deps(), testEngineConfig(), req)
	require.NoError(h.t, err)
	h.t.Cleanup(e.Close)
	return e
}

// engineFor opens an engine on roomID with its own session store.
func (h *harness) engineFor(roomID string, sessions session.Store) *Engine {
	deps := h.deps()
	deps.Sessions = sessions
	e := New(roomID, deps, testEngineConfig())
	h.t.Cleanup(e.Close)
	return e
}

// join adds a participant directly through the directory.
func (h *harness) join(roomID, nickname string, spectator bool) *models.Participant {
	h.t.Helper()
	m, err := h.app.JoinRoom(context.Background(), directory.JoinRoomRequest{RoomID: roomID, Nickname: nickname, IsSpectator: spectator})
	require.NoError(h.t, err)
	return m.Participant
}

func (h *harness) vote(participantID, vote string) {
	h.t.Helper()
	require.NoError(h.t, h.app.CastVote(context.Background(), participantID, &vote))
}

// push delivers the current server snapshot through the engine's subscription.
func (h *harness) push(e *Engine) {
	h.t.Helper()
	room, err := h.app.GetRoomWithParticipants(context.Background(), e.RoomID())
	require.NoError(h.t, err)
	h.subs.last(h.t).onChange(room)
	settle(e)
}

func (h *harness) blockUntil(n int) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(h.t, h.clock.BlockUntilContext(ctx, n), "waiting for %d timers", n)
}

// settle waits until everything already queued on the loop has run.
func settle(e *Engine) {
	e.do(func() {})
}

func strPtr(s string) *string { return &s }
