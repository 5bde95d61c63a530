package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/planningroom/go/internal/directory"
	"github.com/mcdev12/planningroom/go/internal/session"
)

func TestRecover_NoSessionPromptsWithProfile(t *testing.T) {
	h := newHarness(t)
	owner := h.create(CreateRequest{Name: "Sprint 12", Password: "hunter2"})

	sessions := session.NewMemoryStore(h.clock)
	require.NoError(t, sessions.SaveProfile(context.Background(), session.Profile{Nickname: "Bob", Avatar: "🐙"}))
	e := h.engineFor(owner.RoomID(), sessions)
	assert.True(t, e.State().Recovering)

	rec, err := e.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomePromptIdentity, rec.Outcome)
	assert.Equal(t, Prompt{
		RoomID:        owner.RoomID(),
		RoomName:      "Sprint 12",
		Nickname:      "Bob",
		Avatar:        "🐙",
		NeedsPassword: true,
	}, rec.Prompt)
	assert.False(t, e.State().Recovering)
	assert.False(t, e.State().Joined())
	assert.Zero(t, h.dir.count("ReconnectToRoom"))
}

func TestRecover_SessionForAnotherRoom(t *testing.T) {
	h := newHarness(t)
	owner := h.create(CreateRequest{})

	sessions := session.NewMemoryStore(h.clock)
	require.NoError(t, sessions.Save(context.Background(), session.New("other-room", "p1", "Bob", h.clock.Now())))
	e := h.engineFor(owner.RoomID(), sessions)

	rec, err := e.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomePromptIdentity, rec.Outcome)
	assert.Zero(t, h.dir.count("ReconnectToRoom"))
}

func TestRecover_RejoinsSilently(t *testing.T) {
	h := newHarness(t)
	owner := h.create(CreateRequest{})
	bob := h.join(owner.RoomID(), "Bob", false)

	sessions := session.NewMemoryStore(h.clock)
	require.NoError(t, sessions.Save(context.Background(), session.New(owner.RoomID(), bob.ID, "Bob", h.clock.Now())))
	h.clock.Advance(2 * time.Hour)

	e := h.engineFor(owner.RoomID(), sessions)
	rec, err := e.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejoined, rec.Outcome)
	assert.Equal(t, bob.ID, rec.Membership.Participant.ID)

	st := e.State()
	assert.False(t, st.Recovering)
	require.True(t, st.Joined())
	assert.Equal(t, bob.ID, st.Self.ID)
	assert.Equal(t, bob.ID, h.subs.last(t).participantID)

	sess, err := sessions.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, h.clock.Now().UnixMilli(), sess.JoinedAt, "rejoin refreshes the session")
}

func TestRecover_KickedParticipantFallsBackToPrompt(t *testing.T) {
	h := newHarness(t)
	owner := h.create(CreateRequest{})
	bob := h.join(owner.RoomID(), "Bob", false)
	h.push(owner)
	ctx := context.Background()

	sessions := session.NewMemoryStore(h.clock)
	require.NoError(t, sessions.Save(ctx, session.New(owner.RoomID(), bob.ID, "Bob", h.clock.Now())))
	require.NoError(t, owner.RemoveParticipant(ctx, bob.ID))

	e := h.engineFor(owner.RoomID(), sessions)
	rec, err := e.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomePromptIdentity, rec.Outcome)
	assert.Nil(t, rec.Membership)
	assert.Equal(t, 1, h.dir.count("ReconnectToRoom"))

	sess, err := sessions.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess, "stale session is discarded")
	assert.False(t, e.State().Joined())
}

func TestRecover_TransientFailureFallsBackToPrompt(t *testing.T) {
	h := newHarness(t)
	owner := h.create(CreateRequest{})
	ctx := context.Background()

	sessions := session.NewMemoryStore(h.clock)
	require.NoError(t, sessions.Save(ctx, session.New(owner.RoomID(), owner.State().Self.ID, "Ann", h.clock.Now())))
	h.dir.fail("ReconnectToRoom", directory.ErrConnectionDegraded)

	e := h.engineFor(owner.RoomID(), sessions)
	rec, err := e.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomePromptIdentity, rec.Outcome)

	sess, err := sessions.Load(ctx)
	require.NoError(t, err)
	assert.NotNil(t, sess, "session kept for the next attempt")
}

func TestRecover_RoomNotFound(t *testing.T) {
	h := newHarness(t)
	e := h.engineFor("gone", session.NewMemoryStore(h.clock))

	rec, err := e.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeRoomNotFound, rec.Outcome)
	assert.False(t, e.State().Recovering)
}

func TestRecover_RunsOnce(t *testing.T) {
	h := newHarness(t)
	owner := h.create(CreateRequest{})
	sessions := session.NewMemoryStore(h.clock)
	require.NoError(t, sessions.Save(context.Background(), session.New(owner.RoomID(), owner.State().Self.ID, "Ann", h.clock.Now())))

	e := h.engineFor(owner.RoomID(), sessions)
	first, err := e.Recover(context.Background())
	require.NoError(t, err)
	second, err := e.Recover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.dir.count("ReconnectToRoom"))
}

func TestRecover_AfterClose(t *testing.T) {
	h := newHarness(t)
	e := h.engineFor("r1", session.NewMemoryStore(h.clock))
	e.Close()

	_, err := e.Recover(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestJoin_PasswordGate(t *testing.T) {
	h := newHarness(t)
	owner := h.create(CreateRequest{Password: "hunter2"})
	e := h.engineFor(owner.RoomID(), session.NewMemoryStore(h.clock))
	ctx := context.Background()

	_, err := e.Join(ctx, JoinRequest{Nickname: "Bob"})
	var verr *directory.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "password", verr.Field)
	assert.Zero(t, h.dir.count("JoinRoom"))

	_, err = e.Join(ctx, JoinRequest{Nickname: "Bob", Password: "wrong"})
	assert.ErrorIs(t, err, directory.ErrInvalidPassword)
	assert.False(t, e.State().Joined())

	m, err := e.Join(ctx, JoinRequest{Nickname: "Bob", Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, m.Participant.ID, e.State().Self.ID)
}

func TestJoin_ValidatesNicknameLocally(t *testing.T) {
	h := newHarness(t)
	owner := h.create(CreateRequest{})
	e := h.engineFor(owner.RoomID(), session.NewMemoryStore(h.clock))

	_, err := e.Join(context.Background(), JoinRequest{Nickname: "  "})
	assert.ErrorIs(t, err, directory.ErrValidation)
	_, err = e.Join(context.Background(), JoinRequest{Nickname: "abcdefghijklmnopqrstu"})
	assert.ErrorIs(t, err, directory.ErrValidation)
	assert.Zero(t, h.dir.count("GetRoomInfo"))
	assert.Zero(t, h.dir.count("JoinRoom"))
}

func TestActiveSession(t *testing.T) {
	h := newHarness(t)
	owner := h.create(CreateRequest{})
	ctx := context.Background()

	s, err := ActiveSession(ctx, h.dir, h.sessions)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, owner.RoomID(), s.RoomID)

	gone := session.NewMemoryStore(h.clock)
	require.NoError(t, gone.Save(ctx, session.New("deleted-room", "p1", "Bob", h.clock.Now())))
	s, err = ActiveSession(ctx, h.dir, gone)
	require.NoError(t, err)
	assert.Nil(t, s)
	stored, err := gone.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)

	empty, err := ActiveSession(ctx, h.dir, session.NewMemoryStore(h.clock))
	require.NoError(t, err)
	assert.Nil(t, empty)
}
