package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/planningroom/go/internal/directory"
	"github.com/mcdev12/planningroom/go/internal/models"
	"github.com/mcdev12/planningroom/go/internal/session"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("engine closed")
	// ErrNotJoined is returned by room operations before a join or rejoin succeeded.
	ErrNotJoined = errors.New("not joined to the room")
)

// Config tunes the engine's own timers. Subscription timers live in realtime.Config.
type Config struct {
	CountdownSeconds int
	TickInterval     time.Duration
	// ResyncInterval re-fetches the snapshot regardless of channel health; 0 disables it.
	ResyncInterval time.Duration
	// CallTimeout bounds the calls the engine makes on its own, like the auto reveal.
	CallTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		CountdownSeconds: 2,
		TickInterval:     time.Second,
		ResyncInterval:   time.Minute,
		CallTimeout:      10 * time.Second,
	}
}

// Deps are the collaborators of an engine. Subscriber may be nil, in which
// case only the resync timer refreshes the snapshot.
type Deps struct {
	Directory  directory.Directory
	Subscriber directory.Subscriber
	Sessions   session.Store
	Clock      clockwork.Clock
}

// State is the merged view of the room the engine exposes.
type State struct {
	RoomID     string
	Room       *models.Room
	Self       *models.Participant
	Online     []string
	Countdown  Countdown
	Stats      models.Stats
	Recovering bool
	// Removed is set when a snapshot no longer lists the local participant.
	Removed bool
}

// Joined reports whether the engine has a current identity in the room.
func (s State) Joined() bool { return s.Self != nil }

// Engine owns the local snapshot of one room. All state is confined to a
// single event loop goroutine; public methods hand work to it and run remote
// calls outside of it.
type Engine struct {
	roomID string
	deps   Deps
	cfg    Config
	logger zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	ops       chan func()
	done      chan struct{}
	bg        sync.WaitGroup
	closeOnce sync.Once

	recoverOnce sync.Once
	recovery    Recovery
	recoverErr  error

	stateMu sync.RWMutex
	state   State

	// owned by the loop
	room        *models.Room
	seq         uint64
	selfID      string
	online      []string
	countdown   *countdownFSM
	tickTimer   clockwork.Timer
	tickGen     uint64
	sub         directory.Subscription
	stopResync  context.CancelFunc
	subGen      uint64
	recovering  bool
	removed     bool
	watchers    map[int]chan State
	nextWatcher int
}

// New creates an engine for roomID and starts its event loop. Call Recover
// (or Join) next, and Close when the room view goes away.
func New(roomID string, deps Deps, cfg Config) *Engine {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		roomID:     roomID,
		deps:       deps,
		cfg:        cfg,
		logger:     log.With().Str("room_id", roomID).Logger(),
		ctx:        ctx,
		cancel:     cancel,
		ops:        make(chan func()),
		done:       make(chan struct{}),
		countdown:  newCountdown(cfg.CountdownSeconds),
		recovering: true,
		watchers:   make(map[int]chan State),
	}
	e.publish()
	go e.loop()
	return e
}

// RoomID returns the room this engine is bound to.
func (e *Engine) RoomID() string { return e.roomID }

// State returns the latest published state.
func (e *Engine) State() State {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

// Watch returns a channel that always holds the most recent state. Slow
// readers skip intermediate states. The returned func stops the watch.
func (e *Engine) Watch() (<-chan State, func()) {
	ch := make(chan State, 1)
	var id int
	if !e.do(func() {
		id = e.nextWatcher
		e.nextWatcher++
		e.watchers[id] = ch
		ch <- e.state
	}) {
		close(ch)
		return ch, func() {}
	}
	return ch, func() {
		e.do(func() {
			if _, ok := e.watchers[id]; ok {
				delete(e.watchers, id)
				close(ch)
			}
		})
	}
}

// Close stops the loop and tears down the countdown, the subscription and
// the resync timer. It waits for every goroutine the engine started.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.cancel()
		<-e.done

		e.stopTick()
		if e.stopResync != nil {
			e.stopResync()
		}
		if e.sub != nil {
			e.unsubscribeWith(e.sub)
			e.sub = nil
		}
		e.bg.Wait()
		for id, ch := range e.watchers {
			delete(e.watchers, id)
			close(ch)
		}
		e.logger.Debug().Msg("engine closed")
	})
}

func (e *Engine) loop() {
	defer close(e.done)
	for {
		select {
		case <-e.ctx.Done():
			return
		case fn := <-e.ops:
			fn()
		}
	}
}

// do runs fn on the loop and waits for it. It reports false once the engine is closed.
func (e *Engine) do(fn func()) bool {
	finished := make(chan struct{})
	select {
	case e.ops <- func() { defer close(finished); fn() }:
	case <-e.ctx.Done():
		return false
	}
	select {
	case <-finished:
		return true
	case <-e.done:
		return false
	}
}

// post queues fn without waiting for it to run. It is dropped after Close.
func (e *Engine) post(fn func()) {
	select {
	case e.ops <- fn:
	case <-e.ctx.Done():
	}
}

func (e *Engine) publish() {
	st := State{
		RoomID:     e.roomID,
		Room:       Merge(e.room, e.online, e.selfID),
		Online:     slices.Clone(e.online),
		Countdown:  e.countdown.State(),
		Recovering: e.recovering,
		Removed:    e.removed,
	}
	if st.Room != nil {
		st.Self = st.Room.Participant(e.selfID)
		st.Stats = st.Room.Stats()
	}

	e.stateMu.Lock()
	e.state = st
	e.stateMu.Unlock()

	for _, ch := range e.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

// adopt makes m the current identity and starts listening for changes.
func (e *Engine) adopt(m *directory.Membership) {
	e.selfID = m.Participant.ID
	e.removed = false
	e.recovering = false
	e.online = nil
	e.countdown.Cancel()
	e.stopTick()
	e.applySnapshot(m.Room)
	if e.selfID != "" {
		e.subscribe()
	}
	e.publish()
	e.logger.Info().Str("participant_id", e.selfID).Msg("joined room")
}

// applySnapshot installs an authoritative room value.
func (e *Engine) applySnapshot(room *models.Room) {
	if room == nil || room.ID != e.roomID {
		return
	}
	e.room = room
	e.seq++
	if e.selfID != "" && room.Participant(e.selfID) == nil {
		e.markRemoved()
		return
	}
	e.observe()
}

func (e *Engine) markRemoved() {
	pid := e.selfID
	e.logger.Info().Str("participant_id", pid).Msg("no longer in the room")

	e.detach()
	e.removed = true

	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(e.ctx), e.cfg.CallTimeout)
		defer cancel()
		e.forgetSession(ctx, pid)
	}()
}

// detach drops the identity, the countdown and the subscription.
func (e *Engine) detach() {
	e.stopTick()
	e.countdown.Cancel()
	e.unsubscribe()
	e.selfID = ""
	e.room = nil
	e.online = nil
}

func (e *Engine) forgetSession(ctx context.Context, participantID string) {
	s, err := e.deps.Sessions.Load(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("failed to load session")
		return
	}
	if s == nil || s.ParticipantID != participantID {
		return
	}
	if err := e.deps.Sessions.Clear(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("failed to clear session")
	}
}

func (e *Engine) observe() {
	switch tr := e.countdown.Observe(e.room); tr {
	case TransitionStarted:
		e.logger.Debug().Int("seconds", e.countdown.remaining).Msg("everyone voted, auto reveal countdown started")
		e.scheduleTick()
	case TransitionAborted:
		e.logger.Debug().Msg("auto reveal countdown aborted")
		e.stopTick()
	case TransitionRevealed:
		e.stopTick()
	}
}

func (e *Engine) subscribe() {
	e.unsubscribe()
	e.subGen++
	gen := e.subGen

	if e.deps.Subscriber != nil {
		e.sub = e.deps.Subscriber.SubscribeToRoom(e.ctx, e.roomID, e.selfID,
			func(room *models.Room) {
				e.post(func() {
					if gen != e.subGen {
						return
					}
					e.applySnapshot(room)
					e.publish()
				})
			},
			func(ids []string) {
				e.post(func() {
					if gen != e.subGen {
						return
					}
					e.online = ids
					e.publish()
				})
			})
	}
	if e.cfg.ResyncInterval > 0 {
		e.startResync(gen)
	}
}

// unsubscribe detaches the current subscription. Its Close waits for callbacks
// that need the loop, so it runs on its own goroutine.
func (e *Engine) unsubscribe() {
	e.subGen++
	if e.stopResync != nil {
		e.stopResync()
		e.stopResync = nil
	}
	if e.sub == nil {
		return
	}
	sub := e.sub
	e.sub = nil
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		e.unsubscribeWith(sub)
	}()
}

func (e *Engine) unsubscribeWith(sub directory.Subscription) {
	if e.deps.Subscriber != nil {
		e.deps.Subscriber.Unsubscribe(sub)
		return
	}
	sub.Close()
}

func (e *Engine) startResync(gen uint64) {
	ctx, cancel := context.WithCancel(e.ctx)
	e.stopResync = cancel
	ticker := e.deps.Clock.NewTicker(e.cfg.ResyncInterval)

	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				fetchCtx, cancelFetch := context.WithTimeout(ctx, e.cfg.CallTimeout)
				room, err := e.deps.Directory.GetRoomWithParticipants(fetchCtx, e.roomID)
				cancelFetch()
				if err != nil {
					if ctx.Err() == nil {
						e.logger.Warn().Err(err).Msg("resync failed")
					}
					continue
				}
				e.post(func() {
					if gen != e.subGen {
						return
					}
					e.applySnapshot(room)
					e.publish()
				})
			}
		}
	}()
}

func (e *Engine) scheduleTick() {
	e.stopTick()
	gen := e.tickGen
	e.tickTimer = e.deps.Clock.AfterFunc(e.cfg.TickInterval, func() {
		e.post(func() {
			if gen != e.tickGen {
				return
			}
			e.onTick()
		})
	})
}

func (e *Engine) stopTick() {
	e.tickGen++
	if e.tickTimer != nil {
		e.tickTimer.Stop()
		e.tickTimer = nil
	}
}

func (e *Engine) onTick() {
	e.tickTimer = nil
	if !e.countdown.Tick() {
		e.scheduleTick()
		e.publish()
		return
	}

	e.logger.Info().Msg("countdown finished, revealing votes")
	u := e.apply("reveal votes", reveal())
	e.publish()

	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		ctx, cancel := context.WithTimeout(e.ctx, e.cfg.CallTimeout)
		defer cancel()
		if err := e.deps.Directory.RevealVotes(ctx, e.roomID); err != nil {
			if e.ctx.Err() != nil {
				return
			}
			e.logger.Warn().Err(err).Msg("failed to reveal votes, rolling back")
			e.post(func() {
				e.rollback(u)
				e.publish()
			})
		}
	}()
}

// apply edits the snapshot ahead of the remote call.
func (e *Engine) apply(op string, m mutation) *undo {
	if e.room == nil {
		return nil
	}
	next := e.room.Clone()
	revert := m(next)
	e.room = next
	e.observe()
	return &undo{op: op, seq: e.seq, revert: revert}
}

// rollback restores an optimistic edit. A snapshot that arrived in between
// already carries the server's value and wins.
func (e *Engine) rollback(u *undo) {
	if u == nil || u.revert == nil || e.room == nil {
		return
	}
	if u.seq != e.seq {
		e.logger.Debug().Str("op", u.op).Msg("optimistic change superseded, not rolling back")
		return
	}
	next := e.room.Clone()
	u.revert(next)
	e.room = next
	e.observe()
}

// mutate runs prepare on the loop, applies its mutation locally, then calls
// remote. A failed remote call rolls the local change back. prepare returning
// a nil mutation and no error makes the whole operation a no-op.
func (e *Engine) mutate(ctx context.Context, op string, prepare func() (mutation, error), remote func(ctx context.Context) error) error {
	var (
		u    *undo
		skip bool
		err  error
	)
	if !e.do(func() {
		var m mutation
		m, err = prepare()
		if err != nil {
			return
		}
		if m == nil {
			skip = true
			return
		}
		u = e.apply(op, m)
		e.publish()
	}) {
		return ErrClosed
	}
	if err != nil || skip {
		return err
	}

	if err := remote(ctx); err != nil {
		e.logger.Warn().Err(err).Str("op", op).Msg("remote call failed, rolling back")
		e.do(func() {
			e.rollback(u)
			e.publish()
		})
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}

func (e *Engine) self() (*models.Participant, error) {
	if e.selfID == "" || e.room == nil {
		return nil, ErrNotJoined
	}
	p := e.room.Participant(e.selfID)
	if p == nil {
		return nil, ErrNotJoined
	}
	return p, nil
}

func (e *Engine) creator() (string, error) {
	p, err := e.self()
	if err != nil {
		return "", err
	}
	if !e.room.IsCreator(p.ID) {
		return "", directory.ErrUnauthorized
	}
	return p.ID, nil
}

// CastVote records the local participant's vote.
func (e *Engine) CastVote(ctx context.Context, vote string) error {
	return e.castVote(ctx, &vote)
}

// ClearVote retracts the local participant's vote.
func (e *Engine) ClearVote(ctx context.Context) error {
	return e.castVote(ctx, nil)
}

func (e *Engine) castVote(ctx context.Context, vote *string) error {
	var pid string
	return e.mutate(ctx, "cast vote",
		func() (mutation, error) {
			p, err := e.self()
			if err != nil {
				return nil, err
			}
			if p.IsSpectator {
				return nil, &directory.ValidationError{Field: "vote", Reason: "spectators do not vote"}
			}
			if e.room.IsRevealed {
				return nil, ErrAlreadyRevealed
			}
			if err := directory.ValidateVote(e.room.DeckType, vote); err != nil {
				return nil, err
			}
			pid = p.ID
			return setVote(pid, vote), nil
		},
		func(ctx context.Context) error {
			return e.deps.Directory.CastVote(ctx, pid, vote)
		})
}

// StartRevealCountdown starts the manual countdown. It does nothing when a
// countdown is already running.
func (e *Engine) StartRevealCountdown() error {
	var err error
	if !e.do(func() {
		if e.room == nil {
			err = ErrNotJoined
			return
		}
		var started bool
		started, err = e.countdown.Request(e.room)
		if started {
			e.logger.Debug().Int("seconds", e.countdown.remaining).Msg("reveal countdown started")
			e.scheduleTick()
			e.publish()
		}
	}) {
		return ErrClosed
	}
	return err
}

// Reveal reveals the votes right away.
func (e *Engine) Reveal(ctx context.Context) error {
	return e.mutate(ctx, "reveal votes",
		func() (mutation, error) {
			if _, err := e.self(); err != nil {
				return nil, err
			}
			if e.room.IsRevealed {
				return nil, ErrAlreadyRevealed
			}
			return reveal(), nil
		},
		func(ctx context.Context) error {
			return e.deps.Directory.RevealVotes(ctx, e.roomID)
		})
}

// ResetVotes starts a new round.
func (e *Engine) ResetVotes(ctx context.Context) error {
	return e.mutate(ctx, "reset votes",
		func() (mutation, error) {
			if _, err := e.self(); err != nil {
				return nil, err
			}
			e.stopTick()
			e.countdown.Cancel()
			return resetRound(), nil
		},
		func(ctx context.Context) error {
			return e.deps.Directory.ResetVotes(ctx, e.roomID)
		})
}

// RenameRoom renames the room. A blank or unchanged name is ignored.
func (e *Engine) RenameRoom(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	var pid string
	return e.mutate(ctx, "rename room",
		func() (mutation, error) {
			id, err := e.creator()
			if err != nil {
				return nil, err
			}
			if name == "" || name == e.room.Name {
				return nil, nil
			}
			pid = id
			return rename(name), nil
		},
		func(ctx context.Context) error {
			return e.deps.Directory.UpdateRoomName(ctx, e.roomID, name, pid)
		})
}

// ToggleAutoReveal turns the auto reveal on or off.
func (e *Engine) ToggleAutoReveal(ctx context.Context, enabled bool) error {
	var pid string
	return e.mutate(ctx, "toggle auto reveal",
		func() (mutation, error) {
			id, err := e.creator()
			if err != nil {
				return nil, err
			}
			if e.room.AutoReveal == enabled {
				return nil, nil
			}
			pid = id
			return setAutoReveal(enabled), nil
		},
		func(ctx context.Context) error {
			return e.deps.Directory.ToggleAutoReveal(ctx, e.roomID, enabled, pid)
		})
}

// ChangeDeck switches the room to another deck.
func (e *Engine) ChangeDeck(ctx context.Context, deck models.DeckType) error {
	if err := directory.ValidateDeck(deck); err != nil {
		return err
	}
	var pid string
	return e.mutate(ctx, "change deck",
		func() (mutation, error) {
			id, err := e.creator()
			if err != nil {
				return nil, err
			}
			if e.room.DeckType == deck {
				return nil, nil
			}
			pid = id
			return setDeck(deck), nil
		},
		func(ctx context.Context) error {
			return e.deps.Directory.UpdateDeckType(ctx, e.roomID, deck, pid)
		})
}

// UpdateProfile changes the local participant's nickname and/or avatar and
// remembers them for the next identity prompt.
func (e *Engine) UpdateProfile(ctx context.Context, update directory.ProfileUpdate) error {
	if update.Nickname != nil {
		n, err := directory.NormalizeNickname(*update.Nickname)
		if err != nil {
			return err
		}
		update.Nickname = &n
	}
	if update.Avatar != nil && strings.TrimSpace(*update.Avatar) == "" {
		update.Avatar = nil
	}
	if update.Nickname == nil && update.Avatar == nil {
		return nil
	}

	var (
		pid     string
		profile session.Profile
	)
	err := e.mutate(ctx, "update profile",
		func() (mutation, error) {
			p, err := e.self()
			if err != nil {
				return nil, err
			}
			pid = p.ID
			profile = session.Profile{Nickname: p.Nickname, Avatar: p.Avatar}
			return setProfile(pid, update.Nickname, update.Avatar), nil
		},
		func(ctx context.Context) error {
			return e.deps.Directory.UpdateParticipantProfile(ctx, pid, update)
		})
	if err != nil {
		return err
	}

	if update.Nickname != nil {
		profile.Nickname = *update.Nickname
	}
	if update.Avatar != nil {
		profile.Avatar = *update.Avatar
	}
	if err := e.deps.Sessions.SaveProfile(ctx, profile); err != nil {
		e.logger.Warn().Err(err).Msg("failed to save profile")
	}
	if s, err := e.deps.Sessions.Load(ctx); err == nil && s != nil && s.ParticipantID == pid && s.Nickname != profile.Nickname {
		s.Nickname = profile.Nickname
		if err := e.deps.Sessions.Save(ctx, *s); err != nil {
			e.logger.Warn().Err(err).Msg("failed to update session")
		}
	}
	return nil
}

// RemoveParticipant kicks another participant. Only the creator may kick,
// and the creator cannot be kicked.
func (e *Engine) RemoveParticipant(ctx context.Context, targetID string) error {
	var pid string
	return e.mutate(ctx, "remove participant",
		func() (mutation, error) {
			id, err := e.creator()
			if err != nil {
				return nil, err
			}
			if e.room.IsCreator(targetID) {
				return nil, fmt.Errorf("cannot remove the room creator: %w", directory.ErrUnauthorized)
			}
			// only participants in the local snapshot can be kicked
			if e.room.Participant(targetID) == nil {
				return nil, directory.ErrNotFound
			}
			pid = id
			return removeParticipant(targetID), nil
		},
		func(ctx context.Context) error {
			return e.deps.Directory.KickParticipant(ctx, e.roomID, targetID, pid)
		})
}

// JoinRequest is the identity entered at the prompt.
type JoinRequest struct {
	Nickname    string
	Avatar      string
	Password    string
	IsSpectator bool
}

// Join joins the room as a new participant and persists the session.
func (e *Engine) Join(ctx context.Context, req JoinRequest) (*directory.Membership, error) {
	nickname, err := directory.NormalizeNickname(req.Nickname)
	if err != nil {
		return nil, err
	}
	if err := directory.ValidateRoomID(e.roomID); err != nil {
		return nil, err
	}

	var password *string
	if req.Password != "" {
		password = &req.Password
	} else {
		info, err := e.deps.Directory.GetRoomInfo(ctx, e.roomID)
		if err != nil {
			return nil, fmt.Errorf("failed to get room info: %w", err)
		}
		if info.HasPassword {
			return nil, &directory.ValidationError{Field: "password", Reason: "required"}
		}
	}

	m, err := e.deps.Directory.JoinRoom(ctx, directory.JoinRoomRequest{
		RoomID:      e.roomID,
		Nickname:    nickname,
		Avatar:      req.Avatar,
		Password:    password,
		IsSpectator: req.IsSpectator,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to join room: %w", err)
	}

	e.persist(ctx, m)
	if !e.do(func() { e.adopt(m) }) {
		return nil, ErrClosed
	}
	return m, nil
}

// Leave leaves the room and clears the stored session.
func (e *Engine) Leave(ctx context.Context) error {
	var pid string
	var err error
	if !e.do(func() {
		var p *models.Participant
		if p, err = e.self(); err == nil {
			pid = p.ID
		}
	}) {
		return ErrClosed
	}
	if err != nil {
		return err
	}

	if err := e.deps.Directory.LeaveRoom(ctx, e.roomID, pid); err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}
	if !e.do(func() {
		e.detach()
		e.publish()
	}) {
		return ErrClosed
	}
	e.forgetSession(ctx, pid)
	e.logger.Info().Str("participant_id", pid).Msg("left room")
	return nil
}

func (e *Engine) persist(ctx context.Context, m *directory.Membership) {
	p := m.Participant
	s := session.New(m.Room.ID, p.ID, p.Nickname, e.deps.Clock.Now())
	if err := e.deps.Sessions.Save(ctx, s); err != nil {
		e.logger.Warn().Err(err).Msg("failed to save session")
	}
	if err := e.deps.Sessions.SaveProfile(ctx, session.Profile{Nickname: p.Nickname, Avatar: p.Avatar}); err != nil {
		e.logger.Warn().Err(err).Msg("failed to save profile")
	}
}

// CreateRequest describes a room to create.
type CreateRequest struct {
	Name        string
	Nickname    string
	Avatar      string
	DeckType    models.DeckType
	Password    string
	AutoReveal  bool
	IsSpectator bool
}

// Create creates a room and returns an engine already joined to it as the creator.
func Create(ctx context.Context, deps Deps, cfg Config, req CreateRequest) (*Engine, error) {
	nickname, err := directory.NormalizeNickname(req.Nickname)
	if err != nil {
		return nil, err
	}
	if req.DeckType == "" {
		req.DeckType = models.DeckTypeFibonacci
	}
	if err := directory.ValidateDeck(req.DeckType); err != nil {
		return nil, err
	}
	var password *string
	if req.Password != "" {
		password = &req.Password
	}

	m, err := deps.Directory.CreateRoom(ctx, directory.CreateRoomRequest{
		Name:            strings.TrimSpace(req.Name),
		CreatorNickname: nickname,
		Avatar:          req.Avatar,
		DeckType:        req.DeckType,
		Password:        password,
		AutoReveal:      req.AutoReveal,
		IsSpectator:     req.IsSpectator,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	e := New(m.Room.ID, deps, cfg)
	e.persist(ctx, m)
	e.recoverOnce.Do(func() {
		e.recovery = Recovery{Outcome: OutcomeRejoined, Membership: m}
	})
	if !e.do(func() { e.adopt(m) }) {
		return nil, ErrClosed
	}
	return e, nil
}

// ActiveSession returns the stored session if its room still exists. A
// session whose room is gone is cleared.
func ActiveSession(ctx context.Context, dir directory.Directory, store session.Store) (*session.Session, error) {
	s, err := store.Load(ctx)
	if err != nil || s == nil {
		return nil, err
	}
	if _, err := dir.GetRoomInfo(ctx, s.RoomID); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			if err := store.Clear(ctx); err != nil {
				return nil, fmt.Errorf("failed to clear session: %w", err)
			}
			return nil, nil
		}
		return s, fmt.Errorf("failed to check room: %w", err)
	}
	return s, nil
}
