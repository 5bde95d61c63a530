package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/planningroom/go/internal/directory"
)

// Outcome is how session recovery ended.
type Outcome int

const (
	// OutcomeRejoined means the stored identity was adopted without a prompt.
	OutcomeRejoined Outcome = iota
	// OutcomePromptIdentity means the caller has to ask for an identity and call Join.
	OutcomePromptIdentity
	// OutcomeRoomNotFound means the room does not exist.
	OutcomeRoomNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRejoined:
		return "rejoined"
	case OutcomePromptIdentity:
		return "prompt_identity"
	case OutcomeRoomNotFound:
		return "room_not_found"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Prompt pre-fills the identity prompt.
type Prompt struct {
	RoomID        string
	RoomName      string
	Nickname      string
	Avatar        string
	NeedsPassword bool
}

// Recovery is the result of Recover.
type Recovery struct {
	Outcome    Outcome
	Membership *directory.Membership
	Prompt     Prompt
}

// Recover decides between a silent rejoin and an identity prompt. It runs
// once per engine; later calls return the first result. State().Recovering
// stays true until it returns.
func (e *Engine) Recover(ctx context.Context) (Recovery, error) {
	e.recoverOnce.Do(func() {
		e.recovery, e.recoverErr = e.recover(ctx)
		if !e.do(func() {
			e.recovering = false
			e.publish()
		}) && e.recoverErr == nil {
			e.recoverErr = ErrClosed
		}
	})
	return e.recovery, e.recoverErr
}

func (e *Engine) recover(ctx context.Context) (Recovery, error) {
	s, err := e.deps.Sessions.Load(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("failed to load session")
	}

	if s != nil && s.RoomID == e.roomID {
		logger := e.logger.With().Str("participant_id", s.ParticipantID).Logger()
		m, err := e.deps.Directory.ReconnectToRoom(ctx, e.roomID, s.ParticipantID)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("reconnect failed, asking for identity")
		case m == nil || m.Participant == nil || m.Room == nil:
			logger.Info().Msg("stored session is no longer valid")
			if err := e.deps.Sessions.Clear(ctx); err != nil {
				logger.Warn().Err(err).Msg("failed to clear session")
			}
		default:
			e.persist(ctx, m)
			if !e.do(func() { e.adopt(m) }) {
				return Recovery{}, ErrClosed
			}
			return Recovery{Outcome: OutcomeRejoined, Membership: m}, nil
		}
	}

	return e.prompt(ctx), nil
}

func (e *Engine) prompt(ctx context.Context) Recovery {
	r := Recovery{Outcome: OutcomePromptIdentity, Prompt: Prompt{RoomID: e.roomID}}

	if p, err := e.deps.Sessions.LoadProfile(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("failed to load profile")
	} else if p != nil {
		r.Prompt.Nickname, r.Prompt.Avatar = p.Nickname, p.Avatar
	}

	info, err := e.deps.Directory.GetRoomInfo(ctx, e.roomID)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		r.Outcome = OutcomeRoomNotFound
	case err != nil:
		e.logger.Warn().Err(err).Msg("failed to get room info")
	default:
		r.Prompt.RoomName = info.Name
		r.Prompt.NeedsPassword = info.HasPassword
	}
	return r
}
