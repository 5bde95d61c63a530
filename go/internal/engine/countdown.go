package engine

import (
	"errors"
	"fmt"

	"github.com/mcdev12/planningroom/go/internal/models"
)

var (
	// ErrAlreadyRevealed is returned when a reveal is requested for a revealed round.
	ErrAlreadyRevealed = errors.New("votes already revealed")
	// ErrNoVoters is returned when a reveal is requested in a room without voters.
	ErrNoVoters = errors.New("room has no voters")
)

// Phase is the state of the reveal countdown.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCountingDown
	PhaseRevealed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCountingDown:
		return "counting_down"
	case PhaseRevealed:
		return "revealed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Countdown is the externally visible countdown state.
type Countdown struct {
	Phase     Phase
	Remaining int
	// Auto is set when the running countdown was started by the auto-reveal trigger.
	Auto bool
}

// Transition is what an observation of a snapshot did to the countdown.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionStarted
	TransitionAborted
	TransitionRevealed
	TransitionNewRound
)

// countdownFSM drives the reveal countdown. It is not safe for concurrent use;
// the engine only touches it from its event loop.
type countdownFSM struct {
	seconds   int
	phase     Phase
	remaining int
	auto      bool
	// latched is set once the auto trigger fired for the current all-voted streak,
	// so a countdown whose reveal failed does not restart by itself.
	latched bool
}

func newCountdown(seconds int) *countdownFSM {
	if seconds < 1 {
		seconds = 1
	}
	return &countdownFSM{seconds: seconds}
}

func (c *countdownFSM) State() Countdown {
	return Countdown{Phase: c.phase, Remaining: c.remaining, Auto: c.auto}
}

func (c *countdownFSM) running() bool { return c.phase == PhaseCountingDown }

// Observe feeds a new room value to the machine.
func (c *countdownFSM) Observe(room *models.Room) Transition {
	if room == nil {
		return TransitionNone
	}
	if room.IsRevealed {
		if c.phase == PhaseRevealed {
			return TransitionNone
		}
		c.phase, c.remaining, c.auto, c.latched = PhaseRevealed, 0, false, false
		return TransitionRevealed
	}

	tr := TransitionNone
	if c.phase == PhaseRevealed {
		c.phase = PhaseIdle
		tr = TransitionNewRound
	}

	if room.AllVotersVoted() {
		if room.AutoReveal && !c.latched && c.phase == PhaseIdle {
			c.latched = true
			c.start(true)
			return TransitionStarted
		}
		return tr
	}

	c.latched = false
	if c.phase == PhaseCountingDown && c.auto {
		c.phase, c.remaining, c.auto = PhaseIdle, 0, false
		return TransitionAborted
	}
	return tr
}

// Request starts a manual countdown. It reports false when one is already running.
func (c *countdownFSM) Request(room *models.Room) (bool, error) {
	if room.IsRevealed || c.phase == PhaseRevealed {
		return false, ErrAlreadyRevealed
	}
	if len(room.Voters()) == 0 {
		return false, ErrNoVoters
	}
	if c.phase == PhaseCountingDown {
		return false, nil
	}
	c.start(false)
	return true, nil
}

// Tick advances a running countdown by one second and reports whether it
// reached zero, in which case the caller must reveal.
func (c *countdownFSM) Tick() bool {
	if c.phase != PhaseCountingDown {
		return false
	}
	c.remaining--
	if c.remaining > 0 {
		return false
	}
	// latched until a revealed snapshot or a broken all-voted streak, so a
	// stale unrevealed snapshot cannot start a second reveal
	c.phase, c.remaining, c.auto, c.latched = PhaseRevealed, 0, false, true
	return true
}

// Cancel stops a running countdown and forgets the auto latch.
func (c *countdownFSM) Cancel() {
	if c.phase == PhaseCountingDown {
		c.phase = PhaseIdle
	}
	c.remaining, c.auto, c.latched = 0, false, false
}

func (c *countdownFSM) start(auto bool) {
	c.phase, c.remaining, c.auto = PhaseCountingDown, c.seconds, auto
}
