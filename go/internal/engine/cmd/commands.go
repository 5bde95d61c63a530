package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mcdev12/planningroom/go/internal/directory"
	"github.com/mcdev12/planningroom/go/internal/engine"
	"github.com/mcdev12/planningroom/go/internal/models"
)

var errQuit = errors.New("quit")

const helpText = `commands:
  vote <value>             cast a vote (clear to retract)
  reveal [now]             start the reveal countdown, or reveal right away
  reset                    start a new round
  rename <name>            rename the room (creator)
  autoreveal on|off        toggle auto reveal (creator)
  deck <type>              change deck: fibonacci, tshirt, hours (creator)
  profile <nickname> [avatar]
  kick <participant-id>    remove a participant (creator)
  leave                    leave the room
  quit`

// execute runs one command line against the engine. errQuit ends the session.
func execute(ctx context.Context, e *engine.Engine, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "vote":
		if len(args) != 1 {
			return errors.New("usage: vote <value>")
		}
		if args[0] == "clear" {
			return e.ClearVote(ctx)
		}
		return e.CastVote(ctx, args[0])
	case "reveal":
		if len(args) == 1 && args[0] == "now" {
			return e.Reveal(ctx)
		}
		return e.StartRevealCountdown()
	case "reset":
		return e.ResetVotes(ctx)
	case "rename":
		if len(args) == 0 {
			return errors.New("usage: rename <name>")
		}
		return e.RenameRoom(ctx, strings.Join(args, " "))
	case "autoreveal":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return errors.New("usage: autoreveal on|off")
		}
		return e.ToggleAutoReveal(ctx, args[0] == "on")
	case "deck":
		if len(args) != 1 {
			return errors.New("usage: deck <type>")
		}
		return e.ChangeDeck(ctx, models.DeckType(args[0]))
	case "profile":
		if len(args) == 0 || len(args) > 2 {
			return errors.New("usage: profile <nickname> [avatar]")
		}
		update := directory.ProfileUpdate{Nickname: &args[0]}
		if len(args) == 2 {
			update.Avatar = &args[1]
		}
		return e.UpdateProfile(ctx, update)
	case "kick":
		if len(args) != 1 {
			return errors.New("usage: kick <participant-id>")
		}
		return e.RemoveParticipant(ctx, args[0])
	case "leave":
		if err := e.Leave(ctx); err != nil {
			return err
		}
		return errQuit
	case "quit", "exit":
		return errQuit
	case "help":
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// render prints a room snapshot.
func render(w io.Writer, st engine.State) {
	if st.Room == nil {
		if st.Removed {
			fmt.Fprintln(w, "you are no longer in this room")
		}
		return
	}
	room := st.Room

	fmt.Fprintf(w, "== %s (%s) deck=%s auto_reveal=%t\n", room.Name, room.ID, room.DeckType, room.AutoReveal)

	participants := make([]*models.Participant, len(room.Participants))
	copy(participants, room.Participants)
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].JoinedAt.Before(participants[j].JoinedAt)
	})

	for _, p := range participants {
		marker := " "
		if st.Self != nil && p.ID == st.Self.ID {
			marker = "*"
		}
		status := "offline"
		if p.IsOnline {
			status = "online"
		}
		fmt.Fprintf(w, "%s %s %s [%s] %s%s\n", marker, p.Avatar, p.Nickname, status, voteLabel(room, p), roleLabel(room, p))
	}

	stats := st.Stats
	fmt.Fprintf(w, "voted %d/%d", stats.Voted, stats.Voters)
	if stats.Average != nil {
		fmt.Fprintf(w, " average=%d", *stats.Average)
	}
	if stats.Consensus {
		fmt.Fprint(w, " consensus")
	}
	if st.Countdown.Phase == engine.PhaseCountingDown {
		fmt.Fprintf(w, " revealing in %d", st.Countdown.Remaining)
	}
	fmt.Fprintln(w)
}

func voteLabel(room *models.Room, p *models.Participant) string {
	switch {
	case p.IsSpectator:
		return "spectating"
	case !p.HasVoted:
		return "-"
	case room.IsRevealed && p.Vote != nil:
		return *p.Vote
	default:
		return "voted"
	}
}

func roleLabel(room *models.Room, p *models.Participant) string {
	if room.IsCreator(p.ID) {
		return " (creator)"
	}
	return ""
}
