package engine

import (
	"slices"

	"github.com/mcdev12/planningroom/go/internal/models"
)

// mutation edits a private copy of the snapshot and returns the edit that undoes it.
type mutation func(room *models.Room) (revert func(room *models.Room))

// undo restores an optimistic edit unless an authoritative snapshot replaced it first.
type undo struct {
	op     string
	seq    uint64
	revert func(room *models.Room)
}

func setVote(participantID string, vote *string) mutation {
	return func(room *models.Room) func(*models.Room) {
		p := room.Participant(participantID)
		if p == nil {
			return nil
		}
		prevVote, prevHasVoted := copyVote(p.Vote), p.HasVoted
		p.SetVote(vote)
		return func(room *models.Room) {
			if p := room.Participant(participantID); p != nil {
				p.Vote, p.HasVoted = prevVote, prevHasVoted
			}
		}
	}
}

func reveal() mutation {
	return func(room *models.Room) func(*models.Room) {
		prev := room.IsRevealed
		room.IsRevealed = true
		return func(room *models.Room) { room.IsRevealed = prev }
	}
}

func resetRound() mutation {
	return func(room *models.Room) func(*models.Room) {
		type vote struct {
			value    *string
			hasVoted bool
		}
		prevRevealed := room.IsRevealed
		prev := make(map[string]vote, len(room.Participants))
		for _, p := range room.Participants {
			prev[p.ID] = vote{copyVote(p.Vote), p.HasVoted}
			p.SetVote(nil)
		}
		room.IsRevealed = false
		return func(room *models.Room) {
			room.IsRevealed = prevRevealed
			for _, p := range room.Participants {
				if v, ok := prev[p.ID]; ok {
					p.Vote, p.HasVoted = v.value, v.hasVoted
				}
			}
		}
	}
}

func rename(name string) mutation {
	return func(room *models.Room) func(*models.Room) {
		prev := room.Name
		room.Name = name
		return func(room *models.Room) { room.Name = prev }
	}
}

func setAutoReveal(enabled bool) mutation {
	return func(room *models.Room) func(*models.Room) {
		prev := room.AutoReveal
		room.AutoReveal = enabled
		return func(room *models.Room) { room.AutoReveal = prev }
	}
}

func setDeck(deck models.DeckType) mutation {
	return func(room *models.Room) func(*models.Room) {
		prev := room.DeckType
		room.DeckType = deck
		return func(room *models.Room) { room.DeckType = prev }
	}
}

func setProfile(participantID string, nickname, avatar *string) mutation {
	return func(room *models.Room) func(*models.Room) {
		p := room.Participant(participantID)
		if p == nil {
			return nil
		}
		prevNickname, prevAvatar := p.Nickname, p.Avatar
		if nickname != nil {
			p.Nickname = *nickname
		}
		if avatar != nil {
			p.Avatar = *avatar
		}
		return func(room *models.Room) {
			if p := room.Participant(participantID); p != nil {
				p.Nickname, p.Avatar = prevNickname, prevAvatar
			}
		}
	}
}

func removeParticipant(participantID string) mutation {
	return func(room *models.Room) func(*models.Room) {
		i := slices.IndexFunc(room.Participants, func(p *models.Participant) bool { return p.ID == participantID })
		if i < 0 {
			return nil
		}
		removed := room.Participants[i].Clone()
		room.Participants = slices.Delete(room.Participants, i, i+1)
		return func(room *models.Room) {
			if room.Participant(participantID) == nil {
				room.Participants = slices.Insert(room.Participants, min(i, len(room.Participants)), removed.Clone())
			}
		}
	}
}

func copyVote(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}
