package models

import (
	"time"
)

// Room is the shared voting container. Participants are keyed by ID; order carries no meaning.
type Room struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	IsRevealed   bool           `json:"is_revealed"`
	CreatorID    *string        `json:"creator_id,omitempty"`
	DeckType     DeckType       `json:"deck_type"`
	HasPassword  bool           `json:"has_password"`
	AutoReveal   bool           `json:"auto_reveal"`
	CreatedAt    time.Time      `json:"created_at"`
	Participants []*Participant `json:"participants"`
}

// Clone returns a deep copy of the room.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	out := *r
	if r.CreatorID != nil {
		id := *r.CreatorID
		out.CreatorID = &id
	}
	if r.Participants != nil {
		out.Participants = make([]*Participant, len(r.Participants))
		for i, p := range r.Participants {
			out.Participants[i] = p.Clone()
		}
	}
	return &out
}

// Participant returns the participant with the given ID, or nil.
func (r *Room) Participant(id string) *Participant {
	if r == nil {
		return nil
	}
	for _, p := range r.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// IsCreator reports whether participantID created the room.
func (r *Room) IsCreator(participantID string) bool {
	return r != nil && r.CreatorID != nil && *r.CreatorID == participantID
}

// Voters returns the non-spectator participants.
func (r *Room) Voters() []*Participant {
	if r == nil {
		return nil
	}
	var voters []*Participant
	for _, p := range r.Participants {
		if !p.IsSpectator {
			voters = append(voters, p)
		}
	}
	return voters
}

// AllVotersVoted reports whether every voter has voted. A room without voters never has.
func (r *Room) AllVotersVoted() bool {
	voters := r.Voters()
	if len(voters) == 0 {
		return false
	}
	for _, p := range voters {
		if !p.HasVoted {
			return false
		}
	}
	return true
}

// Stats summarises the current round for the voters in the room.
type Stats struct {
	Voted     int
	Voters    int
	Average   *int
	Consensus bool
}

// Stats computes the round summary. Average and Consensus are only filled once votes are revealed.
func (r *Room) Stats() Stats {
	voters := r.Voters()
	s := Stats{Voters: len(voters)}
	var votes []string
	for _, p := range voters {
		if p.HasVoted {
			s.Voted++
		}
		if p.Vote != nil {
			votes = append(votes, *p.Vote)
		}
	}
	if r == nil || !r.IsRevealed {
		return s
	}
	s.Average = Average(votes)
	s.Consensus = len(voters) > 0 && len(votes) == len(voters) && Consensus(votes)
	return s
}
