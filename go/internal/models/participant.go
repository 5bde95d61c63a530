package models

import "time"

// Participant is one identity within a room.
// IsOnline is derived from presence on the client and is not stored by the directory.
type Participant struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	Nickname    string    `json:"nickname"`
	Avatar      string    `json:"avatar"`
	Vote        *string   `json:"vote,omitempty"`
	HasVoted    bool      `json:"has_voted"`
	IsOnline    bool      `json:"is_online"`
	IsSpectator bool      `json:"is_spectator"`
	JoinedAt    time.Time `json:"joined_at"`
	LastSeen    time.Time `json:"last_seen"`
}

// Clone returns a deep copy of the participant.
func (p *Participant) Clone() *Participant {
	if p == nil {
		return nil
	}
	out := *p
	if p.Vote != nil {
		v := *p.Vote
		out.Vote = &v
	}
	return &out
}

// SetVote records a vote, keeping HasVoted consistent with Vote.
func (p *Participant) SetVote(vote *string) {
	if vote == nil {
		p.Vote = nil
		p.HasVoted = false
		return
	}
	v := *vote
	p.Vote = &v
	p.HasVoted = true
}
