package models

import (
	"math"
	"strconv"
	"strings"
)

// DeckType defines the set of cards a room votes with.
type DeckType string

const (
	DeckTypeFibonacci DeckType = "fibonacci"
	DeckTypeTShirt    DeckType = "tshirt"
	DeckTypeHours     DeckType = "hours"
)

// Special cards available in every deck.
const (
	VoteUnsure = "?"
	VoteBreak  = "☕"
)

var deckValues = map[DeckType][]string{
	DeckTypeFibonacci: {"0", "1", "2", "3", "5", "8", "13", "21"},
	DeckTypeTShirt:    {"XS", "S", "M", "L", "XL", "XXL"},
	DeckTypeHours:     {"0.5h", "1h", "2h", "4h", "8h", "16h"},
}

// DefaultAvatar is used when a participant does not pick one.
const DefaultAvatar = "😀"

// Valid reports whether d is a known deck.
func (d DeckType) Valid() bool {
	_, ok := deckValues[d]
	return ok
}

// Values returns the deck's cards followed by the special cards.
func (d DeckType) Values() []string {
	vals := append([]string(nil), deckValues[d]...)
	return append(vals, VoteUnsure, VoteBreak)
}

// Allows reports whether vote is a card of this deck or a special card.
func (d DeckType) Allows(vote string) bool {
	for _, v := range d.Values() {
		if v == vote {
			return true
		}
	}
	return false
}

// ParseVoteNumber returns the numeric value of a vote, accepting an "h" suffix.
func ParseVoteNumber(vote string) (float64, bool) {
	s := strings.TrimSuffix(strings.TrimSpace(vote), "h")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Average returns the rounded mean of the numeric votes, or nil if there are none.
func Average(votes []string) *int {
	var sum float64
	var n int
	for _, v := range votes {
		if f, ok := ParseVoteNumber(v); ok {
			sum += f
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := int(math.Round(sum / float64(n)))
	return &avg
}

// Consensus reports whether every vote is identical. An empty list has no consensus.
func Consensus(votes []string) bool {
	if len(votes) == 0 {
		return false
	}
	for _, v := range votes[1:] {
		if v != votes[0] {
			return false
		}
	}
	return true
}
