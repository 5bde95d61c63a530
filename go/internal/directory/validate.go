package directory

import (
	"strings"
	"unicode/utf8"

	"github.com/mcdev12/planningroom/go/internal/models"
)

// MaxNicknameLength is the longest nickname accepted, in characters.
const MaxNicknameLength = 20

// NormalizeNickname trims the nickname and checks its length.
func NormalizeNickname(nickname string) (string, error) {
	n := strings.TrimSpace(nickname)
	if n == "" {
		return "", invalid("nickname", "required")
	}
	if utf8.RuneCountInString(n) > MaxNicknameLength {
		return "", invalid("nickname", "too long")
	}
	return n, nil
}

// ValidateRoomID rejects an empty room id.
func ValidateRoomID(roomID string) error {
	if strings.TrimSpace(roomID) == "" {
		return invalid("room_id", "required")
	}
	return nil
}

// ValidateDeck rejects unknown deck types.
func ValidateDeck(deck models.DeckType) error {
	if !deck.Valid() {
		return invalid("deck_type", "unknown deck "+string(deck))
	}
	return nil
}

// ValidateVote rejects a vote that is not a card of the deck.
func ValidateVote(deck models.DeckType, vote *string) error {
	if vote == nil {
		return nil
	}
	if !deck.Allows(*vote) {
		return invalid("vote", "not in deck")
	}
	return nil
}

// DefaultRoomName is used when a room is created without a name.
func DefaultRoomName(nickname string) string {
	return nickname + "'s Room"
}

func avatarOrDefault(avatar string) string {
	if strings.TrimSpace(avatar) == "" {
		return models.DefaultAvatar
	}
	return avatar
}
