package natsbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/mcdev12/planningroom/go/internal/events"
)

const (
	headerEventType = "Event-Type"
	headerRoomID    = "Room-ID"
)

var errBadSubject = errors.New("subject does not match prefix")

func encode(prefix string, ev events.Envelope) (*nats.Msg, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return &nats.Msg{
		Subject: events.Subject(prefix, ev),
		Data:    data,
		Header: nats.Header{
			headerEventType: []string{string(ev.Type)},
			headerRoomID:    []string{ev.RoomID},
		},
	}, nil
}

// decode reads an envelope, filling room and kind from the subject when the
// payload leaves them empty.
func decode(prefix string, msg *nats.Msg) (events.Envelope, error) {
	roomID, kind, err := splitSubject(prefix, msg.Subject)
	if err != nil {
		return events.Envelope{}, err
	}

	var ev events.Envelope
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return events.Envelope{}, fmt.Errorf("unmarshal event: %w", err)
		}
	}
	if ev.RoomID == "" {
		ev.RoomID = roomID
	}
	if ev.Type == "" {
		ev.Type = events.Kind(kind)
	}
	return ev, nil
}

func splitSubject(prefix, subject string) (roomID, kind string, err error) {
	rest, ok := strings.CutPrefix(subject, prefix+".")
	if !ok {
		return "", "", fmt.Errorf("%w: %s", errBadSubject, subject)
	}
	roomID, kind, ok = strings.Cut(rest, ".")
	if !ok || roomID == "" || kind == "" || strings.Contains(kind, ".") {
		return "", "", fmt.Errorf("%w: %s", errBadSubject, subject)
	}
	return roomID, kind, nil
}
