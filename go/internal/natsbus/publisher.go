package natsbus

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/planningroom/go/internal/directory"
	"github.com/mcdev12/planningroom/go/internal/events"
)

// Publisher announces room changes on NATS. Gateways in other processes pick
// them up with a Consumer.
type Publisher struct {
	nc     *nats.Conn
	config Config
}

var _ directory.Notifier = (*Publisher)(nil)

func NewPublisher(cfg Config) (*Publisher, error) {
	nc, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, config: cfg}, nil
}

// Notify publishes ev to <prefix>.<room_id>.<kind>.
func (p *Publisher) Notify(_ context.Context, ev events.Envelope) error {
	msg, err := encode(p.config.SubjectPrefix, ev)
	if err != nil {
		return err
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish to NATS: %w", err)
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("room_id", ev.RoomID).
		Msg("published room event")
	return nil
}

func (p *Publisher) Close() error {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.nc.Close()
			return fmt.Errorf("drain NATS connection: %w", err)
		}
	}
	return nil
}
