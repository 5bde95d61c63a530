package natsbus

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/planningroom/go/internal/directory"
)

// Consumer forwards every room event published under the prefix to a
// Notifier, normally the local gateway's connection manager.
type Consumer struct {
	nc     *nats.Conn
	target directory.Notifier
	config Config
}

func NewConsumer(target directory.Notifier, cfg Config) (*Consumer, error) {
	nc, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, target: target, config: cfg}, nil
}

// Start subscribes and blocks until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	subject := c.config.SubjectPrefix + ".>"
	messageCh := make(chan *nats.Msg, 256)

	sub, err := c.nc.ChanSubscribe(subject, messageCh)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("subject", subject).Msg("failed to unsubscribe")
		}
	}()

	log.Info().Str("subject", subject).Msg("starting room event consumer")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("room event consumer shutting down")
			return nil
		case msg := <-messageCh:
			c.processMessage(ctx, msg)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg *nats.Msg) {
	ev, err := decode(c.config.SubjectPrefix, msg)
	if err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("failed to decode room event")
		return
	}
	if err := c.target.Notify(ctx, ev); err != nil {
		log.Warn().
			Err(err).
			Str("room_id", ev.RoomID).
			Str("event_type", string(ev.Type)).
			Msg("failed to forward room event")
	}
}

func (c *Consumer) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
}
