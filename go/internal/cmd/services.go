package main

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/planningroom/go/internal/config"
	"github.com/mcdev12/planningroom/go/internal/dbconfig"
	"github.com/mcdev12/planningroom/go/internal/directory"
	"github.com/mcdev12/planningroom/go/internal/directory/postgres"
	"github.com/mcdev12/planningroom/go/internal/gateway"
	"github.com/mcdev12/planningroom/go/internal/natsbus"
)

type Services struct {
	Directory *directory.App
	Hub       *gateway.ConnectionManager

	runners []func(ctx context.Context) error
	closers []func()
}

// setupServices wires storage -> directory -> change fan-out -> gateway hub.
//
// Without NATS the directory notifies the local hub directly. With NATS it
// publishes to the bus and the consumer feeds the hub, so every roomd process
// sees changes made through any of them.
func setupServices(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (*Services, error) {
	s := &Services{}

	hub := gateway.NewConnectionManager(cfg.Hub(), clock)
	s.Hub = hub
	s.runners = append(s.runners, func(ctx context.Context) error {
		hub.Start(ctx)
		return nil
	})

	var fanout directory.Notifier = hub
	if busCfg, ok := cfg.Bus(); ok {
		publisher, err := natsbus.NewPublisher(busCfg)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() {
			if err := publisher.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to drain nats publisher")
			}
		})

		consumer, err := natsbus.NewConsumer(hub, busCfg)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, consumer.Close)
		s.runners = append(s.runners, consumer.Start)
		fanout = publisher
	}

	switch cfg.Server.Storage {
	case "postgres":
		dbCfg := dbconfig.NewConfigFromEnv()
		pool, err := setupDatabase(ctx, dbCfg)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)

		listenerCfg := postgres.DefaultListenerConfig()
		listenerCfg.DatabaseURL = dbCfg.DSN()
		listener, err := postgres.NewListener(pool, fanout, clock, listenerCfg)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.runners = append(s.runners, listener.Start)

		// row triggers announce every change through the listener
		s.Directory = directory.NewApp(postgres.NewRepository(pool), nil, clock)
	default:
		s.Directory = directory.NewApp(directory.NewMemoryRepository(), fanout, clock)
	}

	return s, nil
}

// Close releases connections in reverse order of setup.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
