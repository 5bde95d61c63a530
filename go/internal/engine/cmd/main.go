package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/planningroom/go/internal/config"
	"github.com/mcdev12/planningroom/go/internal/directory"
	"github.com/mcdev12/planningroom/go/internal/directory/connectapi"
	"github.com/mcdev12/planningroom/go/internal/engine"
	"github.com/mcdev12/planningroom/go/internal/models"
	"github.com/mcdev12/planningroom/go/internal/realtime"
	"github.com/mcdev12/planningroom/go/internal/realtime/wsclient"
	"github.com/mcdev12/planningroom/go/internal/session"
)

type options struct {
	configPath string
	roomID     string
	create     bool
	name       string
	nickname   string
	avatar     string
	password   string
	deck       string
	autoReveal bool
	spectator  bool
	scope      string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "planningroom.yaml", "path to the YAML config file")
	flag.StringVar(&opts.roomID, "room", "", "room to join; defaults to the stored session")
	flag.BoolVar(&opts.create, "create", false, "create a new room")
	flag.StringVar(&opts.name, "name", "", "room name for -create")
	flag.StringVar(&opts.nickname, "nickname", "", "nickname; prompted when empty")
	flag.StringVar(&opts.avatar, "avatar", "", "avatar")
	flag.StringVar(&opts.password, "password", "", "room password")
	flag.StringVar(&opts.deck, "deck", string(models.DeckTypeFibonacci), "deck for -create")
	flag.BoolVar(&opts.autoReveal, "autoreveal", false, "enable auto reveal for -create")
	flag.BoolVar(&opts.spectator, "spectator", false, "join as a spectator")
	flag.StringVar(&opts.scope, "scope", "default", "session scope for the redis session store")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, os.Stdin, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("planningroom exited")
	}
}

func setupSessions(cfg *config.Config, scope string, clock clockwork.Clock) (session.Store, func(), error) {
	switch cfg.Client.SessionStore {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return session.NewRedisStore(rdb, scope, clock), func() {
			if err := rdb.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close redis client")
			}
		}, nil
	default:
		store, err := session.NewFileStore(cfg.Client.SessionDir, clock)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, in io.Reader, out io.Writer) error {
	clock := clockwork.NewRealClock()

	sessions, closeSessions, err := setupSessions(cfg, opts.scope, clock)
	if err != nil {
		return err
	}
	defer closeSessions()

	api := connectapi.NewClient(http.DefaultClient, cfg.Client.APIURL)
	transport := wsclient.New(cfg.Client.GatewayURL, nil, wsclient.DefaultConfig())
	deps := engine.Deps{
		Directory:  api,
		Subscriber: realtime.NewClient(api, transport, clock, cfg.Realtime()),
		Sessions:   sessions,
		Clock:      clock,
	}

	input := bufio.NewScanner(in)
	e, err := open(ctx, deps, cfg.Engine(), opts, input, out)
	if err != nil {
		return err
	}
	defer e.Close()

	updates, cancel := e.Watch()
	defer cancel()
	go func() {
		for st := range updates {
			render(out, st)
		}
	}()

	fmt.Fprintf(out, "joined room %s, type help for commands\n", e.RoomID())
	for input.Scan() {
		line := strings.TrimSpace(input.Text())
		if line == "help" {
			fmt.Fprintln(out, helpText)
			continue
		}
		err := execute(ctx, e, line)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			fmt.Fprintf(out, "error: %v\n", err)
		}
		if e.State().Removed {
			fmt.Fprintln(out, "you were removed from the room")
			return nil
		}
	}
	return input.Err()
}

// open returns an engine that is joined to a room: a new one with -create,
// otherwise the requested or stored room after session recovery.
func open(ctx context.Context, deps engine.Deps, cfg engine.Config, opts options, input *bufio.Scanner, out io.Writer) (*engine.Engine, error) {
	if opts.create {
		nickname := opts.nickname
		if nickname == "" {
			nickname = ask(input, out, "nickname", "")
		}
		return engine.Create(ctx, deps, cfg, engine.CreateRequest{
			Name:        opts.name,
			Nickname:    nickname,
			Avatar:      opts.avatar,
			DeckType:    models.DeckType(opts.deck),
			Password:    opts.password,
			AutoReveal:  opts.autoReveal,
			IsSpectator: opts.spectator,
		})
	}

	roomID := opts.roomID
	if roomID == "" {
		s, err := engine.ActiveSession(ctx, deps.Directory, deps.Sessions)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, errors.New("no stored session: pass -room or -create")
		}
		roomID = s.RoomID
	}

	e := engine.New(roomID, deps, cfg)
	rec, err := e.Recover(ctx)
	if err != nil {
		e.Close()
		return nil, err
	}

	switch rec.Outcome {
	case engine.OutcomeRejoined:
		return e, nil
	case engine.OutcomeRoomNotFound:
		e.Close()
		return nil, fmt.Errorf("room %s: %w", roomID, directory.ErrNotFound)
	}

	prompt := rec.Prompt
	fmt.Fprintf(out, "joining %q\n", prompt.RoomName)
	req := engine.JoinRequest{
		Nickname:    opts.nickname,
		Avatar:      opts.avatar,
		Password:    opts.password,
		IsSpectator: opts.spectator,
	}
	if req.Nickname == "" {
		req.Nickname = ask(input, out, "nickname", prompt.Nickname)
	}
	if req.Avatar == "" {
		req.Avatar = prompt.Avatar
	}
	if prompt.NeedsPassword && req.Password == "" {
		req.Password = ask(input, out, "password", "")
	}

	if _, err := e.Join(ctx, req); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// ask reads one line, returning prefill when the answer is empty.
func ask(input *bufio.Scanner, out io.Writer, label, prefill string) string {
	if prefill != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, prefill)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	if !input.Scan() {
		return prefill
	}
	if answer := strings.TrimSpace(input.Text()); answer != "" {
		return answer
	}
	return prefill
}
