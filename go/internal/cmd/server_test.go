package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/planningroom/go/internal/config"
	"github.com/mcdev12/planningroom/go/internal/directory"
	"github.com/mcdev12/planningroom/go/internal/directory/connectapi"
	"github.com/mcdev12/planningroom/go/internal/engine"
	"github.com/mcdev12/planningroom/go/internal/events"
	"github.com/mcdev12/planningroom/go/internal/realtime"
	"github.com/mcdev12/planningroom/go/internal/realtime/wsclient"
	"github.com/mcdev12/planningroom/go/internal/session"
)

const waitFor = 5 * time.Second

type testServer struct {
	*httptest.Server
	services *Services
	clock    clockwork.Clock
}

func startServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.Gateway.PresenceSyncInterval = 0
	clock := clockwork.NewRealClock()

	ctx, cancel := context.WithCancel(context.Background())
	services, err := setupServices(ctx, &cfg, clock)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, start := range services.runners {
		start := start
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = start(ctx)
		}()
	}

	srv := httptest.NewServer(setupServer(&cfg, services).Handler)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		wg.Wait()
		services.Close()
	})
	return &testServer{Server: srv, services: services, clock: clock}
}

func (s *testServer) gatewayURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/room"
}

func TestServer_Health(t *testing.T) {
	srv := startServer(t)

	res, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestServer_ChangesReachTheGateway(t *testing.T) {
	srv := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	api := connectapi.NewClient(srv.Client(), srv.URL)
	created, err := api.CreateRoom(ctx, directory.CreateRoomRequest{CreatorNickname: "Ann"})
	require.NoError(t, err)
	roomID := created.Room.ID

	conn, err := wsclient.New(srv.gatewayURL(), nil, wsclient.DefaultConfig()).Dial(ctx, roomID)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Track(ctx, created.Participant.ID))

	require.NoError(t, api.CastVote(ctx, created.Participant.ID, strPtr("5")))

	for {
		select {
		case ev, ok := <-conn.Events():
			require.True(t, ok, "channel closed early")
			if ev.Type == events.KindParticipantChanged {
				assert.Equal(t, created.Participant.ID, ev.ParticipantID)
				return
			}
		case <-ctx.Done():
			t.Fatal("no participant_changed event")
		}
	}
}

func TestServer_EnginesOverTheWire(t *testing.T) {
	srv := startServer(t)
	ctx := context.Background()

	rtCfg := realtime.DefaultConfig()
	rtCfg.HeartbeatInterval = 0
	engCfg := engine.DefaultConfig()
	engCfg.ResyncInterval = 0

	deps := func() engine.Deps {
		api := connectapi.NewClient(srv.Client(), srv.URL)
		transport := wsclient.New(srv.gatewayURL(), nil, wsclient.DefaultConfig())
		return engine.Deps{
			Directory:  api,
			Subscriber: realtime.NewClient(api, transport, srv.clock, rtCfg),
			Sessions:   session.NewMemoryStore(srv.clock),
			Clock:      srv.clock,
		}
	}

	ann, err := engine.Create(ctx, deps(), engCfg, engine.CreateRequest{Name: "Sprint 12", Nickname: "Ann"})
	require.NoError(t, err)
	defer ann.Close()

	bob := engine.New(ann.RoomID(), deps(), engCfg)
	defer bob.Close()
	rec, err := bob.Recover(ctx)
	require.NoError(t, err)
	require.Equal(t, engine.OutcomePromptIdentity, rec.Outcome)
	assert.Equal(t, "Sprint 12", rec.Prompt.RoomName)
	_, err = bob.Join(ctx, engine.JoinRequest{Nickname: "Bob"})
	require.NoError(t, err)
	bobID := bob.State().Self.ID

	require.Eventually(t, func() bool {
		p := ann.State().Room.Participant(bobID)
		return p != nil && p.IsOnline
	}, waitFor, 10*time.Millisecond, "ann sees bob online")

	require.NoError(t, bob.CastVote(ctx, "8"))
	require.Eventually(t, func() bool {
		return ann.State().Stats.Voted == 1
	}, waitFor, 10*time.Millisecond, "ann sees the vote")

	require.NoError(t, ann.RemoveParticipant(ctx, bobID))
	require.Eventually(t, func() bool { return bob.State().Removed }, waitFor, 10*time.Millisecond)
}

func strPtr(s string) *string { return &s }
