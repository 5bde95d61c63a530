package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/planningroom/go/internal/events"
	"github.com/mcdev12/planningroom/go/internal/realtime/wsclient"
)

func TestWebSocketHandler_EndToEnd(t *testing.T) {
	cm := startManager(t, quietConfig(), clockwork.NewFakeClock())
	mux := http.NewServeMux()
	NewWebSocketHandler(cm).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/room"
	transport := wsclient.New(endpoint, nil, wsclient.DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := transport.Dial(ctx, "r1")
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Track(ctx, "p1"))

	ev := recv(t, conn.Events())
	assert.Equal(t, events.KindPresenceSync, ev.Type)
	assert.Equal(t, []string{"p1"}, ev.ParticipantIDs)
	ev = recv(t, conn.Events())
	assert.Equal(t, events.KindPresenceJoin, ev.Type)

	require.NoError(t, cm.Notify(ctx, events.ParticipantChanged("r1", "p2", time.Now())))
	ev = recv(t, conn.Events())
	assert.Equal(t, events.KindParticipantChanged, ev.Type)
	assert.Equal(t, "p2", ev.ParticipantID)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return len(cm.Online("r1")) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketHandler_RequiresRoomID(t *testing.T) {
	cm := NewConnectionManager(quietConfig(), clockwork.NewFakeClock())
	rec := httptest.NewRecorder()
	NewWebSocketHandler(cm).HandleRoomConnection(rec, httptest.NewRequest(http.MethodGet, "/ws/room", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
