package gateway

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/planningroom/go/internal/directory"
	"github.com/mcdev12/planningroom/go/internal/events"
)

// ErrBroadcastFull is returned by Notify when the broadcast queue is full.
var ErrBroadcastFull = errors.New("broadcast channel full")

// ConnectionManager fans room events out to connected clients and keeps
// per-room presence: which participants have at least one open connection.
type ConnectionManager struct {
	// Connection pools organized by room ID
	roomConnections map[string]map[*Connection]bool
	// Open connections per tracked participant, by room ID
	presence map[string]map[string]int
	mu       sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	// Connection configuration
	config ConnectionConfig
	clock  clockwork.Clock

	// Event broadcasting
	broadcastCh chan BroadcastMessage
}

var _ directory.Notifier = (*ConnectionManager)(nil)

// Connection is one client channel. Conn is nil for in-process connections.
type Connection struct {
	ID            string
	RoomID        string
	ParticipantID string
	Conn          *websocket.Conn
	Send          chan events.Envelope
	Manager       *ConnectionManager

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for client connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	// PresenceSyncInterval re-broadcasts the full presence list to every room; 0 disables it
	PresenceSyncInterval time.Duration
	CheckOrigin          func(r *http.Request) bool
}

// BroadcastMessage is a message for every connection in a room, or for Target only
type BroadcastMessage struct {
	RoomID string
	Event  events.Envelope
	Target *Connection
}

// DefaultConnectionConfig returns default connection configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:         10 * time.Second,
		ReadTimeout:          60 * time.Second,
		PingInterval:         30 * time.Second,
		MaxMessageSize:       1024, // track messages only
		ReadBufferSize:       1024,
		WriteBufferSize:      1024,
		SendBufferSize:       256,
		PresenceSyncInterval: 30 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(config ConnectionConfig, clock clockwork.Clock) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]bool),
		presence:        make(map[string]map[string]int),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		clock:       clock,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start processes broadcasts until ctx is done
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	var syncCh <-chan time.Time
	if cm.config.PresenceSyncInterval > 0 {
		ticker := cm.clock.NewTicker(cm.config.PresenceSyncInterval)
		defer ticker.Stop()
		syncCh = ticker.Chan()
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		case <-syncCh:
			cm.syncAllRooms()
		}
	}
}

// Register opens an in-process connection to a room.
func (cm *ConnectionManager) Register(roomID string) *Connection {
	now := cm.clock.Now()
	c := &Connection{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		Send:        make(chan events.Envelope, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: now,
	}
	cm.registerConnection(c)
	return c
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roomConnections[conn.RoomID] == nil {
		cm.roomConnections[conn.RoomID] = make(map[*Connection]bool)
	}
	cm.roomConnections[conn.RoomID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_id", conn.RoomID).
		Int("total_connections", len(cm.roomConnections[conn.RoomID])).
		Msg("connection registered")
}

// Unregister closes a connection's send channel and drops its presence.
// The last connection of a participant leaving broadcasts a presence leave.
func (cm *ConnectionManager) Unregister(conn *Connection) {
	cm.mu.Lock()
	connections, exists := cm.roomConnections[conn.RoomID]
	if !exists || !connections[conn] {
		cm.mu.Unlock()
		return
	}
	delete(connections, conn)
	close(conn.Send)
	if len(connections) == 0 {
		delete(cm.roomConnections, conn.RoomID)
	}
	left := cm.untrackLocked(conn)
	cm.mu.Unlock()

	log.Info().
		Str("connection_id", conn.ID).
		Str("participant_id", conn.ParticipantID).
		Str("room_id", conn.RoomID).
		Msg("connection unregistered")

	if left != "" {
		cm.BroadcastToRoom(conn.RoomID, events.Envelope{
			Type:          events.KindPresenceLeave,
			RoomID:        conn.RoomID,
			ParticipantID: left,
			Timestamp:     cm.clock.Now().UTC(),
		})
	}
}

// Track marks the connection as carrying participantID. The connection gets
// the full presence list; the room gets a join if this is the participant's
// first connection.
func (cm *ConnectionManager) Track(conn *Connection, participantID string) {
	if participantID == "" {
		return
	}

	cm.mu.Lock()
	if !cm.roomConnections[conn.RoomID][conn] {
		cm.mu.Unlock()
		return
	}
	var left string
	joined := false
	if conn.ParticipantID != participantID {
		left = cm.untrackLocked(conn)
		conn.ParticipantID = participantID
		if cm.presence[conn.RoomID] == nil {
			cm.presence[conn.RoomID] = make(map[string]int)
		}
		cm.presence[conn.RoomID][participantID]++
		joined = cm.presence[conn.RoomID][participantID] == 1
	}
	snapshot := cm.presenceSyncLocked(conn.RoomID)
	cm.mu.Unlock()

	now := cm.clock.Now().UTC()
	if left != "" {
		cm.BroadcastToRoom(conn.RoomID, events.Envelope{Type: events.KindPresenceLeave, RoomID: conn.RoomID, ParticipantID: left, Timestamp: now})
	}
	cm.enqueue(BroadcastMessage{RoomID: conn.RoomID, Event: snapshot, Target: conn})
	if joined {
		log.Debug().Str("room_id", conn.RoomID).Str("participant_id", participantID).Msg("participant online")
		cm.BroadcastToRoom(conn.RoomID, events.Envelope{Type: events.KindPresenceJoin, RoomID: conn.RoomID, ParticipantID: participantID, Timestamp: now})
	}
}

// untrackLocked drops conn's participant from presence and returns it if that
// was its last connection. cm.mu must be held.
func (cm *ConnectionManager) untrackLocked(conn *Connection) string {
	pid := conn.ParticipantID
	if pid == "" {
		return ""
	}
	room := cm.presence[conn.RoomID]
	if room == nil {
		return ""
	}
	room[pid]--
	if room[pid] > 0 {
		return ""
	}
	delete(room, pid)
	if len(room) == 0 {
		delete(cm.presence, conn.RoomID)
	}
	return pid
}

func (cm *ConnectionManager) presenceSyncLocked(roomID string) events.Envelope {
	ids := make([]string, 0, len(cm.presence[roomID]))
	for id := range cm.presence[roomID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return events.Envelope{
		Type:           events.KindPresenceSync,
		RoomID:         roomID,
		ParticipantIDs: ids,
		Timestamp:      cm.clock.Now().UTC(),
	}
}

// Online returns the participants with an open connection to roomID.
func (cm *ConnectionManager) Online(roomID string) []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.presenceSyncLocked(roomID).ParticipantIDs
}

// Notify forwards a change notification to the room's connections.
func (cm *ConnectionManager) Notify(_ context.Context, ev events.Envelope) error {
	if !cm.enqueue(BroadcastMessage{RoomID: ev.RoomID, Event: ev}) {
		return ErrBroadcastFull
	}
	return nil
}

// BroadcastToRoom sends an event to all connections for a room
func (cm *ConnectionManager) BroadcastToRoom(roomID string, ev events.Envelope) {
	cm.enqueue(BroadcastMessage{RoomID: roomID, Event: ev})
}

func (cm *ConnectionManager) enqueue(message BroadcastMessage) bool {
	select {
	case cm.broadcastCh <- message:
		return true
	default:
		log.Warn().
			Str("room_id", message.RoomID).
			Str("event_type", string(message.Event.Type)).
			Msg("broadcast channel full, dropping message")
		return false
	}
}

func (cm *ConnectionManager) syncAllRooms() {
	cm.mu.RLock()
	syncs := make([]events.Envelope, 0, len(cm.roomConnections))
	for roomID := range cm.roomConnections {
		syncs = append(syncs, cm.presenceSyncLocked(roomID))
	}
	cm.mu.RUnlock()

	for _, ev := range syncs {
		cm.handleBroadcast(BroadcastMessage{RoomID: ev.RoomID, Event: ev})
	}
}

// handleBroadcast delivers a message. Connections whose buffer is full are dropped;
// their client reconnects and re-fetches.
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	var slow []*Connection
	delivered := 0

	cm.mu.RLock()
	for conn := range cm.roomConnections[message.RoomID] {
		if message.Target != nil && conn != message.Target {
			continue
		}
		select {
		case conn.Send <- message.Event:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("participant_id", conn.ParticipantID).
			Msg("connection send buffer full, closing connection")
		cm.Unregister(conn)
		if conn.Conn != nil {
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("room_id", message.RoomID).
		Int("connections", delivered).
		Msg("event broadcasted")
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	totalConnections := 0
	roomCounts := make(map[string]int)
	for roomID, connections := range cm.roomConnections {
		totalConnections += len(connections)
		roomCounts[roomID] = len(connections)
	}

	return map[string]interface{}{
		"total_connections": totalConnections,
		"active_rooms":      len(cm.roomConnections),
		"room_connections":  roomCounts,
	}
}
