package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/NicolaBuomp/fantabid/go/internal/auction"
)

// ConnectionManager tracks websocket connections per auction room and fans
// room events out to them. It implements auction.Notifier.
type ConnectionManager struct {
	// Connection pools organized by league ID
	rooms map[uuid.UUID]map[*Connection]bool
	all   map[*Connection]bool
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	clock    clockwork.Clock

	broadcastCh chan auction.Event
}

var _ auction.Notifier = (*ConnectionManager)(nil)

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	// MessageRate and MessageBurst bound inbound frames per connection.
	MessageRate  rate.Limit
	MessageBurst int
	CheckOrigin  func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		MessageRate:     20,
		MessageBurst:    40,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig, clock clockwork.Clock) *ConnectionManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	return &ConnectionManager{
		rooms: make(map[uuid.UUID]map[*Connection]bool),
		all:   make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		clock:       clock,
		broadcastCh: make(chan auction.Event, 1000),
	}
}

// Start processes broadcasts until ctx is cancelled, then closes every
// open connection.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case ev := <-cm.broadcastCh:
			cm.handleBroadcast(ev)
		}
	}
}

// Broadcast queues ev for every connection in the event's room.
func (cm *ConnectionManager) Broadcast(ev auction.Event) {
	select {
	case cm.broadcastCh <- ev:
	default:
		log.Warn().
			Str("league_id", ev.LeagueID.String()).
			Str("event_type", string(ev.Type)).
			Msg("broadcast channel full, dropping message")
	}
}

// upgrade turns an authenticated HTTP request into a registered connection.
func (cm *ConnectionManager) upgrade(w http.ResponseWriter, r *http.Request, user AuthUser) (*Connection, error) {
	ws, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := cm.clock.Now()
	conn := &Connection{
		ID:          uuid.New().String(),
		Conn:        ws,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: now,
		limiter:     rate.NewLimiter(cm.config.MessageRate, cm.config.MessageBurst),
		user:        user,
	}

	cm.mu.Lock()
	cm.all[conn] = true
	cm.mu.Unlock()

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", user.ID.String()).
		Msg("WebSocket connection established")
	return conn, nil
}

// assign moves conn into the pool of leagueID, leaving its previous room.
func (cm *ConnectionManager) assign(conn *Connection, leagueID uuid.UUID) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.all[conn] {
		return
	}
	cm.removeFromRoomLocked(conn)
	if cm.rooms[leagueID] == nil {
		cm.rooms[leagueID] = make(map[*Connection]bool)
	}
	cm.rooms[leagueID][conn] = true
	conn.setRoom(leagueID)

	log.Debug().
		Str("connection_id", conn.ID).
		Str("league_id", leagueID.String()).
		Int("room_connections", len(cm.rooms[leagueID])).
		Msg("connection joined room")
}

// detach takes conn out of leagueID's pool after a failed join.
func (cm *ConnectionManager) detach(conn *Connection, leagueID uuid.UUID) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if current, ok := conn.room(); ok && current == leagueID {
		cm.removeFromRoomLocked(conn)
		conn.leaveRoom()
	}
}

func (cm *ConnectionManager) removeFromRoomLocked(conn *Connection) {
	leagueID, ok := conn.room()
	if !ok {
		return
	}
	if pool, exists := cm.rooms[leagueID]; exists {
		delete(pool, conn)
		if len(pool) == 0 {
			delete(cm.rooms, leagueID)
		}
	}
}

// unregister drops conn and closes its send channel. It reports whether
// conn was still registered.
func (cm *ConnectionManager) unregister(conn *Connection) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.all[conn] {
		return false
	}
	cm.removeFromRoomLocked(conn)
	delete(cm.all, conn)
	close(conn.Send)

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.User().ID.String()).
		Msg("connection unregistered")
	return true
}

// send queues a frame for one connection. A full buffer drops the
// connection, as it is too slow to keep up.
func (cm *ConnectionManager) send(conn *Connection, data []byte) {
	cm.mu.RLock()
	registered := cm.all[conn]
	if registered {
		select {
		case conn.Send <- data:
			cm.mu.RUnlock()
			return
		default:
		}
	}
	cm.mu.RUnlock()

	if registered {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		conn.Conn.Close()
	}
}

func (cm *ConnectionManager) handleBroadcast(ev auction.Event) {
	cm.mu.RLock()
	pool := cm.rooms[ev.LeagueID]
	targets := make([]*Connection, 0, len(pool))
	for conn := range pool {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to marshal event for broadcast")
		return
	}
	for _, conn := range targets {
		cm.send(conn, data)
	}

	log.Debug().
		Str("event_type", string(ev.Type)).
		Str("league_id", ev.LeagueID.String()).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.all))
	for conn := range cm.all {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		conn.Conn.Close()
	}
}

// ConnectionStats summarises open connections.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		TotalConnections: len(cm.all),
		ActiveRooms:      len(cm.rooms),
		RoomConnections:  make(map[string]int, len(cm.rooms)),
	}
	for leagueID, pool := range cm.rooms {
		stats.RoomConnections[leagueID.String()] = len(pool)
	}
	return stats
}
