package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/NicolaBuomp/fantabid/go/internal/auction"
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
	limiter     *rate.Limiter

	mu       sync.Mutex
	user     AuthUser
	leagueID uuid.UUID
	inRoom   bool
	memberID uuid.UUID
	joined   bool
}

func (c *Connection) User() AuthUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

func (c *Connection) setUser(u AuthUser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = u
}

func (c *Connection) setRoom(leagueID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.leagueID != leagueID {
		c.joined = false
		c.memberID = uuid.Nil
	}
	c.leagueID = leagueID
	c.inRoom = true
}

func (c *Connection) leaveRoom() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inRoom = false
	c.joined = false
	c.memberID = uuid.Nil
}

func (c *Connection) room() (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leagueID, c.inRoom
}

// membership returns the room and member this connection joined as.
func (c *Connection) membership() (leagueID, memberID uuid.UUID, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leagueID, c.memberID, c.joined
}

func (c *Connection) setMember(leagueID, memberID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.leagueID != leagueID {
		return
	}
	c.memberID = memberID
	c.joined = true
}

func (c *Connection) clearMembership() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = false
	c.memberID = uuid.Nil
}

// sendEvent writes a message to this connection only.
func (c *Connection) sendEvent(typ auction.EventType, leagueID uuid.UUID, payload any) {
	data, err := json.Marshal(auction.Event{
		Type:      typ,
		LeagueID:  leagueID,
		Timestamp: c.Manager.clock.Now(),
		Payload:   payload,
	})
	if err != nil {
		log.Error().Err(err).Str("event_type", string(typ)).Msg("failed to marshal direct message")
		return
	}
	c.Manager.send(c, data)
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	cfg := c.Manager.config
	ticker := c.Manager.clock.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				// Channel was closed
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.Chan():
			_ = c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads frames until the socket fails, then releases the member's
// seat in its room.
func (c *Connection) readPump(d *Dispatcher) {
	cfg := c.Manager.config
	defer func() {
		d.disconnect(c)
		c.Manager.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(cfg.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			return
		}
		_ = c.Conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))

		if !c.limiter.Allow() {
			c.sendEvent(MsgError, uuid.Nil, auction.ErrorPayload{Code: CodeTooManyMessages})
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.Type == "" {
			c.sendEvent(MsgError, uuid.Nil, auction.ErrorPayload{Code: CodeBadMessage})
			continue
		}
		d.dispatch(c, msg)
	}
}
