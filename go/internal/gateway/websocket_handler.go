package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler authenticates and upgrades auction connections.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	dispatcher        *Dispatcher
	auth              *Authenticator
}

func NewWebSocketHandler(cm *ConnectionManager, dispatcher *Dispatcher, auth *Authenticator) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		dispatcher:        dispatcher,
		auth:              auth,
	}
}

// HandleAuctionConnection verifies the access token before upgrading. The
// client then sends join_room to enter a league's room.
func (h *WebSocketHandler) HandleAuctionConnection(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Verify(requestToken(r))
	if err != nil {
		log.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket handshake rejected")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": authErrorCode(err)})
		return
	}

	conn, err := h.connectionManager.upgrade(w, r, user)
	if err != nil {
		// The upgrader has already replied to the client.
		log.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to upgrade WebSocket connection")
		return
	}

	go conn.writePump()
	go conn.readPump(h.dispatcher)
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}
