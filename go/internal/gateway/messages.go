package gateway

import (
	"encoding/json"

	"github.com/NicolaBuomp/fantabid/go/internal/auction"
)

// Inbound message types.
const (
	MsgJoinRoom         = "join_room"
	MsgAdminPulse       = "admin_pulse"
	MsgPlaceBid         = "place_bid"
	MsgAdminStartPlayer = "admin_start_player"
	MsgAdminPause       = "admin_pause"
	MsgAdminResume      = "admin_resume"
	MsgAdminSkip        = "admin_skip"
	MsgAdminRollback    = "admin_rollback"
	MsgTokenRefresh     = "token_refresh"
)

// Outbound message types that only exist at the gateway.
const (
	MsgTokenRefreshAck auction.EventType = "token_refresh_ack"
	MsgAuthError       auction.EventType = "auth_error"
	MsgError           auction.EventType = "error"
)

// Gateway-level error codes.
const (
	CodeBadMessage      = "BAD_MESSAGE"
	CodeUnknownType     = "UNKNOWN_MESSAGE_TYPE"
	CodeTooManyMessages = "TOO_MANY_MESSAGES"
)

// ClientMessage is the envelope of every inbound frame.
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type JoinRoomRequest struct {
	LeagueID string `json:"leagueId"`
}

type PlaceBidRequest struct {
	Amount json.Number `json:"amount"`
}

type StartPlayerRequest struct {
	PlayerID *int64 `json:"playerId,omitempty"`
}

type TokenRefreshRequest struct {
	Token string `json:"token"`
}

type TokenRefreshAck struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type AuthErrorPayload struct {
	Error string `json:"error"`
}

// decodeData unmarshals the data field, treating a missing one as {}.
func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
