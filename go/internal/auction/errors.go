package auction

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable rejection or failure code sent to clients.
type Code string

// Bid rejection codes, in validation order.
const (
	CodeRoomNotFound       Code = "ROOM_NOT_FOUND"
	CodeMemberNotFound     Code = "MEMBER_NOT_FOUND"
	CodeNotActive          Code = "NOT_ACTIVE"
	CodePaused             Code = "PAUSED"
	CodeExpired            Code = "EXPIRED"
	CodeTooLow             Code = "TOO_LOW"
	CodeInsufficientBudget Code = "INSUFFICIENT_BUDGET"
	CodeRateLimited        Code = "RATE_LIMITED"
)

// Join and admin action codes.
const (
	CodeRoomSourceNotFound Code = "ROOM_SOURCE_NOT_FOUND"
	CodeNotAMember         Code = "NOT_A_MEMBER"
	CodeJoinFailed         Code = "JOIN_FAILED"
	CodeForbidden          Code = "FORBIDDEN_ADMIN_ONLY"
	CodeNotIdle            Code = "NOT_IDLE"
	CodeSaleInProgress     Code = "SALE_IN_PROGRESS"
	CodeAuctionInProgress  Code = "AUCTION_IN_PROGRESS"
	CodeNoCurrentPlayer    Code = "NO_CURRENT_PLAYER"
	CodePlayerNotFound     Code = "PLAYER_NOT_FOUND"
	CodePlayerNotAvailable Code = "PLAYER_NOT_AVAILABLE"
	CodeNoPlayersAvailable Code = "NO_PLAYERS_AVAILABLE"
	CodeAlreadyPaused      Code = "ALREADY_PAUSED"
	CodeNotPaused          Code = "NOT_PAUSED"
	CodeStartFailed        Code = "START_PLAYER_FAILED"
	CodeSkipFailed         Code = "SKIP_FAILED"
	CodeRollbackFailed     Code = "ROLLBACK_FAILED"
	CodeNothingToRollback  Code = "NOTHING_TO_ROLLBACK"
	CodeSyncFailed         Code = "SYNC_MEMBERS_FAILED"
)

var bidMessages = map[Code]string{
	CodeRoomNotFound:       "Room not found.",
	CodeMemberNotFound:     "Member not found in room.",
	CodeNotActive:          "Auction is not active.",
	CodePaused:             "Auction is paused.",
	CodeExpired:            "Auction timer already expired.",
	CodeTooLow:             "Bid must be greater than current bid.",
	CodeInsufficientBudget: "Insufficient budget.",
	CodeRateLimited:        "Too many bids. Try again in a moment.",
}

// BidMessage returns the human-readable text shown for a bid rejection.
func BidMessage(code Code) string {
	if msg, ok := bidMessages[code]; ok {
		return msg
	}
	return "Bid rejected."
}

// Store-level sentinels. Store implementations return these (possibly wrapped)
// so the engine can tell not-found conditions from upstream failures.
var (
	ErrLeagueNotFound = errors.New("league not found")
	ErrPlayerNotFound = errors.New("player not found")
	ErrNoPlayers      = errors.New("no available players")
)

// ActionError is returned by admin actions and joins. Code is safe to show to
// clients; Detail carries upstream diagnostics when there are any.
type ActionError struct {
	Code   Code
	Detail string
	Err    error
}

func (e *ActionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Detail)
	}
	return string(e.Code)
}

func (e *ActionError) Unwrap() error { return e.Err }

func actionError(code Code) *ActionError {
	return &ActionError{Code: code}
}

func upstreamError(code Code, err error) *ActionError {
	return &ActionError{Code: code, Detail: err.Error(), Err: err}
}

// CodeOf extracts the client-facing code from err, defaulting to fallback.
func CodeOf(err error, fallback Code) Code {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return fallback
}
