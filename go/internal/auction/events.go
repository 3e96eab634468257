package auction

import (
	"time"

	"github.com/google/uuid"

	"github.com/NicolaBuomp/fantabid/go/internal/models"
)

// EventType is the wire name of an outbound room notification.
type EventType string

const (
	EventAuctionState       EventType = "auction_state"
	EventServerTime         EventType = "server_time"
	EventItemStarted        EventType = "new_player_on_auction"
	EventBidAccepted        EventType = "bid_update"
	EventBidRejected        EventType = "bid_error"
	EventItemSold           EventType = "player_sold"
	EventItemSkipped        EventType = "player_skipped"
	EventAuctionPaused      EventType = "auction_paused"
	EventAuctionResumed     EventType = "auction_resumed"
	EventRollbackApplied    EventType = "rollback_executed"
	EventAdminSilent        EventType = "admin_disconnected"
	EventAdminRestored      EventType = "admin_reconnected"
	EventMemberConnected    EventType = "member_connected"
	EventMemberDisconnected EventType = "member_disconnected"
	EventAdminActionError   EventType = "admin_error"
	EventJoinError          EventType = "join_error"
)

// Event is a notification for the members of one room.
type Event struct {
	Type      EventType `json:"type"`
	LeagueID  uuid.UUID `json:"leagueId"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"data"`
}

// Notifier delivers room events to every connected member of the room.
// The engine calls it with the room lock held so a room's events arrive in
// the order they were applied. Implementations must not block and must not
// call back into the engine.
type Notifier interface {
	Broadcast(ev Event)
}

// Notifiers fans events out to several notifiers.
type Notifiers []Notifier

func (ns Notifiers) Broadcast(ev Event) {
	for _, n := range ns {
		n.Broadcast(ev)
	}
}

type nopNotifier struct{}

func (nopNotifier) Broadcast(Event) {}

// ServerTimePayload gives clients a clock reference in epoch milliseconds.
type ServerTimePayload struct {
	Timestamp int64 `json:"timestamp"`
}

type ItemStartedPayload struct {
	Player      models.AuctionPlayer `json:"player"`
	TimerEndsAt int64                `json:"timerEndsAt"`
	MinBid      int                  `json:"minBid"`
}

type BidAcceptedPayload struct {
	Amount         int       `json:"amount"`
	BidderMemberID uuid.UUID `json:"bidderMemberId"`
	BidderName     string    `json:"bidderName"`
	NewTimerEndsAt int64     `json:"newTimerEndsAt"`
	BidCount       int       `json:"bidCount"`
}

type BidRejectedPayload struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

type ItemSoldPayload struct {
	Player         models.AuctionPlayer `json:"player"`
	WinnerMemberID uuid.UUID            `json:"winnerMemberId"`
	WinnerName     string               `json:"winnerName"`
	Price          int                  `json:"price"`
}

type ItemSkippedPayload struct {
	Player models.AuctionPlayer `json:"player"`
}

type AuctionPausedPayload struct {
	Reason      models.PauseReason `json:"reason,omitempty"`
	RemainingMs *int64             `json:"remainingMs"`
}

type AuctionResumedPayload struct {
	NewTimerEndsAt *int64 `json:"newTimerEndsAt"`
}

type RollbackAppliedPayload struct {
	Members          []MemberView `json:"members"`
	RestoredPlayerID *int64       `json:"restoredPlayerId"`
}

type MemberPresencePayload struct {
	MemberID uuid.UUID `json:"memberId"`
}

type ErrorPayload struct {
	Code   Code   `json:"code"`
	Detail string `json:"detail,omitempty"`
}

func millis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func durationMillis(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	ms := d.Milliseconds()
	return &ms
}
