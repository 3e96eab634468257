package auction

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/NicolaBuomp/fantabid/go/internal/models"
)

// BidResult is the outcome of a bid. Code is empty when the bid was accepted.
type BidResult struct {
	Code           Code
	Amount         int
	BidderMemberID uuid.UUID
	BidderName     string
	NewTimerEndsAt time.Time
	BidCount       int
	PlayerID       int64
}

// Accepted reports whether the bid became the leading bid.
func (r BidResult) Accepted() bool { return r.Code == "" }

func rejected(code Code) BidResult { return BidResult{Code: code} }

// ProcessBid validates a bid against the room and applies it atomically.
// Checks run in a fixed order and the first failure is returned; a rejected
// bid leaves the room untouched. It performs no I/O.
func (e *Engine) ProcessBid(leagueID, memberID uuid.UUID, amount float64) BidResult {
	return e.processBid(leagueID, memberID, amount, nil)
}

// processBid is ProcessBid with a hook run on acceptance while the room lock
// is still held, so the accepted bids of a room are announced in the order
// they were applied.
func (e *Engine) processBid(leagueID, memberID uuid.UUID, amount float64, onAccept func(res BidResult, bidder *Member)) BidResult {
	room, ok := e.registry.Get(leagueID)
	if !ok {
		return rejected(CodeRoomNotFound)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed {
		return rejected(CodeRoomNotFound)
	}
	member, ok := room.members[memberID]
	if !ok {
		return rejected(CodeMemberNotFound)
	}

	now := e.clock.Now()
	switch {
	case room.status != models.AuctionStatusActive || room.currentPlayer == nil:
		return rejected(CodeNotActive)
	case room.paused:
		return rejected(CodePaused)
	case room.timerEndsAt == nil || !now.Before(*room.timerEndsAt):
		return rejected(CodeExpired)
	case math.IsNaN(amount) || math.IsInf(amount, 0) || amount != math.Trunc(amount) || amount <= float64(room.currentBid):
		return rejected(CodeTooLow)
	case amount > float64(member.BudgetCurrent):
		return rejected(CodeInsufficientBudget)
	case !member.LastBidAt.IsZero() && now.Sub(member.LastBidAt) < e.cfg.BidSpacing:
		return rejected(CodeRateLimited)
	}

	bid := int(amount)
	room.currentBid = bid
	room.leaderID = memberID
	room.bidCount++
	deadline := now.Add(TimerDuration(room.bidCount, room.settings))
	room.timerEndsAt = &deadline
	member.LastBidAt = now

	res := BidResult{
		Amount:         bid,
		BidderMemberID: memberID,
		BidderName:     member.Username,
		NewTimerEndsAt: deadline,
		BidCount:       room.bidCount,
		PlayerID:       room.currentPlayer.ID,
	}
	if onAccept != nil {
		onAccept(res, member)
	}
	return res
}

// PlaceBid runs ProcessBid and, on acceptance, announces the new leader and
// records the bid in the audit log.
func (e *Engine) PlaceBid(ctx context.Context, leagueID, memberID uuid.UUID, amount float64) BidResult {
	var actor uuid.UUID
	res := e.processBid(leagueID, memberID, amount, func(res BidResult, bidder *Member) {
		actor = bidder.UserID
		e.broadcast(leagueID, EventBidAccepted, BidAcceptedPayload{
			Amount:         res.Amount,
			BidderMemberID: res.BidderMemberID,
			BidderName:     res.BidderName,
			NewTimerEndsAt: res.NewTimerEndsAt.UnixMilli(),
			BidCount:       res.BidCount,
		})
	})
	if !res.Accepted() {
		e.metrics.RecordBid(string(res.Code))
		log.Debug().
			Str("league_id", leagueID.String()).
			Str("member_id", memberID.String()).
			Float64("amount", amount).
			Str("code", string(res.Code)).
			Msg("bid rejected")
		return res
	}

	e.metrics.RecordBid("accepted")

	playerID := res.PlayerID
	e.audit(ctx, AuditEntry{
		LeagueID: leagueID,
		Action:   models.AuditActionBid,
		ActorID:  actor,
		PlayerID: &playerID,
		Payload: map[string]any{
			"amount":    res.Amount,
			"member_id": memberID.String(),
			"bid_count": res.BidCount,
		},
	})
	return res
}
