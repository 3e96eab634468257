package gateway

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/NicolaBuomp/fantabid/go/internal/auction"
	"github.com/NicolaBuomp/fantabid/go/internal/models"
)

// Engine is the part of the auction engine driven by client messages.
type Engine interface {
	Join(ctx context.Context, leagueID, userID uuid.UUID, connectionID string) (auction.JoinResult, error)
	Leave(leagueID, memberID uuid.UUID, connectionID string)
	PlaceBid(ctx context.Context, leagueID, memberID uuid.UUID, amount float64) auction.BidResult
	StartItem(ctx context.Context, leagueID, memberID uuid.UUID, playerID *int64) (models.AuctionPlayer, error)
	Pause(ctx context.Context, leagueID, memberID uuid.UUID) error
	Resume(ctx context.Context, leagueID, memberID uuid.UUID) error
	Skip(ctx context.Context, leagueID, memberID uuid.UUID) error
	Rollback(ctx context.Context, leagueID, memberID uuid.UUID) (auction.RollbackResult, error)
	Heartbeat(ctx context.Context, leagueID, memberID uuid.UUID) error
}

// DefaultActionTimeout bounds the store calls behind one client message.
const DefaultActionTimeout = 10 * time.Second

// Dispatcher routes client messages to the engine and answers the sender
// directly for joins, rejected bids and failed admin actions.
type Dispatcher struct {
	ctx     context.Context
	engine  Engine
	auth    *Authenticator
	timeout time.Duration
}

func NewDispatcher(ctx context.Context, engine Engine, auth *Authenticator) *Dispatcher {
	return &Dispatcher{
		ctx:     ctx,
		engine:  engine,
		auth:    auth,
		timeout: DefaultActionTimeout,
	}
}

func (d *Dispatcher) dispatch(c *Connection, msg ClientMessage) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	switch msg.Type {
	case MsgTokenRefresh:
		d.refreshToken(c, msg)
	case MsgJoinRoom:
		d.join(ctx, c, msg)
	case MsgPlaceBid:
		d.placeBid(ctx, c, msg)
	case MsgAdminPulse:
		if leagueID, memberID, ok := c.membership(); ok {
			if err := d.engine.Heartbeat(ctx, leagueID, memberID); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("admin pulse ignored")
			}
		}
	case MsgAdminStartPlayer, MsgAdminPause, MsgAdminResume, MsgAdminSkip, MsgAdminRollback:
		d.adminAction(ctx, c, msg)
	default:
		c.sendEvent(MsgError, uuid.Nil, auction.ErrorPayload{Code: CodeUnknownType, Detail: msg.Type})
	}
}

func (d *Dispatcher) refreshToken(c *Connection, msg ClientMessage) {
	var req TokenRefreshRequest
	_ = decodeData(msg.Data, &req)

	user, err := d.auth.Verify(req.Token)
	if err == nil && user.ID != c.User().ID {
		err = ErrInvalidToken
	}
	if err != nil {
		code := authErrorCode(err)
		c.sendEvent(MsgTokenRefreshAck, uuid.Nil, TokenRefreshAck{OK: false, Error: code})
		if code == ErrInvalidToken.Error() {
			c.sendEvent(MsgAuthError, uuid.Nil, AuthErrorPayload{Error: code})
		}
		return
	}

	c.setUser(user)
	c.sendEvent(MsgTokenRefreshAck, uuid.Nil, TokenRefreshAck{OK: true})
}

func (d *Dispatcher) join(ctx context.Context, c *Connection, msg ClientMessage) {
	var req JoinRoomRequest
	if err := decodeData(msg.Data, &req); err != nil {
		c.sendEvent(auction.EventJoinError, uuid.Nil, auction.ErrorPayload{Code: CodeBadMessage})
		return
	}
	leagueID, err := uuid.Parse(req.LeagueID)
	if err != nil {
		c.sendEvent(auction.EventJoinError, uuid.Nil, auction.ErrorPayload{Code: auction.CodeRoomSourceNotFound})
		return
	}

	// A connection sits in one room at a time.
	if prevLeague, prevMember, ok := c.membership(); ok && prevLeague != leagueID {
		d.engine.Leave(prevLeague, prevMember, c.ID)
		c.clearMembership()
	}

	// Join the broadcast pool first so no event after the snapshot is missed.
	c.Manager.assign(c, leagueID)

	res, err := d.engine.Join(ctx, leagueID, c.User().ID, c.ID)
	if err != nil {
		c.Manager.detach(c, leagueID)
		payload := auction.ErrorPayload{Code: auction.CodeOf(err, auction.CodeJoinFailed)}
		if payload.Code == auction.CodeJoinFailed {
			payload.Detail = err.Error()
		}
		log.Debug().Err(err).Str("league_id", leagueID.String()).Str("connection_id", c.ID).Msg("join rejected")
		c.sendEvent(auction.EventJoinError, leagueID, payload)
		return
	}

	c.setMember(leagueID, res.MemberID)
	c.sendEvent(auction.EventServerTime, leagueID, auction.ServerTimePayload{Timestamp: res.ServerTime.UnixMilli()})
	c.sendEvent(auction.EventAuctionState, leagueID, res.State)
}

func (d *Dispatcher) placeBid(ctx context.Context, c *Connection, msg ClientMessage) {
	leagueID, memberID, ok := c.membership()
	if !ok {
		d.rejectBid(c, leagueID, auction.CodeRoomNotFound)
		return
	}

	var req PlaceBidRequest
	if err := decodeData(msg.Data, &req); err != nil {
		d.rejectBid(c, leagueID, auction.CodeTooLow)
		return
	}
	amount, err := strconv.ParseFloat(req.Amount.String(), 64)
	if err != nil {
		amount = math.NaN()
	}

	if res := d.engine.PlaceBid(ctx, leagueID, memberID, amount); !res.Accepted() {
		d.rejectBid(c, leagueID, res.Code)
	}
}

func (d *Dispatcher) rejectBid(c *Connection, leagueID uuid.UUID, code auction.Code) {
	c.sendEvent(auction.EventBidRejected, leagueID, auction.BidRejectedPayload{
		Code:    code,
		Message: auction.BidMessage(code),
	})
}

func (d *Dispatcher) adminAction(ctx context.Context, c *Connection, msg ClientMessage) {
	leagueID, memberID, ok := c.membership()
	if !ok {
		c.sendEvent(auction.EventAdminActionError, leagueID, auction.ErrorPayload{Code: auction.CodeRoomNotFound})
		return
	}

	var err error
	switch msg.Type {
	case MsgAdminStartPlayer:
		var req StartPlayerRequest
		if err := decodeData(msg.Data, &req); err != nil {
			c.sendEvent(auction.EventAdminActionError, leagueID, auction.ErrorPayload{Code: CodeBadMessage})
			return
		}
		_, err = d.engine.StartItem(ctx, leagueID, memberID, req.PlayerID)
	case MsgAdminPause:
		err = d.engine.Pause(ctx, leagueID, memberID)
	case MsgAdminResume:
		err = d.engine.Resume(ctx, leagueID, memberID)
	case MsgAdminSkip:
		err = d.engine.Skip(ctx, leagueID, memberID)
	case MsgAdminRollback:
		_, err = d.engine.Rollback(ctx, leagueID, memberID)
	}
	if err == nil {
		return
	}

	payload := auction.ErrorPayload{Code: auction.CodeOf(err, "")}
	var ae *auction.ActionError
	if errors.As(err, &ae) {
		payload.Detail = ae.Detail
	} else {
		payload.Code = "ADMIN_ACTION_FAILED"
		payload.Detail = err.Error()
		log.Error().Err(err).Str("action", msg.Type).Str("league_id", leagueID.String()).Msg("admin action failed")
	}
	c.sendEvent(auction.EventAdminActionError, leagueID, payload)
}

// disconnect releases the member's seat when the socket goes away.
func (d *Dispatcher) disconnect(c *Connection) {
	if leagueID, memberID, ok := c.membership(); ok {
		d.engine.Leave(leagueID, memberID, c.ID)
	}
}
