package auction

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/NicolaBuomp/fantabid/go/internal/models"
)

// Engine runs the auctions of every live room: bids, item lifecycle and
// admin actions. Store calls never happen while a room lock is held.
type Engine struct {
	cfg      Config
	rooms    *Manager
	registry *Registry
	store    Store
	notifier Notifier
	metrics  Metrics
	clock    clockwork.Clock
}

// NewEngine wires an engine. A nil notifier, metrics or clock falls back to a
// no-op notifier, NoOpMetrics and the real clock.
func NewEngine(cfg Config, registry *Registry, store Store, notifier Notifier, metrics Metrics, clock clockwork.Clock) *Engine {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		cfg:      cfg.withDefaults(),
		rooms:    NewManager(registry, store, store, clock),
		registry: registry,
		store:    store,
		notifier: notifier,
		metrics:  metrics,
		clock:    clock,
	}
}

// Rooms returns the lifecycle manager.
func (e *Engine) Rooms() *Manager { return e.rooms }

// Config returns the effective engine timings.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) broadcast(leagueID uuid.UUID, typ EventType, payload any) {
	e.notifier.Broadcast(Event{
		Type:      typ,
		LeagueID:  leagueID,
		Timestamp: e.clock.Now(),
		Payload:   payload,
	})
}

func (e *Engine) audit(ctx context.Context, entry AuditEntry) {
	if err := e.store.LogAction(ctx, entry); err != nil {
		log.Error().
			Err(err).
			Str("league_id", entry.LeagueID.String()).
			Str("action", string(entry.Action)).
			Msg("failed to write audit entry")
	}
}

// JoinResult is what a connection needs right after joining a room.
type JoinResult struct {
	MemberID   uuid.UUID
	IsAdmin    bool
	ServerTime time.Time
	State      RoomSnapshot
}

// Join connects a user to the room of a league, creating the room if needed.
func (e *Engine) Join(ctx context.Context, leagueID, userID uuid.UUID, connectionID string) (JoinResult, error) {
	synced := false
	for attempt := 0; attempt < 3; attempt++ {
		room, err := e.rooms.InitRoom(ctx, leagueID)
		if err != nil {
			var ae *ActionError
			if errors.As(err, &ae) {
				return JoinResult{}, ae
			}
			return JoinResult{}, upstreamError(CodeJoinFailed, err)
		}

		room.mu.Lock()
		if room.closed {
			// Destroyed between lookup and lock; build a fresh one.
			room.mu.Unlock()
			continue
		}
		member := room.memberByUserID(userID)
		if member == nil {
			room.mu.Unlock()
			if synced {
				return JoinResult{}, actionError(CodeNotAMember)
			}
			if err := e.rooms.SyncMembers(ctx, room); err != nil {
				return JoinResult{}, upstreamError(CodeJoinFailed, err)
			}
			synced = true
			attempt--
			continue
		}

		now := e.clock.Now()
		member.Connected = true
		member.ConnectionID = connectionID
		isAdmin := e.isAdmin(room, member)
		result := JoinResult{
			MemberID:   member.MemberID,
			IsAdmin:    isAdmin,
			ServerTime: now,
			State:      room.snapshot(),
		}
		e.broadcast(leagueID, EventMemberConnected, MemberPresencePayload{MemberID: result.MemberID})
		if isAdmin && room.observeAdmin(now) {
			e.announceRestored(leagueID)
		}
		room.mu.Unlock()

		log.Info().
			Str("league_id", leagueID.String()).
			Str("member_id", result.MemberID.String()).
			Str("connection_id", connectionID).
			Msg("member joined room")

		e.metrics.SetActiveRooms(e.registry.Len())
		return result, nil
	}
	return JoinResult{}, actionError(CodeJoinFailed)
}

// Leave marks a member's connection closed. A stale connection id (the
// member has since reconnected elsewhere) is ignored. The room is destroyed
// when nobody is left connected.
func (e *Engine) Leave(leagueID, memberID uuid.UUID, connectionID string) {
	room, ok := e.registry.Get(leagueID)
	if !ok {
		return
	}

	room.mu.Lock()
	changed := false
	if member, ok := room.members[memberID]; ok && member.ConnectionID == connectionID {
		member.Connected = false
		member.ConnectionID = ""
		changed = true
	}
	empty := !room.hasConnectedMembers()
	if empty {
		room.closed = true
	} else if changed {
		e.broadcast(leagueID, EventMemberDisconnected, MemberPresencePayload{MemberID: memberID})
	}
	room.mu.Unlock()

	if empty {
		e.registry.deleteRoom(room)
		e.metrics.SetActiveRooms(e.registry.Len())
		log.Info().Str("league_id", leagueID.String()).Msg("last member left, room destroyed")
	}
}

// State returns a snapshot of a live room.
func (e *Engine) State(leagueID uuid.UUID) (RoomSnapshot, bool) {
	room, ok := e.registry.Get(leagueID)
	if !ok {
		return RoomSnapshot{}, false
	}
	return room.Snapshot(), true
}

// LiveRooms lists the leagues that currently have a room in memory.
func (e *Engine) LiveRooms() []uuid.UUID {
	rooms := e.registry.Rooms()
	ids := make([]uuid.UUID, 0, len(rooms))
	for _, room := range rooms {
		ids = append(ids, room.leagueID)
	}
	return ids
}

// RefreshMembers re-reads the membership of a live room and pushes the new
// state to its members. It reports false when the league has no room.
func (e *Engine) RefreshMembers(ctx context.Context, leagueID uuid.UUID) (bool, error) {
	room, ok := e.registry.Get(leagueID)
	if !ok {
		return false, nil
	}
	if err := e.rooms.SyncMembers(ctx, room); err != nil {
		return true, err
	}
	room.mu.Lock()
	e.broadcast(leagueID, EventAuctionState, room.snapshot())
	room.mu.Unlock()
	return true, nil
}

func (e *Engine) isAdmin(room *Room, member *Member) bool {
	return member.IsAdmin() || member.UserID == room.adminUserID
}

// observeAdmin records admin liveness and reports whether a silence episode
// just ended. Must be called with mu held.
func (r *Room) observeAdmin(now time.Time) bool {
	r.lastAdminPulse = now
	if r.adminSilenceNotified {
		r.adminSilenceNotified = false
		return true
	}
	return false
}

// lockAdmin returns the room locked when memberID is one of its admins,
// announcing the end of an admin silence episode first. On error the room is
// returned unlocked.
func (e *Engine) lockAdmin(leagueID, memberID uuid.UUID) (*Room, *Member, error) {
	room, ok := e.registry.Get(leagueID)
	if !ok {
		return nil, nil, actionError(CodeRoomNotFound)
	}
	room.mu.Lock()
	if room.closed {
		room.mu.Unlock()
		return nil, nil, actionError(CodeRoomNotFound)
	}
	member, ok := room.members[memberID]
	if !ok {
		room.mu.Unlock()
		return nil, nil, actionError(CodeMemberNotFound)
	}
	if !e.isAdmin(room, member) {
		room.mu.Unlock()
		return nil, nil, actionError(CodeForbidden)
	}
	if room.observeAdmin(e.clock.Now()) {
		e.announceRestored(leagueID)
	}
	return room, member, nil
}

// announceRestored must be called with mu held.
func (e *Engine) announceRestored(leagueID uuid.UUID) {
	log.Info().Str("league_id", leagueID.String()).Msg("admin liveness restored")
	e.broadcast(leagueID, EventAdminRestored, struct{}{})
}

// sameItem reports whether playerID is still on the block. Must be called
// with mu held.
func (r *Room) sameItem(playerID int64) bool {
	return !r.closed && r.currentPlayer != nil && r.currentPlayer.ID == playerID
}

func playerIDPtr(p models.AuctionPlayer) *int64 {
	id := p.ID
	return &id
}
