package auction

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/NicolaBuomp/fantabid/go/internal/models"
)

// Manager creates, re-hydrates and destroys rooms.
type Manager struct {
	registry *Registry
	leagues  LeagueLoader
	members  MembershipReader
	clock    clockwork.Clock
	hydrate  singleflight.Group
}

func NewManager(registry *Registry, leagues LeagueLoader, members MembershipReader, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		registry: registry,
		leagues:  leagues,
		members:  members,
		clock:    clock,
	}
}

// Registry returns the registry the manager operates on.
func (m *Manager) Registry() *Registry { return m.registry }

// InitRoom returns the live room of a league, building and hydrating it from
// the store on first use. Concurrent first joins share one hydration.
func (m *Manager) InitRoom(ctx context.Context, leagueID uuid.UUID) (*Room, error) {
	if room, ok := m.registry.Get(leagueID); ok {
		return room, nil
	}

	v, err, _ := m.hydrate.Do(leagueID.String(), func() (any, error) {
		if room, ok := m.registry.Get(leagueID); ok {
			return room, nil
		}

		league, err := m.leagues.GetLeague(ctx, leagueID)
		if err != nil {
			if errors.Is(err, ErrLeagueNotFound) {
				return nil, &ActionError{Code: CodeRoomSourceNotFound, Err: err}
			}
			return nil, fmt.Errorf("failed to load league: %w", err)
		}

		room := newRoom(league, m.clock.Now())
		if err := m.SyncMembers(ctx, room); err != nil {
			return nil, err
		}

		registered := m.registry.putIfAbsent(room)
		log.Info().
			Str("league_id", leagueID.String()).
			Int("members", len(room.members)).
			Msg("room initialized")
		return registered, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Room), nil
}

// SyncMembers re-reads approved members from the store and replaces the
// room's member cache. Only runtime fields of members already present
// (connection, connection id, last bid time) survive the merge. A read that
// finishes after a later-started sync has applied is discarded.
func (m *Manager) SyncMembers(ctx context.Context, room *Room) error {
	room.mu.Lock()
	room.syncSeq++
	seq := room.syncSeq
	room.syncing++
	room.mu.Unlock()

	rows, err := m.members.ListApprovedMembers(ctx, room.leagueID)

	room.mu.Lock()
	defer room.mu.Unlock()
	room.syncing--
	if err != nil {
		return fmt.Errorf("failed to sync members: %w", err)
	}
	if seq < room.syncApplied {
		return nil
	}
	room.syncApplied = seq
	room.members = mergeMembers(room.members, rows)
	return nil
}

func mergeMembers(previous map[uuid.UUID]*Member, rows []models.LeagueMember) map[uuid.UUID]*Member {
	next := make(map[uuid.UUID]*Member, len(rows))
	for _, row := range rows {
		member := &Member{
			MemberID:      row.ID,
			UserID:        row.UserID,
			Username:      row.Username,
			Role:          row.Role,
			BudgetCurrent: row.BudgetCurrent,
			SlotsFilled:   make(map[string]int, len(row.SlotsFilled)),
		}
		if member.Username == "" {
			member.Username = "user_" + row.UserID.String()[:8]
		}
		for role, n := range row.SlotsFilled {
			if n < 0 {
				n = 0
			}
			member.SlotsFilled[role] = n
		}
		if prev, ok := previous[row.ID]; ok {
			member.Connected = prev.Connected
			member.ConnectionID = prev.ConnectionID
			member.LastBidAt = prev.LastBidAt
		}
		next[row.ID] = member
	}
	return next
}

// DestroyRoom drops a league's room and all transient auction state.
// Destroying an absent room is a no-op.
func (m *Manager) DestroyRoom(leagueID uuid.UUID) {
	room, ok := m.registry.Get(leagueID)
	if !ok {
		return
	}
	room.mu.Lock()
	room.closed = true
	room.mu.Unlock()
	m.registry.deleteRoom(room)
	log.Info().Str("league_id", leagueID.String()).Msg("room destroyed")
}

// UpdateMemberConnection records a member's connection state. It reports
// false when the member is not part of the room.
func (m *Manager) UpdateMemberConnection(room *Room, memberID uuid.UUID, connected bool, connectionID string) bool {
	room.mu.Lock()
	defer room.mu.Unlock()
	member, ok := room.members[memberID]
	if !ok {
		return false
	}
	member.Connected = connected
	member.ConnectionID = connectionID
	return true
}

// HasConnectedMembers reports whether anyone is still connected to the room.
func (m *Manager) HasConnectedMembers(room *Room) bool {
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.hasConnectedMembers()
}
