package auction

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/NicolaBuomp/fantabid/go/internal/models"
)

// ------------------------
// Fake Store
// ------------------------

// FakeStore is a programmable Store. Unset funcs fall back to an in-memory
// league with the members in Members and the players in Players.
type FakeStore struct {
	mu sync.Mutex

	League  models.League
	Members []models.LeagueMember
	Players []models.AuctionPlayer
	Audit   []AuditEntry
	Sales   []SaleRequest

	GetLeagueFunc           func(ctx context.Context, leagueID uuid.UUID) (models.League, error)
	ListApprovedMembersFunc func(ctx context.Context, leagueID uuid.UUID) ([]models.LeagueMember, error)
	SetPlayerStatusFunc     func(ctx context.Context, leagueID uuid.UUID, playerID int64, status models.PlayerStatus) error
	SellPlayerFunc          func(ctx context.Context, req SaleRequest) (SaleResult, error)
	RollbackLastSaleFunc    func(ctx context.Context, leagueID, actorID uuid.UUID) (RollbackResult, error)
}

func (f *FakeStore) GetLeague(ctx context.Context, leagueID uuid.UUID) (models.League, error) {
	if f.GetLeagueFunc != nil {
		return f.GetLeagueFunc(ctx, leagueID)
	}
	if leagueID != f.League.ID {
		return models.League{}, ErrLeagueNotFound
	}
	return f.League, nil
}

func (f *FakeStore) ListApprovedMembers(ctx context.Context, leagueID uuid.UUID) ([]models.LeagueMember, error) {
	if f.ListApprovedMembersFunc != nil {
		return f.ListApprovedMembersFunc(ctx, leagueID)
	}
	return f.storedMembers(), nil
}

// storedMembers deep-copies the member rows as a read would return them.
func (f *FakeStore) storedMembers() []models.LeagueMember {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.LeagueMember, len(f.Members))
	for i, m := range f.Members {
		out[i] = m
		out[i].SlotsFilled = make(map[string]int, len(m.SlotsFilled))
		for k, v := range m.SlotsFilled {
			out[i].SlotsFilled[k] = v
		}
	}
	return out
}

func (f *FakeStore) GetPlayer(_ context.Context, _ uuid.UUID, playerID int64) (models.AuctionPlayer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.Players {
		if p.ID == playerID {
			return p, nil
		}
	}
	return models.AuctionPlayer{}, ErrPlayerNotFound
}

func (f *FakeStore) NextAvailablePlayer(_ context.Context, _ uuid.UUID) (models.AuctionPlayer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.Players {
		if p.Status == models.PlayerStatusAvailable {
			return p, nil
		}
	}
	return models.AuctionPlayer{}, ErrNoPlayers
}

func (f *FakeStore) SetPlayerStatus(ctx context.Context, leagueID uuid.UUID, playerID int64, status models.PlayerStatus) error {
	if f.SetPlayerStatusFunc != nil {
		return f.SetPlayerStatusFunc(ctx, leagueID, playerID, status)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.Players {
		if f.Players[i].ID == playerID {
			f.Players[i].Status = status
		}
	}
	return nil
}

func (f *FakeStore) SellPlayer(ctx context.Context, req SaleRequest) (SaleResult, error) {
	f.mu.Lock()
	f.Sales = append(f.Sales, req)
	f.mu.Unlock()
	if f.SellPlayerFunc != nil {
		return f.SellPlayerFunc(ctx, req)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var budget int
	for i := range f.Members {
		if f.Members[i].ID == req.WinnerMemberID {
			f.Members[i].BudgetCurrent -= req.Price
			if f.Members[i].SlotsFilled == nil {
				f.Members[i].SlotsFilled = map[string]int{}
			}
			f.Members[i].SlotsFilled[req.PlayerRole]++
			budget = f.Members[i].BudgetCurrent
		}
	}
	for i := range f.Players {
		if f.Players[i].ID == req.PlayerID {
			f.Players[i].Status = models.PlayerStatusSold
		}
	}
	return SaleResult{NewBudget: &budget}, nil
}

func (f *FakeStore) RollbackLastSale(ctx context.Context, leagueID, actorID uuid.UUID) (RollbackResult, error) {
	if f.RollbackLastSaleFunc != nil {
		return f.RollbackLastSaleFunc(ctx, leagueID, actorID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Sales) == 0 {
		return RollbackResult{Success: false, Reason: "NO_SALE_TO_ROLLBACK"}, nil
	}
	last := f.Sales[len(f.Sales)-1]
	f.Sales = f.Sales[:len(f.Sales)-1]
	for i := range f.Members {
		if f.Members[i].ID == last.WinnerMemberID {
			f.Members[i].BudgetCurrent += last.Price
			f.Members[i].SlotsFilled[last.PlayerRole]--
			if f.Members[i].SlotsFilled[last.PlayerRole] <= 0 {
				delete(f.Members[i].SlotsFilled, last.PlayerRole)
			}
		}
	}
	for i := range f.Players {
		if f.Players[i].ID == last.PlayerID {
			f.Players[i].Status = models.PlayerStatusAvailable
		}
	}
	id := last.PlayerID
	return RollbackResult{Success: true, RestoredPlayerID: &id}, nil
}

func (f *FakeStore) LogAction(_ context.Context, entry AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Audit = append(f.Audit, entry)
	return nil
}

func (f *FakeStore) auditActions() []models.AuditAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.AuditAction, 0, len(f.Audit))
	for _, e := range f.Audit {
		out = append(out, e.Action)
	}
	return out
}

func (f *FakeStore) playerStatus(id int64) models.PlayerStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.Players {
		if p.ID == id {
			return p.Status
		}
	}
	return ""
}

// ------------------------
// Recording Notifier
// ------------------------

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event

	// yield gives other goroutines a chance to run before each event is
	// recorded, widening any window between applying and announcing.
	yield bool
}

func (n *recordingNotifier) Broadcast(ev Event) {
	if n.yield {
		runtime.Gosched()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) count(typ EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, ev := range n.events {
		if ev.Type == typ {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) all(typ EventType) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Event
	for _, ev := range n.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (n *recordingNotifier) last(typ EventType) (Event, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.events) - 1; i >= 0; i-- {
		if n.events[i].Type == typ {
			return n.events[i], true
		}
	}
	return Event{}, false
}

// ------------------------
// Fixture
// ------------------------

var t0 = time.Date(2025, 9, 1, 20, 0, 0, 0, time.UTC)

type fixture struct {
	store    *FakeStore
	notifier *recordingNotifier
	clock    *clockwork.FakeClock
	engine   *Engine

	leagueID uuid.UUID
	admin    models.LeagueMember
	alice    models.LeagueMember
	bob      models.LeagueMember
}

func testSettings() models.LeagueSettings {
	return models.LeagueSettings{
		TimerSeconds:      15,
		TimerDecayEnabled: true,
		TimerDecayRules: []models.DecayRule{
			{FromBid: 1, ToBid: 3, Seconds: 15},
			{FromBid: 4, ToBid: 8, Seconds: 10},
		},
		MinStartBid: 1,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	leagueID := uuid.New()
	adminUser := uuid.New()
	admin := models.LeagueMember{ID: uuid.New(), UserID: adminUser, Username: "admin", Role: models.MemberRoleAdmin, Status: models.MemberStatusApproved, BudgetCurrent: 500, SlotsFilled: map[string]int{}}
	alice := models.LeagueMember{ID: uuid.New(), UserID: uuid.New(), Username: "alice", Role: models.MemberRoleUser, Status: models.MemberStatusApproved, BudgetCurrent: 100, SlotsFilled: map[string]int{}}
	bob := models.LeagueMember{ID: uuid.New(), UserID: uuid.New(), Username: "bob", Role: models.MemberRoleUser, Status: models.MemberStatusApproved, BudgetCurrent: 5, SlotsFilled: map[string]int{"P": 1}}

	store := &FakeStore{
		League:  models.League{ID: leagueID, AdminID: adminUser, Settings: testSettings()},
		Members: []models.LeagueMember{admin, alice, bob},
		Players: []models.AuctionPlayer{
			{ID: 10, LeagueID: leagueID, Name: "Barella", TeamReal: "Inter", Roles: []string{"C"}, RolesMantra: []string{"M", "C"}, Status: models.PlayerStatusAvailable},
			{ID: 11, LeagueID: leagueID, Name: "Lautaro", TeamReal: "Inter", Roles: []string{"A"}, RolesMantra: []string{"Pc"}, Status: models.PlayerStatusAvailable},
			{ID: 12, LeagueID: leagueID, Name: "Sommer", TeamReal: "Inter", Roles: []string{"P"}, RolesMantra: []string{"Por"}, Status: models.PlayerStatusSold},
		},
	}
	notifier := &recordingNotifier{}
	clock := clockwork.NewFakeClockAt(t0)
	engine := NewEngine(DefaultConfig(), NewRegistry(), store, notifier, nil, clock)

	return &fixture{
		store:    store,
		notifier: notifier,
		clock:    clock,
		engine:   engine,
		leagueID: leagueID,
		admin:    admin,
		alice:    alice,
		bob:      bob,
	}
}

// join connects every member so the room stays alive.
func (f *fixture) join(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, m := range []models.LeagueMember{f.admin, f.alice, f.bob} {
		_, err := f.engine.Join(ctx, f.leagueID, m.UserID, "conn-"+m.Username)
		require.NoError(t, err)
	}
}

// start joins everyone and puts the given player up for bid.
func (f *fixture) start(t *testing.T, playerID int64) {
	t.Helper()
	f.join(t)
	_, err := f.engine.StartItem(context.Background(), f.leagueID, f.admin.ID, &playerID)
	require.NoError(t, err)
}

func (f *fixture) room(t *testing.T) *Room {
	t.Helper()
	room, ok := f.engine.registry.Get(f.leagueID)
	require.True(t, ok, "room should be live")
	return room
}

func (f *fixture) member(t *testing.T, id uuid.UUID) Member {
	t.Helper()
	room := f.room(t)
	room.mu.Lock()
	defer room.mu.Unlock()
	m, ok := room.members[id]
	require.True(t, ok, "member should be in room")
	return *m
}
