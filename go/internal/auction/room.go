package auction

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/NicolaBuomp/fantabid/go/internal/models"
)

// Member is the runtime view of a league member inside a room. Budget and
// slot counts are a cache of the store and are replaced on every sync.
type Member struct {
	MemberID      uuid.UUID
	UserID        uuid.UUID
	Username      string
	Role          models.MemberRole
	BudgetCurrent int
	SlotsFilled   map[string]int

	Connected    bool
	ConnectionID string
	LastBidAt    time.Time
}

// IsAdmin reports whether the member may run admin actions.
func (m *Member) IsAdmin() bool {
	return m.Role == models.MemberRoleAdmin
}

// Room is the live auction state of one league. All fields are guarded by mu;
// the sale token is separate so it can be held across store calls.
type Room struct {
	mu      sync.Mutex
	selling atomic.Bool

	leagueID    uuid.UUID
	adminUserID uuid.UUID
	settings    models.LeagueSettings

	status        models.AuctionStatus
	currentPlayer *models.AuctionPlayer
	currentBid    int
	leaderID      uuid.UUID
	timerEndsAt   *time.Time
	remaining     *time.Duration
	bidCount      int
	paused        bool
	pauseReason   models.PauseReason

	lastAdminPulse       time.Time
	adminSilenceNotified bool

	members map[uuid.UUID]*Member

	// Member syncs are numbered when their read starts. A sync only applies
	// when no later-started one has applied already.
	syncSeq     uint64
	syncApplied uint64
	syncing     int

	// closed is set once the room has been removed from the registry.
	closed bool
}

func newRoom(league models.League, now time.Time) *Room {
	return &Room{
		leagueID:       league.ID,
		adminUserID:    league.AdminID,
		settings:       league.Settings.Clone(),
		status:         models.AuctionStatusIdle,
		lastAdminPulse: now,
		members:        make(map[uuid.UUID]*Member),
	}
}

// LeagueID returns the room key.
func (r *Room) LeagueID() uuid.UUID { return r.leagueID }

// tryAcquireSale takes the sale token. The caller must call releaseSale on
// every path once it returns true.
func (r *Room) tryAcquireSale() bool { return r.selling.CompareAndSwap(false, true) }

func (r *Room) releaseSale() { r.selling.Store(false) }

// clearCurrent resets every per-item field and returns the room to IDLE.
func (r *Room) clearCurrent() {
	r.currentPlayer = nil
	r.currentBid = 0
	r.leaderID = uuid.Nil
	r.timerEndsAt = nil
	r.bidCount = 0
	r.paused = false
	r.pauseReason = models.PauseReasonNone
	r.remaining = nil
	r.status = models.AuctionStatusIdle
}

// pause moves the room to PAUSED, snapshotting time left when a countdown runs.
func (r *Room) pause(reason models.PauseReason, now time.Time) {
	if r.timerEndsAt != nil {
		left := r.timerEndsAt.Sub(now)
		if left < 0 {
			left = 0
		}
		r.remaining = &left
	} else {
		r.remaining = nil
	}
	r.timerEndsAt = nil
	r.paused = true
	r.pauseReason = reason
	r.status = models.AuctionStatusPaused
}

// resume reopens the countdown. It returns the new deadline, or nil when no
// item is on the block and the room simply goes back to IDLE.
func (r *Room) resume(now time.Time) *time.Time {
	r.paused = false
	r.pauseReason = models.PauseReasonNone
	if r.currentPlayer == nil {
		r.remaining = nil
		r.status = models.AuctionStatusIdle
		return nil
	}
	left := TimerDuration(r.bidCount, r.settings)
	if r.remaining != nil {
		left = *r.remaining
	}
	deadline := now.Add(left)
	r.timerEndsAt = &deadline
	r.remaining = nil
	r.status = models.AuctionStatusActive
	return &deadline
}

// expired reports whether an active countdown has elapsed at now.
func (r *Room) expired(now time.Time) bool {
	return r.status == models.AuctionStatusActive &&
		!r.paused &&
		r.timerEndsAt != nil &&
		!now.Before(*r.timerEndsAt)
}

func (r *Room) memberByUserID(userID uuid.UUID) *Member {
	for _, m := range r.members {
		if m.UserID == userID {
			return m
		}
	}
	return nil
}

func (r *Room) hasConnectedMembers() bool {
	for _, m := range r.members {
		if m.Connected {
			return true
		}
	}
	return false
}

// MemberView is the client representation of a member.
type MemberView struct {
	MemberID      uuid.UUID         `json:"memberId"`
	UserID        uuid.UUID         `json:"userId"`
	Username      string            `json:"username"`
	Role          models.MemberRole `json:"role"`
	BudgetCurrent int               `json:"budgetCurrent"`
	SlotsFilled   map[string]int    `json:"slotsFilled"`
	Connected     bool              `json:"connected"`
}

// RoomSnapshot is the full room state sent to a client on join.
type RoomSnapshot struct {
	LeagueID              uuid.UUID             `json:"leagueId"`
	Status                models.AuctionStatus  `json:"status"`
	IsPaused              bool                  `json:"isPaused"`
	PauseReason           models.PauseReason    `json:"pauseReason,omitempty"`
	CurrentPlayer         *models.AuctionPlayer `json:"currentPlayer"`
	CurrentBid            int                   `json:"currentBid"`
	HighestBidderMemberID *uuid.UUID            `json:"highestBidderMemberId"`
	TimerEndsAt           *int64                `json:"timerEndsAt"`
	RemainingMs           *int64                `json:"remainingMs"`
	BidCount              int                   `json:"bidCount"`
	MinStartBid           int                   `json:"minStartBid"`
	Members               []MemberView          `json:"members"`
}

func (r *Room) memberViews() []MemberView {
	views := make([]MemberView, 0, len(r.members))
	for _, m := range r.members {
		slots := make(map[string]int, len(m.SlotsFilled))
		for role, n := range m.SlotsFilled {
			slots[role] = n
		}
		views = append(views, MemberView{
			MemberID:      m.MemberID,
			UserID:        m.UserID,
			Username:      m.Username,
			Role:          m.Role,
			BudgetCurrent: m.BudgetCurrent,
			SlotsFilled:   slots,
			Connected:     m.Connected,
		})
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].Username != views[j].Username {
			return views[i].Username < views[j].Username
		}
		return views[i].MemberID.String() < views[j].MemberID.String()
	})
	return views
}

// snapshot must be called with mu held.
func (r *Room) snapshot() RoomSnapshot {
	s := RoomSnapshot{
		LeagueID:    r.leagueID,
		Status:      r.status,
		IsPaused:    r.paused,
		PauseReason: r.pauseReason,
		CurrentBid:  r.currentBid,
		BidCount:    r.bidCount,
		MinStartBid: r.settings.OpeningBid(),
		Members:     r.memberViews(),
	}
	if r.currentPlayer != nil {
		p := *r.currentPlayer
		s.CurrentPlayer = &p
	}
	if r.leaderID != uuid.Nil {
		id := r.leaderID
		s.HighestBidderMemberID = &id
	}
	if r.timerEndsAt != nil {
		ms := r.timerEndsAt.UnixMilli()
		s.TimerEndsAt = &ms
	}
	if r.remaining != nil {
		ms := r.remaining.Milliseconds()
		s.RemainingMs = &ms
	}
	return s
}

// Snapshot returns a copy of the room state safe to hand to other goroutines.
func (r *Room) Snapshot() RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}
