package auction

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/NicolaBuomp/fantabid/go/internal/models"
)

// LeagueLoader reads the league configuration a room is built from.
// Unknown leagues return ErrLeagueNotFound.
type LeagueLoader interface {
	GetLeague(ctx context.Context, leagueID uuid.UUID) (models.League, error)
}

// MembershipReader lists the approved members of a league with their budgets,
// roster counts and usernames.
type MembershipReader interface {
	ListApprovedMembers(ctx context.Context, leagueID uuid.UUID) ([]models.LeagueMember, error)
}

// PlayerLoader loads auction items. GetPlayer returns ErrPlayerNotFound and
// NextAvailablePlayer returns ErrNoPlayers when nothing matches.
type PlayerLoader interface {
	GetPlayer(ctx context.Context, leagueID uuid.UUID, playerID int64) (models.AuctionPlayer, error)
	NextAvailablePlayer(ctx context.Context, leagueID uuid.UUID) (models.AuctionPlayer, error)
}

// PlayerStatusWriter marks an item sold or skipped.
type PlayerStatusWriter interface {
	SetPlayerStatus(ctx context.Context, leagueID uuid.UUID, playerID int64, status models.PlayerStatus) error
}

// SaleRequest is the input of the atomic sale procedure.
type SaleRequest struct {
	LeagueID       uuid.UUID
	PlayerID       int64
	WinnerMemberID uuid.UUID
	Price          int
	ActorID        uuid.UUID
	PlayerRole     string
}

// SaleResult carries the winner's balance after the sale. NewBudget is nil
// when the procedure did not report one.
type SaleResult struct {
	NewBudget *int
}

// SaleProcedure commits a sale atomically: ownership, budget and roster.
type SaleProcedure interface {
	SellPlayer(ctx context.Context, req SaleRequest) (SaleResult, error)
}

// RollbackResult reports the outcome of undoing the last sale of a league.
type RollbackResult struct {
	Success          bool
	RestoredPlayerID *int64
	Reason           string
}

// NothingToUndo reports whether a failed rollback only found no sale to
// revert, as opposed to the procedure refusing or failing.
func (r RollbackResult) NothingToUndo() bool {
	if r.Success {
		return false
	}
	switch strings.ToUpper(strings.TrimSpace(r.Reason)) {
	case "", "NO_SALES", "NO_SALE_TO_ROLLBACK", "NOTHING_TO_ROLLBACK":
		return true
	}
	return false
}

// RollbackProcedure reverts the most recent sale of a league atomically.
type RollbackProcedure interface {
	RollbackLastSale(ctx context.Context, leagueID, actorID uuid.UUID) (RollbackResult, error)
}

// AuditEntry is one row of the append-only auction log.
type AuditEntry struct {
	LeagueID uuid.UUID
	Action   models.AuditAction
	ActorID  uuid.UUID
	PlayerID *int64
	Payload  map[string]any
}

// AuditSink appends entries to the auction log.
type AuditSink interface {
	LogAction(ctx context.Context, entry AuditEntry) error
}

// Store is everything the engine needs from the system of record.
type Store interface {
	LeagueLoader
	MembershipReader
	PlayerLoader
	PlayerStatusWriter
	SaleProcedure
	RollbackProcedure
	AuditSink
}
