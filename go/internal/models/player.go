package models

import (
	"github.com/google/uuid"
)

// PlayerStatus is the lifecycle status of an auction item.
type PlayerStatus string

const (
	PlayerStatusAvailable PlayerStatus = "AVAILABLE"
	PlayerStatusSold      PlayerStatus = "SOLD"
	PlayerStatusSkipped   PlayerStatus = "SKIPPED"
)

// FallbackRole is used when a player carries no role at all.
const FallbackRole = "A"

// AuctionPlayer is a player of a league catalog that can be put up for bid.
type AuctionPlayer struct {
	ID          int64        `json:"id"`
	LeagueID    uuid.UUID    `json:"leagueId"`
	Name        string       `json:"name"`
	TeamReal    string       `json:"teamReal"`
	Roles       []string     `json:"roles"`
	RolesMantra []string     `json:"rolesMantra"`
	Status      PlayerStatus `json:"status"`
}

// PrimaryRole is the roster category a sale fills: the first classic role,
// then the first mantra role, then FallbackRole.
func (p AuctionPlayer) PrimaryRole() string {
	if len(p.Roles) > 0 && p.Roles[0] != "" {
		return p.Roles[0]
	}
	if len(p.RolesMantra) > 0 && p.RolesMantra[0] != "" {
		return p.RolesMantra[0]
	}
	return FallbackRole
}
