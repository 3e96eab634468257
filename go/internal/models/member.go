package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// MemberRole is the role of a member inside a league.
type MemberRole string

const (
	MemberRoleAdmin MemberRole = "ADMIN"
	MemberRoleUser  MemberRole = "USER"
)

// MemberStatus is the approval status of a league membership.
type MemberStatus string

const (
	MemberStatusPending  MemberStatus = "PENDING"
	MemberStatusApproved MemberStatus = "APPROVED"
	MemberStatusRejected MemberStatus = "REJECTED"
)

// LeagueMember is an approved membership as read from the store, joined with
// the owner's profile username.
type LeagueMember struct {
	ID            uuid.UUID      `json:"id"`
	UserID        uuid.UUID      `json:"user_id"`
	Username      string         `json:"username"`
	Role          MemberRole     `json:"role"`
	Status        MemberStatus   `json:"status"`
	BudgetCurrent int            `json:"budget_current"`
	SlotsFilled   map[string]int `json:"slots_filled"`
}

// ParseSlotsFilled decodes the slots_filled JSONB column. Anything that is
// not an object yields an empty map; counts that are not finite non-negative
// numbers become 0 and fractional counts are floored.
func ParseSlotsFilled(raw []byte) map[string]int {
	out := make(map[string]int)
	if len(raw) == 0 {
		return out
	}
	var values map[string]json.RawMessage
	if err := json.Unmarshal(raw, &values); err != nil {
		return out
	}
	for role, v := range values {
		out[role] = slotCount(v)
	}
	return out
}

func slotCount(raw json.RawMessage) int {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		if n, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0
		}
	}
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return 0
	}
	return int(math.Floor(n))
}
