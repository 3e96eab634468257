package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTimerSeconds = 15
	DefaultMinStartBid  = 1
)

// DecayRule maps a range of bid counts to a countdown length.
type DecayRule struct {
	FromBid int `json:"from_bid"`
	ToBid   int `json:"to_bid"`
	Seconds int `json:"seconds"`
}

// LeagueSettings holds the JSONB auction configuration of a league.
// Keys the engine does not use (budget, roster limits) are ignored.
type LeagueSettings struct {
	TimerSeconds      int         `json:"timer_seconds,omitempty"`
	TimerDecayEnabled bool        `json:"timer_decay_enabled,omitempty"`
	TimerDecayRules   []DecayRule `json:"timer_decay_rules,omitempty"`
	MinStartBid       int         `json:"min_start_bid,omitempty"`
}

// DefaultLeagueSettings returns the settings new leagues are created with.
func DefaultLeagueSettings() LeagueSettings {
	return LeagueSettings{
		TimerSeconds:      DefaultTimerSeconds,
		TimerDecayEnabled: true,
		TimerDecayRules: []DecayRule{
			{FromBid: 1, ToBid: 3, Seconds: 15},
			{FromBid: 4, ToBid: 8, Seconds: 10},
			{FromBid: 9, ToBid: 15, Seconds: 7},
			{FromBid: 16, ToBid: 999, Seconds: 5},
		},
		MinStartBid: DefaultMinStartBid,
	}
}

// BaseTimer is the countdown length used when no decay rule applies.
func (s LeagueSettings) BaseTimer() time.Duration {
	seconds := s.TimerSeconds
	if seconds <= 0 {
		seconds = DefaultTimerSeconds
	}
	return time.Duration(seconds) * time.Second
}

// OpeningBid is the price an item starts at.
func (s LeagueSettings) OpeningBid() int {
	if s.MinStartBid <= 0 {
		return DefaultMinStartBid
	}
	return s.MinStartBid
}

// Clone returns a copy that shares no slices with s.
func (s LeagueSettings) Clone() LeagueSettings {
	out := s
	if s.TimerDecayRules != nil {
		out.TimerDecayRules = append([]DecayRule(nil), s.TimerDecayRules...)
	}
	return out
}

// League is the slice of a league row the auction engine reads.
type League struct {
	ID       uuid.UUID      `json:"id"`
	AdminID  uuid.UUID      `json:"admin_id"`
	Settings LeagueSettings `json:"settings"`
}
