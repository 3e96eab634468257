package auction

import (
	"time"

	"github.com/NicolaBuomp/fantabid/go/internal/models"
)

// TimerDuration returns the countdown length for the given bid count.
//
// With decay disabled it is always the base timer. Otherwise the first rule
// (in configured order) whose inclusive [FromBid, ToBid] range contains
// bidCount wins, so overlapping rules resolve to the earlier one. No match
// falls back to the base timer.
func TimerDuration(bidCount int, settings models.LeagueSettings) time.Duration {
	base := settings.BaseTimer()
	if !settings.TimerDecayEnabled {
		return base
	}
	for _, rule := range settings.TimerDecayRules {
		if bidCount >= rule.FromBid && bidCount <= rule.ToBid {
			return time.Duration(rule.Seconds) * time.Second
		}
	}
	return base
}
