package core

import (
	"time"

	"github.com/muzlabs/muzgpt/internal/store"
)

const (
	TierFree    = "free"
	TierPremium = "premium"
)

// DailyLimits caps the number of chat turns per calendar day by tier.
var DailyLimits = map[string]int{
	TierFree:    15,
	TierPremium: 500,
}

// DateStamp renders the server-local calendar date used by the daily-usage
// reset check.
func DateStamp(t time.Time) string {
	return t.Format("2006-01-02")
}

// AllowTurn reports whether one more chat turn is permitted for the given
// tier and usage count. Denial never mutates the counter.
func AllowTurn(tier string, dailyUsage int) bool {
	limit, ok := DailyLimits[tier]
	if !ok {
		limit = DailyLimits[TierFree]
	}
	return dailyUsage < limit
}

// ResetUsageIfStale zeroes the daily counter exactly once per calendar day:
// only when the stored reset date differs from today. Returns true when the
// user record was mutated and needs persisting.
func ResetUsageIfStale(user *store.User, now time.Time) bool {
	today := DateStamp(now)
	if user.LastUsageReset == today {
		return false
	}
	user.DailyUsage = 0
	user.LastUsageReset = today
	return true
}
