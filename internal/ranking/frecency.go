// Package ranking scores candidates for the manual link-search surface:
// bucketed frecency over recorded accesses and fuzzy text matching against
// the typed query. Both scorers are pure functions over their inputs.
package ranking

import "time"

// Mozilla-style bucketed decay, not continuous.
const (
	decayFresh = 100 // age < 4h
	decayDay   = 70  // age < 24h
	decayWeek  = 50  // age < 7d
	decayOld   = 30
)

// DecayFactor maps the time since last access onto a decay bucket.
func DecayFactor(age time.Duration) int {
	switch {
	case age < 4*time.Hour:
		return decayFresh
	case age < 24*time.Hour:
		return decayDay
	case age < 7*24*time.Hour:
		return decayWeek
	default:
		return decayOld
	}
}

// Frecency combines access frequency with recency decay. It is recomputed at
// read time from the stored count and last-access timestamp.
func Frecency(accessCount int, lastAccess, now time.Time) int {
	if accessCount <= 0 {
		return 0
	}
	return accessCount * DecayFactor(now.Sub(lastAccess))
}
