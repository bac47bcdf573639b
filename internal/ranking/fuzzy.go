package ranking

import "strings"

const (
	// DefaultFuzzyThreshold excludes weak matches from link search results.
	DefaultFuzzyThreshold = 30.0
	// DefaultFuzzyLimit caps how many link candidates are returned.
	DefaultFuzzyLimit = 20
)

// FuzzyScore rates how well a candidate text matches the typed query:
//
//	exact case-insensitive match        -> 100
//	prefix match                        -> 80..90, scaled by prefix-length ratio
//	substring match                     -> 50..60, scaled the same way
//	no match (or empty query)           -> 0
//
// The length-ratio scaling is strictly monotonic: a longer query matching the
// same candidate always scores higher.
func FuzzyScore(query, candidate string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	c := strings.ToLower(candidate)
	if q == "" || c == "" {
		return 0
	}
	if q == c {
		return 100
	}

	ratio := float64(len(q)) / float64(len(c))
	switch {
	case strings.HasPrefix(c, q):
		return 80 + 10*ratio
	case strings.Contains(c, q):
		return 50 + 10*ratio
	default:
		return 0
	}
}
