package gate

import "math"

// DefaultMaxAgeMs is the default freshness window.
const DefaultMaxAgeMs int64 = 300_000

// IsFresh reports whether timestamp lies within [now-maxAge, now]. Future
// timestamps are never fresh. The age computation saturates instead of
// wrapping, so extreme attacker-chosen timestamps cannot pass.
func IsFresh(timestamp, now, maxAge int64) bool {
	if timestamp > now {
		return false
	}
	return saturatingSub(now, timestamp) <= maxAge
}

// saturatingSub returns a-b clamped to the int64 range.
func saturatingSub(a, b int64) int64 {
	d := a - b
	// Overflow happened iff a and b have different signs and the result's
	// sign differs from a's.
	if (a^b) < 0 && (a^d) < 0 {
		if a < 0 {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	return d
}
