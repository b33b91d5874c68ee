package torrent

import "time"

// SeedElapsed returns the whole seconds seeded between startedAt and now,
// clamped to the accounting bounds. A zero start or a clock that moved
// backwards yields 0.
func SeedElapsed(startedAt, now time.Time) int64 {
	if startedAt.IsZero() {
		return 0
	}
	return ClampSeedSeconds(int64(now.Sub(startedAt) / time.Second))
}
