package domain

import "time"

// IsStale reports whether ts is missing or strictly older than threshold
// relative to now. A timestamp exactly at the threshold is not stale.
func IsStale(ts *time.Time, threshold time.Duration, now time.Time) bool {
	if ts == nil {
		return true
	}
	return now.Sub(*ts) > threshold
}
