package engine

import "time"

// Clock supplies save timestamps.
// Implemented by WallClock (production) and testutil.DeterministicClock
// (tests).
type Clock interface {
	Now() time.Time
}

// WallClock reads the system clock in UTC at millisecond precision, the
// precision every backend stores.
type WallClock struct{}

// Now implements Clock.
func (WallClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
