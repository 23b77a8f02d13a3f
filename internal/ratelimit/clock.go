package ratelimit

import "time"

// Clock abstracts time so rate limiting and liveness sweeps can be
// driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

// RealClock is the Clock used outside tests.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
