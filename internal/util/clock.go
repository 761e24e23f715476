package util

import "time"

// Clock abstracts wall time so time-sensitive components stay deterministic
// under test.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// FakeClock is a manually advanced clock for tests.
type FakeClock struct {
	T time.Time
}

func (c *FakeClock) Now() time.Time { return c.T }

// Advance moves the fake clock forward.
func (c *FakeClock) Advance(d time.Duration) { c.T = c.T.Add(d) }
