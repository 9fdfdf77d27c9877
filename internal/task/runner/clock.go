package runner

import (
	"sync"
	"time"
)

// Clock reads the local wall clock.
type Clock interface {
	Now() time.Time
}

// SystemClock is the host clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ZoneClock is the host clock read in a fixed location. A nil Loc means
// time.Local.
type ZoneClock struct {
	Loc *time.Location
}

func (c ZoneClock) Now() time.Time {
	if c.Loc == nil {
		return time.Now()
	}
	return time.Now().In(c.Loc)
}

// ManualClock is a settable Clock for tests and dry runs.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(t time.Time) *ManualClock { return &ManualClock{now: t} }

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
