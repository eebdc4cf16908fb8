package clock

import (
	"sync"
	"time"
)

// ManualClock is a Clock whose value is only changed by explicit calls to
// Set or Advance.  It's handy for tests that need to simulate elapsed
// wall-clock time between operations, such as the resolver's inter-batch
// rate limit or the history logger's stability windows.
type ManualClock struct {
	mutex sync.Mutex
	now   time.Time
}

var _ Clock = (*ManualClock)(nil)

// NewManualClock creates a ManualClock starting at the given time.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current value.
func (c *ManualClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

// Set changes the current value.
func (c *ManualClock) Set(t time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = t
}

// Advance moves the current value forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(d)
}
