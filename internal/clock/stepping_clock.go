package clock

import (
	"sync"
	"time"
)

// SteppingClock is a Clock that returns a given series of time values, one
// at a time.  It's useful in a test that makes a series of calls to get
// the current time and needs each one to return a specific value.
type SteppingClock struct {
	mutex    sync.Mutex
	nextTime int
	times    []time.Time
}

var _ Clock = (*SteppingClock)(nil)

// NewSteppingClock creates a SteppingClock that returns the given times in
// order, then repeats the last one forever.
func NewSteppingClock(times []time.Time) *SteppingClock {
	return &SteppingClock{times: times}
}

// SetTimes replaces the array of times to return and resets the cursor.
func (c *SteppingClock) SetTimes(times []time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.times = times
	c.nextTime = 0
}

// Now returns the next time value from the given array.  Once the array is
// exhausted, it keeps returning the last value.  If no times were set, it
// returns the Unix epoch.
func (c *SteppingClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if len(c.times) == 0 {
		return time.Unix(0, 0).UTC()
	}
	if c.nextTime >= len(c.times) {
		return c.times[len(c.times)-1]
	}

	result := c.times[c.nextTime]
	c.nextTime++
	return result
}
