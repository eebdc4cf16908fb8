// Package clock provides a clock service as an alternative to using the
// standard time package directly.  Production and test code stay plug
// compatible: in production Now() yields the system time, in test it
// yields whatever sequence of values the test needs, so the timing rules
// in the decoder (PI confirmation dwell time, history stability windows,
// BER grace, resolver rate limiting) can be exercised deterministically.
package clock

import "time"

// Clock is satisfied by SystemClock and SteppingClock.
type Clock interface {
	Now() time.Time
}

// SystemClock satisfies Clock using the real system time.
type SystemClock struct{}

// NewSystemClock creates a Clock backed by the system time.
func NewSystemClock() Clock {
	return SystemClock{}
}

// Now returns the system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}
