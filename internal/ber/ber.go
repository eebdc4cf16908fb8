// Package ber estimates the bit error rate of the incoming group stream
// over a sliding window, with a warm-up grace period so a fresh
// connection (or a station reset) doesn't report a spurious high error
// rate before enough samples have arrived.
package ber

import "sync"

// WindowCap is the fixed capacity of the sliding window.
const WindowCap = 40

// GraceCount is the number of successful groups, after connect or reset,
// that are absorbed without contributing to the window.
const GraceCount = 10

// Estimator tracks pass/fail outcomes and reports a percentage error rate.
type Estimator struct {
	mutex     sync.Mutex
	window    []int
	windowCap int
	grace     int
	graceCap  int
}

// New creates an Estimator starting in its grace period, using the
// package defaults for window size and grace length.
func New() *Estimator {
	return NewWithConfig(WindowCap, GraceCount)
}

// NewWithConfig creates an Estimator with an operator-tunable window
// size and grace length, e.g. from rdsconfig.Config. A zero or negative
// value falls back to the package default.
func NewWithConfig(windowCap, graceCount int) *Estimator {
	if windowCap <= 0 {
		windowCap = WindowCap
	}
	if graceCount <= 0 {
		graceCount = GraceCount
	}
	return &Estimator{windowCap: windowCap, graceCap: graceCount, grace: graceCount}
}

// Success records a successfully decoded group.
func (e *Estimator) Success() {
	e.push(0)
}

// Failure records a corrupted or unparseable group.
func (e *Estimator) Failure() {
	e.push(1)
}

func (e *Estimator) push(v int) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.grace > 0 {
		// Only successes count down the grace period; a failure seen
		// during warm-up is absorbed without affecting anything.
		if v == 0 {
			e.grace--
		}
		return
	}

	e.window = append(e.window, v)
	if len(e.window) > e.windowCap {
		e.window = e.window[len(e.window)-e.windowCap:]
	}
}

// BER returns the current estimated bit error rate as a percentage in
// [0, 100].  During the grace period it is always 0.
func (e *Estimator) BER() float32 {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.grace > 0 || len(e.window) == 0 {
		return 0
	}

	sum := 0
	for _, v := range e.window {
		sum += v
	}
	return 100 * float32(sum) / float32(len(e.window))
}

// InGrace reports whether the estimator is still in its warm-up period.
func (e *Estimator) InGrace() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.grace > 0
}

// Reset restarts the grace period and clears the window, as done on a
// confirmed PI change (station reset).
func (e *Estimator) Reset() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.window = nil
	e.grace = e.graceCap
}
