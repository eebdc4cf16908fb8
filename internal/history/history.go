// Package history keeps newest-first, capacity-bounded logs of stable PS
// and RT values, gated so that only values which have survived long
// enough (and after the station identity itself has settled) are
// recorded.  This keeps the history free of values seen only in passing
// during a station change or a noisy reception dip.
package history

import (
	"time"

	"github.com/rds-radio/decoder/internal/clock"
)

// Capacity is the maximum number of entries kept in a Ring.
const Capacity = 200

// Ring is a newest-first, capacity-bounded list of distinct values.
type Ring struct {
	entries  []string
	capacity int
}

// Append adds v to the front of the ring, unless it's empty or identical
// to the current head.  Entries beyond the ring's capacity (Capacity by
// default) are dropped.
func (r *Ring) Append(v string) bool {
	if v == "" {
		return false
	}
	if len(r.entries) > 0 && r.entries[0] == v {
		return false
	}
	cap := r.capacity
	if cap <= 0 {
		cap = Capacity
	}
	r.entries = append([]string{v}, r.entries...)
	if len(r.entries) > cap {
		r.entries = r.entries[:cap]
	}
	return true
}

// Entries returns the ring contents, newest first.
func (r *Ring) Entries() []string {
	return r.entries
}

// Gate decides whether a currently-observed value is stable enough to be
// committed to a history ring: the station must have been established
// for at least minEstablishedAge, and the value itself must not have
// changed for at least minStability.
type Gate struct {
	clock clock.Clock

	minEstablishedAge time.Duration
	minStability      time.Duration

	establishedAt   time.Time
	haveEstablished bool

	lastValue    string
	lastChangeAt time.Time
}

// NewGate creates a Gate driven by c, requiring minEstablishedAge since
// Establish was last called and minStability since the observed value
// last changed.
func NewGate(c clock.Clock, minEstablishedAge, minStability time.Duration) *Gate {
	return &Gate{clock: c, minEstablishedAge: minEstablishedAge, minStability: minStability}
}

// Establish marks the station identity as newly confirmed, restarting
// the established-age clock. It does not clear the value-stability
// tracking, since PS/RT content is unrelated to PI confirmation timing.
func (g *Gate) Establish() {
	g.establishedAt = g.clock.Now()
	g.haveEstablished = true
}

// Reset clears all state, e.g. on a station change.
func (g *Gate) Reset() {
	*g = Gate{clock: g.clock, minEstablishedAge: g.minEstablishedAge, minStability: g.minStability}
}

// Observe records value as the latest candidate and reports whether it
// is currently stable enough to be appended to history.
func (g *Gate) Observe(value string) bool {
	now := g.clock.Now()
	if value != g.lastValue {
		g.lastValue = value
		g.lastChangeAt = now
	}

	if !g.haveEstablished || value == "" {
		return false
	}
	if now.Sub(g.establishedAt) < g.minEstablishedAge {
		return false
	}
	if now.Sub(g.lastChangeAt) < g.minStability {
		return false
	}
	return true
}

// Stability windows per the spec's field-specific constants.
const (
	MinEstablishedAge = 3000 * time.Millisecond
	PSMinStability    = 1000 * time.Millisecond
	RTMinStability    = 2000 * time.Millisecond
)

// PSHistory tracks stable Program Service name values.
type PSHistory struct {
	Ring Ring
	Gate *Gate
}

// NewPSHistory creates a PSHistory driven by c, using the package
// default ring capacity.
func NewPSHistory(c clock.Clock) *PSHistory {
	return NewPSHistoryWithCapacity(c, 0)
}

// NewPSHistoryWithCapacity creates a PSHistory driven by c with an
// operator-tunable ring capacity. Zero or negative falls back to the
// package default.
func NewPSHistoryWithCapacity(c clock.Clock, capacity int) *PSHistory {
	return &PSHistory{Gate: NewGate(c, MinEstablishedAge, PSMinStability), Ring: Ring{capacity: capacity}}
}

// Observe feeds a newly decoded PS value through the stability gate and
// appends it to the ring if it qualifies. Returns whether it was
// appended.
func (h *PSHistory) Observe(value string) bool {
	if !h.Gate.Observe(value) {
		return false
	}
	return h.Ring.Append(value)
}

// RTHistory tracks stable RadioText values.
type RTHistory struct {
	Ring Ring
	Gate *Gate
}

// NewRTHistory creates an RTHistory driven by c, using the package
// default ring capacity.
func NewRTHistory(c clock.Clock) *RTHistory {
	return NewRTHistoryWithCapacity(c, 0)
}

// NewRTHistoryWithCapacity creates an RTHistory driven by c with an
// operator-tunable ring capacity. Zero or negative falls back to the
// package default.
func NewRTHistoryWithCapacity(c clock.Clock, capacity int) *RTHistory {
	return &RTHistory{Gate: NewGate(c, MinEstablishedAge, RTMinStability), Ring: Ring{capacity: capacity}}
}

// Observe feeds a newly completed RT value through the stability gate and
// appends it to the ring if it qualifies. Returns whether it was
// appended.
func (h *RTHistory) Observe(value string) bool {
	if !h.Gate.Observe(value) {
		return false
	}
	return h.Ring.Append(value)
}
