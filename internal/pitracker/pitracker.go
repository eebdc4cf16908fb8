// Package pitracker implements Program Identification confirmation by
// repetition: a PI value must be observed for several consecutive groups
// before it's trusted, so a single corrupted B1 block doesn't cause the
// decoder to flip stations and throw away everything it knows.
package pitracker

// Unknown is the PI value before any station has been confirmed.
const Unknown = "UNKNOWN"

// RequiredRepeats is how many consecutive groups must carry the same PI
// before it's confirmed, once a station is already established.
const RequiredRepeats = 4

// Tracker holds the in-progress candidate PI and its repeat count.
type Tracker struct {
	Candidate string
	Counter   int
}

// Observe processes a newly seen PI value (observed) against the
// currently confirmed PI (current, which is Unknown before any station is
// confirmed).  It returns the PI that should now be considered confirmed
// and whether that's a change from current (triggering a deep reset).
func (t *Tracker) Observe(observed, current string) (confirmed string, changed bool) {
	if observed == t.Candidate {
		t.Counter++
	} else {
		t.Candidate = observed
		t.Counter = 1
	}

	confirms := t.Counter >= RequiredRepeats || (current == Unknown && t.Counter >= 1)
	if confirms && observed != current {
		return observed, true
	}
	return current, false
}

// Reset clears the candidate and counter, e.g. after a deep station reset.
func (t *Tracker) Reset() {
	t.Candidate = ""
	t.Counter = 0
}
