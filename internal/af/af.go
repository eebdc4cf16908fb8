// Package af implements the Alternative-Frequency engine: accumulating
// the frequency pairs carried in 0A groups' B3 block, disambiguating
// whether the station is using AF Method A (a flat list) or Method B
// (frequencies grouped per originating transmitter).
package af

import "math"

// MethodType classifies how a station announces its alternative
// frequencies.
type MethodType int

const (
	MethodUnknown MethodType = iota
	MethodA
	MethodB
)

// Fullness/match ratio thresholds for the Method-B heuristic.  These are
// empirical (per the RDS decoders this is grounded on) and are kept as
// named constants, not inlined, so tests can parameterize them.
const (
	afMethodBFullnessRatio = 0.75
	afMethodBMatchRatio    = 0.35
)

// TransmitterEntry accumulates what's been seen for one Method-B
// transmitter frequency.
type TransmitterEntry struct {
	Expected   int
	AFs        []float64
	MatchCount int
	PairCount  int
}

// Engine holds the accumulated AF state for one station.
type Engine struct {
	Set      []float64
	ListHead float64
	HasHead  bool
	BMap     map[float64]*TransmitterEntry
	Type     MethodType

	currentMethodBGroup    float64
	hasCurrentMethodBGroup bool

	lastB3    uint16
	haveLastB3 bool
}

// New creates an empty Engine.
func New() *Engine {
	return &Engine{BMap: make(map[float64]*TransmitterEntry)}
}

// decodeFreq decodes a single AF byte as 87.5 + 0.1*n MHz for n in 1..204,
// rounded to one decimal place to avoid floating-point drift.
func decodeFreq(b byte) (float64, bool) {
	n := int(b)
	if n < 1 || n > 204 {
		return 0, false
	}
	return math.Round((87.5+0.1*float64(n))*10) / 10, true
}

// Update processes the B3 block of a 0A group.  It's a no-op if the pair
// is identical to the one from the previous 0A group (the "last_0a_b3"
// memo in the spec), to avoid double-counting repeated groups.
func (e *Engine) Update(b3 uint16) {
	if e.haveLastB3 && e.lastB3 == b3 {
		return
	}
	e.lastB3 = b3
	e.haveLastB3 = true

	af1 := byte(b3 >> 8)
	af2 := byte(b3)

	if af1 >= 225 && af1 <= 249 {
		e.handleHeader(af1, af2)
		return
	}

	f1, ok1 := decodeFreq(af1)
	f2, ok2 := decodeFreq(af2)
	if ok1 {
		e.insertSet(f1)
	}
	if ok2 {
		e.insertSet(f2)
	}

	if ok1 && ok2 && e.hasCurrentMethodBGroup {
		h := e.currentMethodBGroup
		entry := e.entryFor(h)
		insertUnique(&entry.AFs, f1)
		insertUnique(&entry.AFs, f2)
		entry.PairCount++
		if f1 == h || f2 == h {
			entry.MatchCount++
		}
	}

	e.recompute()
}

func (e *Engine) handleHeader(af1, af2 byte) {
	count := int(af1) - 224
	h, ok := decodeFreq(af2)
	if !ok {
		return
	}

	e.removeFromSet(h)
	e.Set = append([]float64{h}, e.Set...)
	e.ListHead = h
	e.HasHead = true

	entry := e.entryFor(h)
	entry.Expected = count

	e.currentMethodBGroup = h
	e.hasCurrentMethodBGroup = true

	e.recompute()
}

func (e *Engine) entryFor(h float64) *TransmitterEntry {
	if e.BMap == nil {
		e.BMap = make(map[float64]*TransmitterEntry)
	}
	entry, ok := e.BMap[h]
	if !ok {
		entry = &TransmitterEntry{}
		e.BMap[h] = entry
	}
	return entry
}

func (e *Engine) insertSet(f float64) {
	for _, v := range e.Set {
		if v == f {
			return
		}
	}
	e.Set = append(e.Set, f)
}

func (e *Engine) removeFromSet(h float64) {
	for i, v := range e.Set {
		if v == h {
			e.Set = append(e.Set[:i], e.Set[i+1:]...)
			return
		}
	}
}

func insertUnique(list *[]float64, v float64) {
	for _, x := range *list {
		if x == v {
			return
		}
	}
	*list = append(*list, v)
}

// recompute re-derives the Method A/B classification from the current
// af_b_map contents, per the spec's disambiguation rule.
func (e *Engine) recompute() {
	type candidate struct {
		entry *TransmitterEntry
	}
	var plausible []candidate

	for _, entry := range e.BMap {
		size := len(entry.AFs)
		full := false
		switch {
		case entry.Expected > 0 && float64(size) >= afMethodBFullnessRatio*float64(entry.Expected):
			full = true
		case entry.Expected <= 2 && size == entry.Expected:
			full = true
		case entry.Expected > 5 && size > 4:
			full = true
		}
		if full {
			plausible = append(plausible, candidate{entry})
		}
	}

	switch {
	case len(plausible) > 1:
		e.Type = MethodB
	case len(plausible) == 1:
		entry := plausible[0].entry
		if entry.PairCount > 0 && float64(entry.MatchCount)/float64(entry.PairCount) > afMethodBMatchRatio {
			e.Type = MethodB
		} else {
			e.Type = MethodA
		}
	default:
		e.Type = MethodA
	}
}
