// Package ingest parses a continuous byte stream into RDS Group events,
// as specified for the frame ingester: JSON records and hex tuples,
// interleaved arbitrarily, with a watchdog against runaway noise.
//
// Grounded on the teacher's ReadNextRTCM3MessageFrame byte-eating state
// machine (rtcm/handler/handler.go) - accumulate into a buffer, look for
// the next recognizable frame, return what's found and leave the rest for
// next time - generalized from RTCM's single binary framing to RDS's two
// text framings.
package ingest

import (
	"bytes"
	"encoding/json"
	"log"
	"regexp"
	"strconv"
)

// EventKind distinguishes a decoded group from a corruption marker.
type EventKind int

const (
	EventGroup EventKind = iota
	EventCorruption
)

// Event is what the ingester emits for each frame it extracts.
type Event struct {
	Kind  EventKind
	Group [4]uint16
}

// BERSink receives pass/fail outcomes for the bit-error-rate estimator.
type BERSink interface {
	Success()
	Failure()
}

// AnalyzerSink records raw corrupted-frame markers in the group analyzer
// when it's active, matching the dispatcher's own group_counts/
// group_sequence bookkeeping for valid groups.
type AnalyzerSink interface {
	RecordCorruption()
}

const watchdogThreshold = 500
const watchdogTrim = 250

const hexToken = `(?:[0-9A-Fa-f]{4}|-{2,4})`
const separator = `[ \t:,\-]+`

var tupleRe = regexp.MustCompile(hexToken + separator + hexToken + separator + hexToken + separator + hexToken)
var dashToken = regexp.MustCompile(`^-{2,4}$`)

type jsonRecord struct {
	G1 *uint16 `json:"g1"`
	G2 *uint16 `json:"g2"`
	G3 *uint16 `json:"g3"`
	G4 *uint16 `json:"g4"`
}

// Ingester accumulates bytes and extracts frames from them.
type Ingester struct {
	buf      []byte
	ber      BERSink
	analyzer AnalyzerSink
	logger   *log.Logger
}

// New creates an Ingester. ber and analyzer may be nil.
func New(ber BERSink, analyzer AnalyzerSink, logger *log.Logger) *Ingester {
	return &Ingester{ber: ber, analyzer: analyzer, logger: logger}
}

// Feed appends chunk to the internal buffer and extracts every complete
// frame currently available, in arrival order.
func (in *Ingester) Feed(chunk []byte) []Event {
	in.buf = append(in.buf, chunk...)

	var events []Event
	for {
		ev, consumed, ok := in.extractOne()
		if !ok {
			break
		}
		in.buf = in.buf[consumed:]
		if ev != nil {
			events = append(events, *ev)
		}
	}

	if len(in.buf) > watchdogThreshold {
		in.buf = in.buf[watchdogTrim:]
		in.failBER()
		in.logf("ingest: buffer watchdog tripped, discarded %d bytes", watchdogTrim)
	}

	return events
}

// extractOne looks for the earliest complete frame (JSON or hex tuple) in
// the buffer.  It returns the event (nil if the frame was corruption-only
// bookkeeping with nothing further to report), how many bytes to consume
// from the front of the buffer, and whether anything was found at all.
func (in *Ingester) extractOne() (*Event, int, bool) {
	jsonStart, jsonEnd, jsonOK := in.findJSON()
	hexLoc := tupleRe.FindIndex(in.buf)

	useJSON := jsonOK
	if jsonOK && hexLoc != nil {
		useJSON = jsonStart <= hexLoc[0]
	}

	switch {
	case jsonOK && useJSON:
		ev := in.handleJSON(in.buf[jsonStart:jsonEnd])
		return ev, jsonEnd, true
	case hexLoc != nil:
		ev := in.handleHexTuple(in.buf[hexLoc[0]:hexLoc[1]])
		return ev, hexLoc[1], true
	default:
		return nil, 0, false
	}
}

// findJSON finds the first balanced-looking {...} pair: the first '{' and
// the first '}' strictly after it.
func (in *Ingester) findJSON() (start, end int, ok bool) {
	start = bytes.IndexByte(in.buf, '{')
	if start < 0 {
		return 0, 0, false
	}
	rel := bytes.IndexByte(in.buf[start+1:], '}')
	if rel < 0 {
		return 0, 0, false
	}
	return start, start + 1 + rel + 1, true
}

func (in *Ingester) handleJSON(raw []byte) *Event {
	var rec jsonRecord
	if err := json.Unmarshal(raw, &rec); err != nil || rec.G1 == nil || rec.G2 == nil || rec.G3 == nil || rec.G4 == nil {
		// Not a usable record; treat as noise, no event, no BER impact.
		in.logf("ingest: malformed JSON record %q: ignoring", string(raw))
		return nil
	}
	in.successBER()
	return &Event{Kind: EventGroup, Group: [4]uint16{*rec.G1, *rec.G2, *rec.G3, *rec.G4}}
}

func (in *Ingester) handleHexTuple(raw []byte) *Event {
	tokens := splitTokens(raw)
	if len(tokens) != 4 {
		in.logf("ingest: tuple regex matched but token split failed: %q", string(raw))
		return nil
	}

	corrupt := false
	var words [4]uint16
	for i, tok := range tokens {
		if dashToken.Match(tok) {
			corrupt = true
			continue
		}
		v, err := strconv.ParseUint(string(tok), 16, 16)
		if err != nil {
			corrupt = true
			continue
		}
		words[i] = uint16(v)
	}

	if corrupt {
		in.failBER()
		if in.analyzer != nil {
			in.analyzer.RecordCorruption()
		}
		return &Event{Kind: EventCorruption}
	}

	in.successBER()
	return &Event{Kind: EventGroup, Group: words}
}

// splitTokens re-extracts the four tokens matched by tupleRe from raw.
func splitTokens(raw []byte) [][]byte {
	var tokens [][]byte
	tokenRe := regexp.MustCompile(hexToken)
	for _, loc := range tokenRe.FindAllIndex(raw, 4) {
		tokens = append(tokens, raw[loc[0]:loc[1]])
	}
	return tokens
}

func (in *Ingester) successBER() {
	if in.ber != nil {
		in.ber.Success()
	}
}

func (in *Ingester) failBER() {
	if in.ber != nil {
		in.ber.Failure()
	}
}

func (in *Ingester) logf(format string, args ...interface{}) {
	if in.logger != nil {
		in.logger.Printf(format, args...)
	}
}
