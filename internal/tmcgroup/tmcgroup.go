// Package tmcgroup implements the Traffic Message Channel engine: 8A
// groups carry either service info (tuning/service identification,
// distinguished by the T flag) or a user traffic message (location,
// event, direction and extent), and this package assembles both into the
// running TMC state for a station.
package tmcgroup

import (
	"time"

	"github.com/google/uuid"
	"github.com/rds-radio/decoder/internal/bits"
)

// MaxMessages bounds the retained message list; once full the oldest
// message is evicted to make room (FIFO), matching the degrade-gracefully
// posture of the rest of the decoder.
const MaxMessages = 100

// MessageLifetime is how long a message's expires_time extends past its
// last received_time before it's considered to have aged out.
const MessageLifetime = 30 * time.Minute

// durationLabels maps the 3-bit duration field of a user message to the
// persistence label it signals.
var durationLabels = [8]string{
	0: "No duration",
	1: "15 minutes",
	2: "30 minutes",
	3: "1 hour",
	4: "2 hours",
	5: "3 hours",
	6: "4 hours",
	7: "Longer Lasting",
}

// Message is one assembled TMC user message.
type Message struct {
	ID           string
	LocationCode int
	EventCode    int
	Direction    bool // true = negative direction
	Extent       int
	DurationCode int
	Duration     string
	Urgency      bool
	Nature       int
	CC           int
	Diversion    bool
	SingleGroup  bool
	UpdateCount  int
	ReceivedTime time.Time
	ExpiresTime  time.Time

	// Location fields are filled in later, out of band, by whatever
	// presentation layer calls the location resolver with this
	// message's LocationCode; they start zero-valued.
	LocationResolved bool
	LocationName     string
	RoadRef          string
	Lat, Lon         float64
	PrevLocationCode uint32
	NextLocationCode uint32
}

// LocationUpdate carries a resolved location back from a resolver lookup
// keyed by TMC location code, decoupling this package from whatever
// resolver implementation the caller uses.
type LocationUpdate struct {
	LocationCode     uint32
	Resolved         bool
	Name             string
	RoadRef          string
	Lat, Lon         float64
	PrevLocationCode uint32
	NextLocationCode uint32
}

func (m Message) key() [4]int {
	dir := 0
	if m.Direction {
		dir = 1
	}
	return [4]int{m.LocationCode, m.EventCode, dir, m.Extent}
}

// ServiceInfo captures a station's TMC tuning parameters from a T=1
// group: the location table number, the alternative-frequency indicator,
// the encryption mode, and the service identifier.
type ServiceInfo struct {
	LTN          int
	AFI          bool
	Mode         bool
	SID          int
	ProviderName string
}

// Engine holds one station's assembled TMC state.
type Engine struct {
	// Active and Paused are host-set control flags, independent of
	// whatever per-station data this engine has assembled.
	Active bool
	Paused bool

	ServiceInfo   ServiceInfo
	HaveService   bool
	Messages      []Message
	ProviderNames []string

	index map[[4]int]int // key -> index into Messages, for update_count bumps
}

// New creates an empty Engine.
func New() *Engine {
	return &Engine{
		index: make(map[[4]int]int),
	}
}

// SetActive sets the host-control flag that gates TMC decoding as a
// whole. Turning it off also clears Paused, since a TMC service that
// isn't active can't meaningfully be paused either.
func (e *Engine) SetActive(active bool) {
	e.Active = active
	if !active {
		e.Paused = false
	}
}

// SetPaused records whether the TMC service is currently considered
// paused (e.g. absent from recent groups); this is driven externally by
// whatever tracks group recency for the station as a whole.
func (e *Engine) SetPaused(paused bool) {
	e.Paused = paused
}

// Update processes one 8A group's B2/B3/B4 blocks.
//
// B2: bit4 T (tuning/service-info flag), bit3 F (single-group flag),
// bit2 D (direction), bit1 diversion-advice flag, bit0 CC (low bit of the
// country/location table selector carried alongside the main location
// table number).
//
// T=0 (user message): B3 bits15-14 nature, bits13-11 duration, bits10-8
// extent, bit7 urgency, bits6-0 event code; B4 is the full location code.
//
// T=1 (service info): B3 bits15-10 LTN, bit9 AFI, bit8 mode, bits7-2 SID.
func (e *Engine) Update(b2, b3, b4 uint16, now time.Time) {
	t := bits.Field(b2, 4, 4)

	if t == 1 {
		ltn := int(bits.Field(b3, 15, 10))
		afi := bits.Field(b3, 9, 9) == 1
		mode := bits.Field(b3, 8, 8) == 1
		sid := int(bits.Field(b3, 7, 2))
		if ltn > 0 || sid > 0 {
			e.ServiceInfo = ServiceInfo{LTN: ltn, AFI: afi, Mode: mode, SID: sid}
			e.HaveService = true
		}
		return
	}

	msg := Message{
		LocationCode: int(b4),
		EventCode:    int(bits.Field(b3, 6, 0)),
		Direction:    bits.Field(b2, 2, 2) == 1,
		CC:           int(bits.Field(b2, 0, 0)),
		Nature:       int(bits.Field(b3, 15, 14)),
		DurationCode: int(bits.Field(b3, 13, 11)),
		Duration:     durationLabels[bits.Field(b3, 13, 11)],
		Extent:       int(bits.Field(b3, 10, 8)),
		Urgency:      bits.Field(b3, 7, 7) == 1,
		SingleGroup:  bits.Field(b2, 3, 3) == 1,
		Diversion:    bits.Field(b2, 1, 1) == 1,
	}
	e.addOrBump(msg, now)
}

func (e *Engine) addOrBump(msg Message, now time.Time) {
	key := msg.key()
	if i, ok := e.index[key]; ok {
		e.Messages[i].UpdateCount++
		e.Messages[i].ReceivedTime = now
		e.Messages[i].ExpiresTime = now.Add(MessageLifetime)
		return
	}

	msg.ID = uuid.New().String()
	msg.UpdateCount = 1
	msg.ReceivedTime = now
	msg.ExpiresTime = now.Add(MessageLifetime)
	e.Messages = append(e.Messages, msg)
	e.index[key] = len(e.Messages) - 1

	if len(e.Messages) > MaxMessages {
		e.Messages = e.Messages[1:]
		e.reindex()
	}
}

// LocationTableNumber returns the location table number (LTN) most
// recently announced in a T=1 service-info group, for use as the tabcd
// argument to a location resolver lookup.
func (e *Engine) LocationTableNumber() (uint16, bool) {
	if !e.HaveService {
		return 0, false
	}
	return uint16(e.ServiceInfo.LTN), true
}

// UnresolvedLocationCodes returns the distinct location codes of every
// message that hasn't yet had a LocationUpdate applied, for a caller to
// pass to a resolver.
func (e *Engine) UnresolvedLocationCodes() []uint32 {
	seen := make(map[uint32]bool)
	var codes []uint32
	for _, m := range e.Messages {
		if m.LocationResolved {
			continue
		}
		lcd := uint32(m.LocationCode)
		if seen[lcd] {
			continue
		}
		seen[lcd] = true
		codes = append(codes, lcd)
	}
	return codes
}

// ApplyLocationUpdates writes resolved location data back onto every
// message whose LocationCode matches one of the updates.
func (e *Engine) ApplyLocationUpdates(updates []LocationUpdate) {
	byCode := make(map[uint32]LocationUpdate, len(updates))
	for _, u := range updates {
		byCode[u.LocationCode] = u
	}
	for i, m := range e.Messages {
		u, ok := byCode[uint32(m.LocationCode)]
		if !ok {
			continue
		}
		e.Messages[i].LocationResolved = true
		if u.Resolved {
			e.Messages[i].LocationName = u.Name
			e.Messages[i].RoadRef = u.RoadRef
			e.Messages[i].Lat = u.Lat
			e.Messages[i].Lon = u.Lon
			e.Messages[i].PrevLocationCode = u.PrevLocationCode
			e.Messages[i].NextLocationCode = u.NextLocationCode
		}
	}
}

func (e *Engine) reindex() {
	e.index = make(map[[4]int]int, len(e.Messages))
	for i, m := range e.Messages {
		e.index[m.key()] = i
	}
}
