// Package oda implements Open Data Application support: the registry
// that binds an Application Identifier to the group type carrying it
// (group 3A), and the RadioText-Plus extractor that uses that binding
// to slice tagged spans out of the active RadioText buffer.
package oda

import (
	"fmt"
	"time"

	"github.com/rds-radio/decoder/internal/bits"
)

// RTPlusAID is the registered Application Identifier for RadioText Plus.
const RTPlusAID uint16 = 0x4BD7

// Registry tracks which group name ("11A", "3A", ...) a station has bound
// to which AID via 3A groups.
type Registry struct {
	bindings map[string]uint16
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{bindings: make(map[string]uint16)}
}

// Bind processes a 3A group's B2/B3/B4 blocks. A binding is only
// established when either B3 or B4 carries a recognized AID; group = B2 &
// 0x1F (type bits 4..1, version bit 0) names the group that carries that
// AID's payload.
func (r *Registry) Bind(b2, b3, b4 uint16) {
	var aid uint16
	switch RTPlusAID {
	case b3:
		aid = b3
	case b4:
		aid = b4
	default:
		return
	}

	typ := int(bits.Field(b2, 4, 1))
	verCh := byte('A')
	if b2&0x01 == 1 {
		verCh = 'B'
	}
	name := fmt.Sprintf("%d%c", typ, verCh)
	r.bindings[name] = aid
}

// AIDFor returns the AID bound to the given group name, if any.
func (r *Registry) AIDFor(name string) (uint16, bool) {
	aid, ok := r.bindings[name]
	return aid, ok
}

// IsRTPlusGroup reports whether name has been bound to the RT+ AID, or is
// one of the canonical group names RT+ is conventionally carried on even
// without an explicit 3A binding.
func (r *Registry) IsRTPlusGroup(name string) bool {
	if name == "11A" || name == "12A" {
		return true
	}
	aid, ok := r.bindings[name]
	return ok && aid == RTPlusAID
}

// MaxTags is the capacity of the RT+ tag list.
const MaxTags = 6

// Tag is one RadioText-Plus tagged span, sliced from the RT buffer at the
// moment it was decoded.
type Tag struct {
	ContentType int
	Text        string
	Stale       bool
	UpdatedAt   time.Time
}

// Extractor decodes RT+ groups, once their group has been bound to
// RTPlusAID, and slices the tagged spans out of the currently active RT
// text. It keeps the most recent MaxTags distinct content types, evicting
// the globally-oldest tag by update time when that cap is exceeded, and
// marks all cached tags stale whenever the RT A/B flip flag toggles, since
// a flip means the RT buffer being tagged has been superseded.
type Extractor struct {
	Tags []Tag

	// Running and Toggle mirror the item_running/item_toggle flags of the
	// most recently processed group.
	Running bool
	Toggle  bool

	lastABFlag bool
	haveABFlag bool
}

// NewExtractor creates an empty Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Update decodes one RT+ group's payload against the supplied active RT
// text and the RT A/B flag in effect when that text was assembled.
//
// B2: bit4 item_running, bit3 item_toggle.
// B3: bits15-13 tag1 type, bits12-7 tag1 start, bits6-1 tag1 length.
// B4: bits15-11 tag2 type, bits10-5 tag2 start, bits4-0 tag2 length.
// Each tag is processed only when its type is non-zero.
func (x *Extractor) Update(b2, b3, b4 uint16, abFlag bool, rtText string, now time.Time) {
	if x.haveABFlag && abFlag != x.lastABFlag {
		for i := range x.Tags {
			x.Tags[i].Stale = true
		}
	}
	x.lastABFlag = abFlag
	x.haveABFlag = true

	x.Running = bits.Field(b2, 4, 4) == 1
	x.Toggle = bits.Field(b2, 3, 3) == 1

	if !x.Running {
		return
	}
	x.applyTag(bits.Field(b3, 15, 13), bits.Field(b3, 12, 7), bits.Field(b3, 6, 1), rtText, now)
	x.applyTag(bits.Field(b4, 15, 11), bits.Field(b4, 10, 5), bits.Field(b4, 4, 0), rtText, now)
}

func (x *Extractor) applyTag(typ, start, length uint16, rtText string, now time.Time) {
	if typ == 0 {
		return
	}

	s := int(start)
	if s >= len(rtText) {
		return
	}
	end := s + int(length) + 1
	if end > len(rtText) {
		end = len(rtText)
	}
	text := stripControl(rtText[s:end])

	x.upsert(Tag{ContentType: int(typ), Text: text, UpdatedAt: now})
}

func stripControl(s string) string {
	clean := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x20 {
			clean = append(clean, s[i])
		}
	}
	start, end := 0, len(clean)
	for start < end && clean[start] == ' ' {
		start++
	}
	for end > start && clean[end-1] == ' ' {
		end--
	}
	return string(clean[start:end])
}

func (x *Extractor) upsert(tag Tag) {
	for i, existing := range x.Tags {
		if existing.ContentType == tag.ContentType {
			x.Tags[i] = tag
			return
		}
	}
	x.Tags = append(x.Tags, tag)
	if len(x.Tags) > MaxTags {
		x.evictOldest()
	}
}

func (x *Extractor) evictOldest() {
	oldest := 0
	for i, t := range x.Tags {
		if t.UpdatedAt.Before(x.Tags[oldest].UpdatedAt) {
			oldest = i
		}
	}
	x.Tags = append(x.Tags[:oldest], x.Tags[oldest+1:]...)
}
