// Package eon implements Enhanced Other Networks tracking: per-network
// state (PS, alternative frequencies, linkage, PTY/TA, PIN) assembled from
// the variant-coded 14A groups and the simpler 14B groups, keyed by the
// other network's own PI carried in B4.
package eon

import (
	"fmt"
	"math"
	"sort"

	"github.com/rds-radio/decoder/internal/bits"
	"github.com/rds-radio/decoder/internal/charset"
	"github.com/rds-radio/decoder/internal/group"
)

// MaxMappedFreqs is the cap on the mapped-frequency list per network.
const MaxMappedFreqs = 4

// NetworkInfo is everything tracked about one other network.
type NetworkInfo struct {
	PI string

	psBuf  [8]byte
	psMask uint8 // one bit per 2-char segment, 4 segments total

	// AFList is the other network's own alternative-frequency list
	// (variant 4), numerically sorted and deduplicated.
	AFList []float64

	// MappedFreqs holds "src → dst" frequency-pair descriptions from
	// variants 5-9, a bounded FIFO list distinct from AFList.
	MappedFreqs []string

	PTY uint16
	TP  bool
	TA  bool

	LinkageInfo    uint16
	HasLinkageInfo bool

	PIN    group.PIN
	HasPIN bool
}

// PS returns the decoded 8-character Program Service name for the other
// network, or "" until all four segments have arrived.
func (n *NetworkInfo) PS() string {
	if n.psMask != 0x0F {
		return ""
	}
	runes := make([]rune, len(n.psBuf))
	for i, b := range n.psBuf {
		runes[i] = charset.DecodePSChar(b)
	}
	return string(runes)
}

func (n *NetworkInfo) insertAF(f float64) {
	for _, v := range n.AFList {
		if v == f {
			return
		}
	}
	n.AFList = append(n.AFList, f)
	sort.Float64s(n.AFList)
}

func (n *NetworkInfo) pushMappedFreq(src, dst float64) {
	desc := fmt.Sprintf("%.1f → %.1f", src, dst)
	n.MappedFreqs = append(n.MappedFreqs, desc)
	if len(n.MappedFreqs) > MaxMappedFreqs {
		n.MappedFreqs = n.MappedFreqs[len(n.MappedFreqs)-MaxMappedFreqs:]
	}
}

// Engine tracks every other network mentioned by the current station.
type Engine struct {
	Networks map[string]*NetworkInfo
}

// New creates an empty Engine.
func New() *Engine {
	return &Engine{Networks: make(map[string]*NetworkInfo)}
}

func (e *Engine) networkFor(pi string) *NetworkInfo {
	n, ok := e.Networks[pi]
	if !ok {
		n = &NetworkInfo{PI: pi}
		e.Networks[pi] = n
	}
	return n
}

// decodeFreq decodes a single AF byte, duplicated from the af package
// rather than shared, since it's a three-line helper not worth a
// dependency between otherwise-unrelated packages.
func decodeFreq(b byte) (float64, bool) {
	n := int(b)
	if n < 1 || n > 204 {
		return 0, false
	}
	return math.Round((87.5+0.1*float64(n))*10) / 10, true
}

// Update14A processes a 14A group's B2/B3/B4 blocks. The variant code in
// B2 bits 3..0 selects which piece of the other network's state B3
// carries; B4 is always the other network's PI.
//
// Variants 0-3: PS segments. Variant 4: the other network's own AF list.
// Variants 5-9: "src → dst" mapped frequency pairs. Variant 12: linkage
// info. Variant 13: PTY (bits15-11 of B3) and TA (bit0 of B3). Variant 14:
// a PIN triple, decoded from B3 since B4 already carries the network's PI.
func (e *Engine) Update14A(b2, b3, b4 uint16) {
	variant := b2 & 0x0F
	pi := fmt.Sprintf("%04X", b4)
	n := e.networkFor(pi)

	switch {
	case variant <= 3:
		seg := variant
		n.psBuf[seg*2] = byte(b3 >> 8)
		n.psBuf[seg*2+1] = byte(b3)
		n.psMask |= 1 << seg
	case variant == 4:
		if f, ok := decodeFreq(byte(b3 >> 8)); ok {
			n.insertAF(f)
		}
		if f, ok := decodeFreq(byte(b3)); ok {
			n.insertAF(f)
		}
	case variant >= 5 && variant <= 9:
		src, srcOK := decodeFreq(byte(b3 >> 8))
		dst, dstOK := decodeFreq(byte(b3))
		if srcOK && dstOK {
			n.pushMappedFreq(src, dst)
		}
	case variant == 12:
		n.LinkageInfo = b3
		n.HasLinkageInfo = true
	case variant == 13:
		n.PTY = bits.Field(b3, 15, 11)
		n.TA = b3&0x01 == 1
	case variant == 14:
		if pin, ok := group.DecodePIN(b3); ok {
			n.PIN = pin
			n.HasPIN = true
		}
	}
}

// Update14B processes a 14B group's B2/B4 blocks: B2 carries the other
// network's TP/TA flags directly, with no variant code.
func (e *Engine) Update14B(b2, b4 uint16) {
	pi := fmt.Sprintf("%04X", b4)
	n := e.networkFor(pi)
	n.TP = (b2>>4)&0x01 == 1
	n.TA = (b2>>3)&0x01 == 1
}
