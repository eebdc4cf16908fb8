// Package group defines the RDS Group - four 16-bit blocks plus the
// decoded group type and version - and the dispatcher that routes a group
// to the handler for its type.
//
// Grounded on the teacher's rtcm3.Message (a raw frame plus its decoded
// type) and handler.Analyse's type switch, generalized from RTCM's 4095
// message-number space to RDS's 16 types x 2 versions.
package group

import (
	"fmt"

	"github.com/rds-radio/decoder/internal/bits"
)

// Version distinguishes the A and B variants of a group type.
type Version byte

const (
	VersionA Version = 'A'
	VersionB Version = 'B'
)

// Group is a single 4-block RDS group, B1 being the Program Identification.
type Group struct {
	B1, B2, B3, B4 uint16
	Type           int
	Version        Version
}

// Decode classifies the raw blocks into a Group, computing Type and
// Version from B2 as specified: type = (B2>>12)&0xF, version = (B2>>11)&1.
func Decode(b1, b2, b3, b4 uint16) Group {
	typ := int(bits.Field(b2, 15, 12))
	ver := VersionA
	if bits.Bit(b2, 4) {
		ver = VersionB
	}
	return Group{B1: b1, B2: b2, B3: b3, B4: b4, Type: typ, Version: ver}
}

// PI returns the Program Identification carried in B1 as 4 hex digits.
func (g Group) PI() string {
	return fmt.Sprintf("%04X", g.B1)
}

// Name returns the canonical group name, e.g. "0A", "15B".
func (g Group) Name() string {
	return fmt.Sprintf("%d%c", g.Type, rune(g.Version))
}

// TP returns the Traffic Program flag, bit 10 of B2.
func (g Group) TP() bool {
	return bits.Field(g.B2, 10, 10) == 1
}

// PTY returns the Program Type code, bits 9..5 of B2.
func (g Group) PTY() uint16 {
	return bits.Field(g.B2, 9, 5)
}

// PIN is the Program Item Number triple decoded from a group's B4 block:
// the day of the month, and the hour/minute of the associated event, as
// specified for groups 1A and 14A variant 14.
type PIN struct {
	Day, Hour, Minute uint16
}

// DecodePIN extracts a PIN from a 16-bit block using the day/hour/minute
// packing shared by 1A and 14A variant 14: day = bits15..11, hour =
// bits10..6, minute = bits5..0. It reports ok = false when day is zero,
// meaning no PIN is being signalled.
func DecodePIN(word uint16) (PIN, bool) {
	day := bits.Field(word, 15, 11)
	if day == 0 {
		return PIN{}, false
	}
	return PIN{Day: day, Hour: bits.Field(word, 10, 6), Minute: bits.Field(word, 5, 0)}, true
}
