// Package station assembles the full decoded state for one RDS station:
// it dispatches each incoming group to the field assembler for its type,
// and performs the deep reset that a confirmed PI change requires so that
// stale fields from the previous station are never shown as if they
// belonged to the new one.
//
// Grounded on the teacher's handler.Analyse type switch (rtcm/handler/handler.go),
// generalized from RTCM's per-message decoders to RDS's per-group-type
// field assemblers.
package station

import (
	"math"
	"time"

	"github.com/rds-radio/decoder/internal/af"
	"github.com/rds-radio/decoder/internal/ber"
	"github.com/rds-radio/decoder/internal/bits"
	"github.com/rds-radio/decoder/internal/charset"
	"github.com/rds-radio/decoder/internal/clock"
	"github.com/rds-radio/decoder/internal/eon"
	"github.com/rds-radio/decoder/internal/group"
	"github.com/rds-radio/decoder/internal/history"
	"github.com/rds-radio/decoder/internal/oda"
	"github.com/rds-radio/decoder/internal/pitracker"
	"github.com/rds-radio/decoder/internal/tmcgroup"
)

// Station holds everything decoded so far for the currently confirmed PI.
type Station struct {
	clk       clock.Clock
	piTracker pitracker.Tracker

	// berWindowCap/berGraceCount and ps/rtHistoryCapacity carry the
	// operator's tuning knobs (rdsconfig.Config) across a deep reset,
	// since the BER estimator and history rings are rebuilt from
	// scratch on every confirmed PI change.
	berWindowCap      int
	berGraceCount     int
	psHistoryCapacity int
	rtHistoryCapacity int

	PI  string
	TP  bool
	TA  bool
	PTY uint16

	// Corruptions counts frames the ingester flagged as unparseable,
	// implementing ingest.AnalyzerSink.
	Corruptions int

	psBuf  [8]byte
	psMask uint8

	// rtBuf/rtMask are double-buffered and keyed by abFlag (0 or 1), not
	// by group version: 2A and 2B groups both address into whichever
	// buffer abFlag currently selects, since either version can carry
	// either half of an A/B-flagged text.
	rtBuf        [2][64]byte
	rtMask       [2]uint16
	abFlag       bool
	haveABFlag   bool
	ActiveRT     string

	ptynBuf      [8]byte
	ptynMask     uint8
	ptynABFlag   bool
	ptynHaveFlag bool

	longPSBuf  [32]byte
	longPSMask uint8

	ECC     uint16
	HaveECC bool
	LIC     uint16
	HaveLIC bool
	PIN     group.PIN
	HavePIN bool

	UTCTime   time.Time
	LocalTime time.Time
	HaveCT    bool

	AF          *af.Engine
	EON         *eon.Engine
	ODARegistry *oda.Registry
	RTPlus      *oda.Extractor
	TMC         *tmcgroup.Engine
	BER         *ber.Estimator

	PSHistory *history.PSHistory
	RTHistory *history.RTHistory

	// AnalyzerActive gates group_counts/group_total/group_sequence, a
	// host-set control flag independent of PI identity.
	AnalyzerActive bool
	GroupCounts    map[string]uint64
	GroupTotal     uint64
	GroupSequence  []string

	// RecentGroups accumulates unconditionally, regardless of
	// AnalyzerActive, for observers that just want the raw traffic.
	RecentGroups []RawGroupRecord
}

// RawGroupRecord is one entry of the recent-groups backlog: a group's name
// and raw blocks, timestamped at observation.
type RawGroupRecord struct {
	Type   string
	Blocks [4]uint16
	Time   string
}

const (
	groupSequenceCap  = 3000
	groupSequenceTrim = 1000
)

// New creates a Station with no confirmed PI yet; its first group
// confirms one immediately, per the UNKNOWN-state instant-confirmation
// rule in pitracker. The BER estimator is live from construction, since
// an ingester may report extraction-level outcomes before any group has
// been observed.
func New(c clock.Clock) *Station {
	return NewWithConfig(c, 0, 0, 0, 0)
}

// NewWithConfig creates a Station with operator-tunable BER window/grace
// and PS/RT history capacities, e.g. sourced from rdsconfig.Config. A
// zero value for any of them falls back to its package default.
func NewWithConfig(c clock.Clock, berWindowCap, berGraceCount, psHistoryCapacity, rtHistoryCapacity int) *Station {
	return &Station{
		clk:               c,
		BER:               ber.NewWithConfig(berWindowCap, berGraceCount),
		GroupCounts:       make(map[string]uint64),
		berWindowCap:      berWindowCap,
		berGraceCount:     berGraceCount,
		psHistoryCapacity: psHistoryCapacity,
		rtHistoryCapacity: rtHistoryCapacity,
	}
}

// Observe processes one group's four raw blocks.
func (s *Station) Observe(b1, b2, b3, b4 uint16) {
	g := group.Decode(b1, b2, b3, b4)

	current := s.PI
	if current == "" {
		current = pitracker.Unknown
	}
	confirmed, changed := s.piTracker.Observe(g.PI(), current)
	if changed {
		s.resetForNewStation(confirmed)
	}

	s.TP = g.TP()
	s.PTY = g.PTY()

	now := s.clk.Now()
	s.recordGroup(g, now)

	switch {
	case g.Type == 0:
		s.updatePS(g.B2, g.B4)
		if g.Version == group.VersionA {
			s.AF.Update(g.B3)
		}
	case g.Type == 1:
		s.updateGroup1(g)
	case g.Type == 2:
		s.updateRT(g)
	case g.Type == 3 && g.Version == group.VersionA:
		s.ODARegistry.Bind(g.B2, g.B3, g.B4)
	case g.Type == 4 && g.Version == group.VersionA:
		s.updateCT(g)
	case g.Type == 8 && g.Version == group.VersionA:
		s.TMC.Update(g.B2, g.B3, g.B4, now)
	case g.Type == 10 && g.Version == group.VersionA:
		s.updatePTYN(g)
	case g.Type == 14:
		if g.Version == group.VersionA {
			s.EON.Update14A(g.B2, g.B3, g.B4)
		} else {
			s.EON.Update14B(g.B2, g.B4)
		}
	case g.Type == 15:
		s.updateLongPS(g)
	default:
		if s.ODARegistry.IsRTPlusGroup(g.Name()) {
			s.RTPlus.Update(g.B2, g.B3, g.B4, s.abFlag, s.ActiveRT, now)
		}
	}
}

// recordGroup appends this group's raw blocks to RecentGroups
// unconditionally, and bumps group_counts/group_total/group_sequence when
// the analyzer is active.
func (s *Station) recordGroup(g group.Group, now time.Time) {
	s.RecentGroups = append(s.RecentGroups, RawGroupRecord{
		Type:   g.Name(),
		Blocks: [4]uint16{g.B1, g.B2, g.B3, g.B4},
		Time:   now.Format("15:04:05"),
	})

	if !s.AnalyzerActive {
		return
	}
	s.countGroup(g.Name())
}

func (s *Station) countGroup(name string) {
	if s.GroupCounts == nil {
		s.GroupCounts = make(map[string]uint64)
	}
	s.GroupCounts[name]++
	s.GroupTotal++
	s.pushGroupSequence(name)
}

func (s *Station) pushGroupSequence(name string) {
	s.GroupSequence = append(s.GroupSequence, name)
	if len(s.GroupSequence) > groupSequenceCap {
		s.GroupSequence = s.GroupSequence[groupSequenceTrim:]
	}
}

// Success and Failure implement ingest.BERSink, letting an Ingester
// report extraction-level outcomes directly against the station's BER
// estimator.
func (s *Station) Success() {
	s.BER.Success()
}

func (s *Station) Failure() {
	s.BER.Failure()
}

// RecordCorruption implements ingest.AnalyzerSink.
func (s *Station) RecordCorruption() {
	s.Corruptions++
	if !s.AnalyzerActive {
		return
	}
	s.countGroup("--")
}

// DrainRecentGroups returns every RawGroupRecord accumulated since the
// last drain, and clears the backlog, so a publisher's snapshot only ever
// reports groups observed since its previous snapshot.
func (s *Station) DrainRecentGroups() []RawGroupRecord {
	out := s.RecentGroups
	s.RecentGroups = nil
	return out
}

func (s *Station) resetForNewStation(newPI string) {
	tracker := s.piTracker
	c := s.clk
	corruptions := s.Corruptions
	berWindowCap := s.berWindowCap
	berGraceCount := s.berGraceCount
	psHistoryCapacity := s.psHistoryCapacity
	rtHistoryCapacity := s.rtHistoryCapacity

	// Observable host-control flags (§6) are conceptually distinct from
	// the per-station data model this reset wipes, so they survive a PI
	// change intact.
	analyzerActive := s.AnalyzerActive
	var tmcActive, tmcPaused bool
	if s.TMC != nil {
		tmcActive = s.TMC.Active
		tmcPaused = s.TMC.Paused
	}

	*s = Station{
		clk: c, piTracker: tracker, Corruptions: corruptions,
		berWindowCap: berWindowCap, berGraceCount: berGraceCount,
		psHistoryCapacity: psHistoryCapacity, rtHistoryCapacity: rtHistoryCapacity,
	}

	s.PI = newPI
	s.AF = af.New()
	s.EON = eon.New()
	s.ODARegistry = oda.New()
	s.RTPlus = oda.NewExtractor()
	s.TMC = tmcgroup.New()
	s.TMC.Active = tmcActive
	s.TMC.Paused = tmcPaused
	s.BER = ber.NewWithConfig(berWindowCap, berGraceCount)
	s.PSHistory = history.NewPSHistoryWithCapacity(c, psHistoryCapacity)
	s.RTHistory = history.NewRTHistoryWithCapacity(c, rtHistoryCapacity)
	s.PSHistory.Gate.Establish()
	s.RTHistory.Gate.Establish()

	s.AnalyzerActive = analyzerActive
	s.GroupCounts = make(map[string]uint64)
}

func (s *Station) updatePS(b2, b4 uint16) {
	seg := b2 & 0x03
	s.psBuf[seg*2] = byte(b4 >> 8)
	s.psBuf[seg*2+1] = byte(b4)
	s.psMask |= 1 << seg

	if s.psMask == 0x0F {
		s.PSHistory.Observe(s.PS())
	}
}

// PS returns the decoded Program Service name, or "" until all four
// segments have arrived.
func (s *Station) PS() string {
	if s.psMask != 0x0F {
		return ""
	}
	return decodeBufPS(s.psBuf[:])
}

// updateGroup1 decodes ECC, LIC and PIN from a 1A/1B group. variant is a
// 3-bit field at B3 bits14..12: variant 0 carries ECC, variant 3 carries
// LIC, both as the low byte of B3. PIN is decoded from B4 on every group
// (1A or 1B alike) and published only when it's actually present (day !=
// 0).
func (s *Station) updateGroup1(g group.Group) {
	if g.Version == group.VersionA {
		variant := bits.Field(g.B3, 14, 12)
		switch variant {
		case 0:
			s.ECC = g.B3 & 0xFF
			s.HaveECC = true
		case 3:
			s.LIC = g.B3 & 0xFF
			s.HaveLIC = true
		}
	}

	if pin, ok := group.DecodePIN(g.B4); ok {
		s.PIN = pin
		s.HavePIN = true
	}
}

// updateRT writes a 2A/2B group into whichever of the two double-buffered
// RT buffers abFlag currently selects. On a flip of abFlag, only the
// newly-active buffer (and its mask) is cleared.
func (s *Station) updateRT(g group.Group) {
	flag := bits.Bit(g.B2, 11)
	idx := 0
	if flag {
		idx = 1
	}

	if s.haveABFlag && flag != s.abFlag {
		s.rtBuf[idx] = [64]byte{}
		s.rtMask[idx] = 0
	}
	s.abFlag = flag
	s.haveABFlag = true

	seg := g.B2 & 0x0F
	if g.Version == group.VersionA {
		pos := seg * 4
		s.rtBuf[idx][pos] = byte(g.B3 >> 8)
		s.rtBuf[idx][pos+1] = byte(g.B3)
		s.rtBuf[idx][pos+2] = byte(g.B4 >> 8)
		s.rtBuf[idx][pos+3] = byte(g.B4)
		s.rtMask[idx] |= 1 << seg
	} else {
		pos := seg * 2
		s.rtBuf[idx][pos] = byte(g.B4 >> 8)
		s.rtBuf[idx][pos+1] = byte(g.B4)
		s.rtMask[idx] |= 1 << seg
	}

	s.recomputeActiveRT(idx)
}

func (s *Station) recomputeActiveRT(idx int) {
	buf := s.rtBuf[idx][:]
	mask := s.rtMask[idx]

	for i, b := range buf {
		if b == charset.RTTerminator {
			s.ActiveRT = decodeBufRT(buf[:i])
			s.RTHistory.Observe(s.ActiveRT)
			return
		}
	}
	if mask != 0xFFFF {
		return
	}
	s.ActiveRT = decodeBufRT(buf)
	s.RTHistory.Observe(s.ActiveRT)
}

func (s *Station) updatePTYN(g group.Group) {
	abFlag := (g.B2>>4)&0x01 == 1
	if s.ptynHaveFlag && abFlag != s.ptynABFlag {
		s.ptynBuf = [8]byte{}
		s.ptynMask = 0
	}
	s.ptynABFlag = abFlag
	s.ptynHaveFlag = true

	seg := g.B2 & 0x01
	idx := seg * 4
	s.ptynBuf[idx] = byte(g.B3 >> 8)
	s.ptynBuf[idx+1] = byte(g.B3)
	s.ptynBuf[idx+2] = byte(g.B4 >> 8)
	s.ptynBuf[idx+3] = byte(g.B4)
	s.ptynMask |= 1 << seg
}

// PTYN returns the decoded dynamic Program Type name, or "" until both
// segments have arrived.
func (s *Station) PTYN() string {
	if s.ptynMask != 0x03 {
		return ""
	}
	return decodeBufPS(s.ptynBuf[:])
}

func (s *Station) updateLongPS(g group.Group) {
	seg := g.B2 & 0x07
	idx := seg * 4
	s.longPSBuf[idx] = byte(g.B3 >> 8)
	s.longPSBuf[idx+1] = byte(g.B3)
	s.longPSBuf[idx+2] = byte(g.B4 >> 8)
	s.longPSBuf[idx+3] = byte(g.B4)
	s.longPSMask |= 1 << seg
}

// LongPS returns the decoded 32-character Long PS name, or "" until all
// eight segments have arrived.
func (s *Station) LongPS() string {
	if s.longPSMask != 0xFF {
		return ""
	}
	return decodeBufPS(s.longPSBuf[:])
}

func (s *Station) updateCT(g group.Group) {
	mjd := (uint32(g.B2&0x03) << 15) | uint32(g.B3>>1)
	hour := int((g.B3&0x01)<<4) | int((g.B4>>12)&0x0F)
	minute := int((g.B4 >> 6) & 0x3F)
	offsetSign := (g.B4 >> 4) & 0x01
	offsetHalfHours := int(g.B4 & 0x0F)

	offset := time.Duration(offsetHalfHours) * 30 * time.Minute
	if offsetSign == 1 {
		offset = -offset
	}

	t := mjdToTime(mjd, hour, minute)
	s.UTCTime = t
	s.LocalTime = t.Add(offset)
	s.HaveCT = true
}

// mjdToTime converts a Modified Julian Day plus an hour/minute into a UTC
// time.Time, using the Gregorian-conversion formula from RDS Annex G.
func mjdToTime(mjd uint32, hour, minute int) time.Time {
	yy := int((float64(mjd) - 15078.2) / 365.25)
	mm := int((float64(mjd) - 14956.1 - math.Trunc(float64(yy)*365.25)) / 30.6001)
	dd := int(mjd) - 14956 - int(float64(yy)*365.25) - int(float64(mm)*30.6001)

	k := 0
	if mm == 14 || mm == 15 {
		k = 1
	}
	year := yy + k + 1900
	month := mm - 1 - k*12

	return time.Date(year, time.Month(month), dd, hour, minute, 0, 0, time.UTC)
}

// decodeBufPS decodes a PS-family buffer (PS, PTYN, Long PS), collapsing
// null bytes to spaces.
func decodeBufPS(buf []byte) string {
	runes := make([]rune, len(buf))
	for i, b := range buf {
		runes[i] = charset.DecodePSChar(b)
	}
	return string(runes)
}

// decodeBufRT decodes a RadioText buffer; unlike the PS-family buffers, a
// null byte here is not substituted with a space.
func decodeBufRT(buf []byte) string {
	runes := make([]rune, len(buf))
	for i, b := range buf {
		runes[i] = charset.Decode(b)
	}
	return string(runes)
}
