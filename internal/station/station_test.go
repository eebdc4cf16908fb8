package station

import (
	"testing"
	"time"

	"github.com/rds-radio/decoder/internal/clock"
)

func b2Type(typ int, ver byte, tp bool, pty int, low uint16) uint16 {
	var b2 uint16
	b2 |= uint16(typ&0xF) << 12
	if ver == 'B' {
		b2 |= 1 << 11
	}
	if tp {
		b2 |= 1 << 10
	}
	b2 |= uint16(pty&0x1F) << 5
	b2 |= low
	return b2
}

func TestObserveConfirmsPIOnFirstGroup(t *testing.T) {
	s := New(clock.NewManualClock(time.Unix(0, 0)))
	s.Observe(0xD318, b2Type(0, 'A', false, 0, 0), 0, 0)

	if s.PI != "D318" {
		t.Errorf("PI = %q, want D318", s.PI)
	}
	if s.BER == nil {
		t.Fatal("BER estimator should be initialized after first group")
	}
}

func TestPSAssemblyAcrossFourSegments(t *testing.T) {
	s := New(clock.NewManualClock(time.Unix(0, 0)))
	chars := [4][2]byte{{'R', 'a'}, {'d', 'i'}, {'o', ' '}, {'O', 'n'}}

	for seg, pair := range chars {
		b2 := b2Type(0, 'A', false, 0, uint16(seg))
		b4 := uint16(pair[0])<<8 | uint16(pair[1])
		s.Observe(0xD318, b2, 0, b4)
	}

	if got := s.PS(); got != "Radio On" {
		t.Errorf("PS() = %q, want %q", got, "Radio On")
	}
}

func TestRTAssemblyWithTerminator(t *testing.T) {
	s := New(clock.NewManualClock(time.Unix(0, 0)))

	// Segment 0: "Now " ; segment 1: "On\rXX" (terminator ends message early).
	b2seg0 := b2Type(2, 'A', false, 0, 0)
	b3seg0 := uint16('N')<<8 | uint16('o')
	b4seg0 := uint16('w')<<8 | uint16(' ')
	s.Observe(0xD318, b2seg0, b3seg0, b4seg0)

	b2seg1 := b2Type(2, 'A', false, 0, 1)
	b3seg1 := uint16('O')<<8 | uint16('n')
	b4seg1 := uint16(0x0D)<<8 | uint16('X')
	s.Observe(0xD318, b2seg1, b3seg1, b4seg1)

	if s.ActiveRT != "Now On" {
		t.Errorf("ActiveRT = %q, want %q", s.ActiveRT, "Now On")
	}
}

func TestPIChangeTriggersDeepReset(t *testing.T) {
	s := New(clock.NewManualClock(time.Unix(0, 0)))
	b2 := b2Type(0, 'A', false, 0, 0)
	b4 := uint16('R')<<8 | uint16('a')

	s.Observe(0xD318, b2, 0, b4)
	if s.PS() != "" {
		t.Fatal("PS should not be complete yet")
	}

	// New PI must repeat 4 times (from an already-established station) to
	// take over.
	for i := 0; i < 3; i++ {
		s.Observe(0xF00D, b2, 0, b4)
		if s.PI != "D318" {
			t.Fatalf("PI changed too early on repeat %d: %s", i+1, s.PI)
		}
	}
	s.Observe(0xF00D, b2, 0, b4)
	if s.PI != "F00D" {
		t.Fatalf("PI = %s, want F00D after 4th repeat", s.PI)
	}
	// The deep reset must have cleared the partial PS buffer from D318.
	segB4 := uint16('d')<<8 | uint16('i')
	s.Observe(0xF00D, b2Type(0, 'A', false, 0, 1), 0, segB4)
	if s.PS() != "" {
		t.Error("PS should still be incomplete after reset, not carrying over old segments")
	}
}

func TestCTDecode(t *testing.T) {
	s := New(clock.NewManualClock(time.Unix(0, 0)))

	// MJD for 2024-01-15 is 60324. hour=14, minute=30, offset=+1h (2 half-hours).
	mjd := uint32(60324)
	b2 := b2Type(4, 'A', false, 0, uint16(mjd>>15)&0x03)
	b3 := uint16((mjd&0x7FFF)<<1) | uint16((14>>4)&0x01)
	b4 := uint16(14&0x0F)<<12 | uint16(30&0x3F)<<6 | uint16(2&0x1F)

	s.Observe(0xD318, b2, b3, b4)

	if !s.HaveCT {
		t.Fatal("expected HaveCT true")
	}
	if s.UTCTime.Year() != 2024 || s.UTCTime.Month() != time.January || s.UTCTime.Day() != 15 {
		t.Errorf("UTCTime = %v, want 2024-01-15", s.UTCTime)
	}
	if s.UTCTime.Hour() != 14 || s.UTCTime.Minute() != 30 {
		t.Errorf("UTCTime time-of-day = %02d:%02d, want 14:30", s.UTCTime.Hour(), s.UTCTime.Minute())
	}
	if s.LocalTime.Hour() != 15 {
		t.Errorf("LocalTime.Hour() = %d, want 15 (UTC+1)", s.LocalTime.Hour())
	}
}

func TestGroup1ECCAndPIN(t *testing.T) {
	s := New(clock.NewManualClock(time.Unix(0, 0)))
	b2 := b2Type(1, 'A', false, 0, 0)
	variant := uint16(0) // ECC
	b3 := variant<<12 | 0x4A
	day, hour, minute := uint16(5), uint16(14), uint16(30)
	b4 := day<<11 | hour<<6 | minute

	s.Observe(0xD318, b2, b3, b4)

	if !s.HaveECC || s.ECC != 0x4A {
		t.Errorf("ECC = %#x (have=%v), want 0x4A", s.ECC, s.HaveECC)
	}
	if !s.HavePIN || s.PIN.Day != 5 || s.PIN.Hour != 14 || s.PIN.Minute != 30 {
		t.Errorf("PIN = %+v (have=%v), want {5 14 30}", s.PIN, s.HavePIN)
	}
}

func TestGroup1LIC(t *testing.T) {
	s := New(clock.NewManualClock(time.Unix(0, 0)))
	b2 := b2Type(1, 'A', false, 0, 0)
	variant := uint16(3) // LIC
	b3 := variant<<12 | 0x7B

	s.Observe(0xD318, b2, b3, 0)

	if !s.HaveLIC || s.LIC != 0x7B {
		t.Errorf("LIC = %#x (have=%v), want 0x7B", s.LIC, s.HaveLIC)
	}
}

func TestGroup1PINNotPublishedWhenDayZero(t *testing.T) {
	s := New(clock.NewManualClock(time.Unix(0, 0)))
	b2 := b2Type(1, 'A', false, 0, 0)

	s.Observe(0xD318, b2, 0, 0)

	if s.HavePIN {
		t.Error("PIN should not be published when day is zero")
	}
}

func TestRTDoubleBufferingKeyedByABFlag(t *testing.T) {
	s := New(clock.NewManualClock(time.Unix(0, 0)))

	abOn := uint16(1 << 4)

	// Buffer 0 (ab_flag=0): "Now Playing"
	seg0 := b2Type(2, 'A', false, 0, 0)
	s.Observe(0xD318, seg0, uint16('N')<<8|uint16('o'), uint16('w')<<8|uint16(' '))
	seg1 := b2Type(2, 'A', false, 0, 1)
	s.Observe(0xD318, seg1, uint16('P')<<8|uint16('l'), uint16('a')<<8|uint16('y'))
	seg2 := b2Type(2, 'A', false, 0, 2)
	s.Observe(0xD318, seg2, uint16('i')<<8|uint16('n'), uint16('g')<<8|uint16(0x0D))

	if s.ActiveRT != "Now Playing" {
		t.Fatalf("ActiveRT = %q, want %q", s.ActiveRT, "Now Playing")
	}

	// Flip ab_flag: only buffer 1 should start empty; buffer 0 (still
	// holding "Now Playing") is untouched.
	flipSeg := b2Type(2, 'A', false, 0, 0) | abOn
	s.Observe(0xD318, flipSeg, uint16('H')<<8|uint16('i'), uint16(0x0D)<<8|uint16('X'))

	if s.ActiveRT != "Hi" {
		t.Errorf("ActiveRT = %q, want %q after flip", s.ActiveRT, "Hi")
	}
}

func TestRTUsesPlainDecodeNotPSNullCollapse(t *testing.T) {
	s := New(clock.NewManualClock(time.Unix(0, 0)))

	seg0 := b2Type(2, 'A', false, 0, 0)
	b3 := uint16('A')<<8 | uint16(0) // a null byte mid-text
	b4 := uint16('B')<<8 | uint16(0x0D)
	s.Observe(0xD318, seg0, b3, b4)

	if len(s.ActiveRT) == 0 || s.ActiveRT[1] == ' ' {
		t.Errorf("ActiveRT = %q, null byte should not be collapsed to space in RT", s.ActiveRT)
	}
}

func TestAnalyzerCountsGatedOnAnalyzerActive(t *testing.T) {
	s := New(clock.NewManualClock(time.Unix(0, 0)))
	b2 := b2Type(0, 'A', false, 0, 0)

	s.Observe(0xD318, b2, 0, 0)
	if s.GroupTotal != 0 || len(s.GroupCounts) != 0 {
		t.Error("group_counts/group_total should not update while AnalyzerActive is false")
	}
	if len(s.RecentGroups) != 1 {
		t.Error("RecentGroups should accumulate regardless of AnalyzerActive")
	}

	s.AnalyzerActive = true
	s.Observe(0xD318, b2, 0, 0)
	if s.GroupTotal != 1 {
		t.Errorf("GroupTotal = %d, want 1", s.GroupTotal)
	}
	if s.GroupCounts["0A"] != 1 {
		t.Errorf("GroupCounts[0A] = %d, want 1", s.GroupCounts["0A"])
	}
	if len(s.GroupSequence) != 1 || s.GroupSequence[0] != "0A" {
		t.Errorf("GroupSequence = %v, want [0A]", s.GroupSequence)
	}
}

func TestRecordCorruptionCountsWhenAnalyzerActive(t *testing.T) {
	s := New(clock.NewManualClock(time.Unix(0, 0)))
	s.AnalyzerActive = true

	s.RecordCorruption()
	if s.Corruptions != 1 {
		t.Errorf("Corruptions = %d, want 1", s.Corruptions)
	}
	if s.GroupCounts["--"] != 1 || s.GroupTotal != 1 {
		t.Errorf("corruption should bump group_counts[--] and group_total, got %+v total=%d", s.GroupCounts, s.GroupTotal)
	}
}

func TestDrainRecentGroupsClearsBacklog(t *testing.T) {
	s := New(clock.NewManualClock(time.Unix(0, 0)))
	b2 := b2Type(0, 'A', false, 0, 0)
	s.Observe(0xD318, b2, 0, 0)

	got := s.DrainRecentGroups()
	if len(got) != 1 {
		t.Fatalf("len(DrainRecentGroups()) = %d, want 1", len(got))
	}
	if len(s.RecentGroups) != 0 {
		t.Error("RecentGroups should be empty after draining")
	}
}

func TestAnalyzerActiveSurvivesPIChange(t *testing.T) {
	s := New(clock.NewManualClock(time.Unix(0, 0)))
	s.AnalyzerActive = true
	b2 := b2Type(0, 'A', false, 0, 0)
	b4 := uint16('R')<<8 | uint16('a')

	s.Observe(0xD318, b2, 0, b4)
	for i := 0; i < 4; i++ {
		s.Observe(0xF00D, b2, 0, b4)
	}
	if s.PI != "F00D" {
		t.Fatalf("PI = %s, want F00D", s.PI)
	}
	if !s.AnalyzerActive {
		t.Error("AnalyzerActive should survive a PI change")
	}
}
