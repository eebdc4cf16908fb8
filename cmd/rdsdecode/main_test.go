package main

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rds-radio/decoder/internal/clock"
	"github.com/rds-radio/decoder/internal/publisher"
	"github.com/rds-radio/decoder/internal/station"
	"github.com/rds-radio/decoder/tmc/resolver"
)

func TestHandleGroupsDecodesHexStream(t *testing.T) {
	mc := clock.NewManualClock(time.Unix(0, 0))
	st := station.New(mc)
	pub, err := publisher.New(st, mc, "@every 1h", nil)
	if err != nil {
		t.Fatal(err)
	}

	var logBuf bytes.Buffer
	logger := log.New(&logBuf, "", 0)

	input := strings.NewReader("D318 0000 0000 5261\n")
	HandleGroups(input, st, pub, logger)

	if st.PI != "D318" {
		t.Errorf("PI = %q, want D318", st.PI)
	}
}

func TestHandleGroupsSkipsCorruptTuples(t *testing.T) {
	mc := clock.NewManualClock(time.Unix(0, 0))
	st := station.New(mc)
	pub, err := publisher.New(st, mc, "@every 1h", nil)
	if err != nil {
		t.Fatal(err)
	}
	logger := log.New(&bytes.Buffer{}, "", 0)

	input := strings.NewReader("---- ---- ---- ----\n")
	HandleGroups(input, st, pub, logger)

	if st.Corruptions != 1 {
		t.Errorf("Corruptions = %d, want 1", st.Corruptions)
	}
}

func TestCountryIDFromPI(t *testing.T) {
	cid, ok := countryIDFromPI("D318")
	if !ok || cid != 0xD {
		t.Errorf("countryIDFromPI(D318) = (%#x, %v), want (0xd, true)", cid, ok)
	}
	if _, ok := countryIDFromPI(""); ok {
		t.Error("countryIDFromPI(\"\") should report false")
	}
}

func TestResolveOnceAppliesLocationUpdatesAndMarksDirty(t *testing.T) {
	mc := clock.NewManualClock(time.Unix(0, 0))
	st := station.New(mc)
	pub, err := publisher.New(st, mc, "@every 1h", nil)
	if err != nil {
		t.Fatal(err)
	}
	logger := log.New(&bytes.Buffer{}, "", 0)

	// Establish a PI, a location table number and one user message.
	st.Observe(0xD318, 0, 0, 0)
	st.Observe(0xD318, uint16(8<<12)|uint16(1<<4), uint16(12)<<10, 0) // 8A, T=1, LTN=12
	st.Observe(0xD318, uint16(8<<12), uint16(257), 12345)            // 8A, T=0, location 12345

	// cid is the top nibble of PI "D318" (0xD = 13); local file named
	// <cid>_<tabcd>.json must match.
	dir := t.TempDir()
	blob := `{"12345": [51.5, -0.1, "Test Point", 1, 2]}`
	if err := os.WriteFile(filepath.Join(dir, "13_12.json"), []byte(blob), 0o644); err != nil {
		t.Fatal(err)
	}

	r := resolver.New(dir, nil, 50, time.Millisecond, time.Second)
	resolveOnce(context.Background(), st, pub, r, logger)

	if len(st.TMC.Messages) != 1 {
		t.Fatalf("expected one TMC message, got %d", len(st.TMC.Messages))
	}
	m := st.TMC.Messages[0]
	if !m.LocationResolved {
		t.Fatal("expected the message's location to be marked resolved")
	}
	if m.LocationName != "Test Point" || m.Lat != 51.5 {
		t.Errorf("location fields not applied: %+v", m)
	}
}
