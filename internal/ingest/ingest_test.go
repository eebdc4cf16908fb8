package ingest

import "testing"

type fakeBER struct {
	successes, failures int
}

func (f *fakeBER) Success() { f.successes++ }
func (f *fakeBER) Failure() { f.failures++ }

type fakeAnalyzer struct {
	corruptions int
}

func (f *fakeAnalyzer) RecordCorruption() { f.corruptions++ }

func TestFeedHexTuple(t *testing.T) {
	ber := &fakeBER{}
	in := New(ber, nil, nil)

	events := in.Feed([]byte("D318:0800:0000:4243\n"))
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Kind != EventGroup {
		t.Fatalf("kind = %v, want EventGroup", ev.Kind)
	}
	want := [4]uint16{0xD318, 0x0800, 0x0000, 0x4243}
	if ev.Group != want {
		t.Errorf("group = %v, want %v", ev.Group, want)
	}
	if ber.successes != 1 {
		t.Errorf("successes = %d, want 1", ber.successes)
	}
}

func TestFeedCorruptTuple(t *testing.T) {
	ber := &fakeBER{}
	analyzer := &fakeAnalyzer{}
	in := New(ber, analyzer, nil)

	events := in.Feed([]byte("D318,0800,----,4243\n"))
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Kind != EventCorruption {
		t.Errorf("kind = %v, want EventCorruption", events[0].Kind)
	}
	if ber.failures != 1 {
		t.Errorf("failures = %d, want 1", ber.failures)
	}
	if analyzer.corruptions != 1 {
		t.Errorf("corruptions = %d, want 1", analyzer.corruptions)
	}
}

func TestFeedJSONRecord(t *testing.T) {
	ber := &fakeBER{}
	in := New(ber, nil, nil)

	events := in.Feed([]byte(`{"g1":54040,"g2":2048,"g3":0,"g4":16963}`))
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	want := [4]uint16{54040, 2048, 0, 16963}
	if events[0].Group != want {
		t.Errorf("group = %v, want %v", events[0].Group, want)
	}
}

func TestFeedInterleaved(t *testing.T) {
	ber := &fakeBER{}
	in := New(ber, nil, nil)

	data := []byte(`D318:0800:0000:4243 {"g1":1,"g2":2,"g3":3,"g4":4} D318-0800-0000-4243`)
	events := in.Feed(data)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
}

func TestWatchdogTrimsNoise(t *testing.T) {
	ber := &fakeBER{}
	in := New(ber, nil, nil)

	noise := make([]byte, 600)
	for i := range noise {
		noise[i] = 'x'
	}
	in.Feed(noise)

	if ber.failures != 1 {
		t.Errorf("failures = %d, want 1", ber.failures)
	}
	if len(in.buf) != 600-watchdogTrim {
		t.Errorf("buffer length = %d, want %d", len(in.buf), 600-watchdogTrim)
	}
}

func TestFeedAcrossCalls(t *testing.T) {
	ber := &fakeBER{}
	in := New(ber, nil, nil)

	events := in.Feed([]byte("D318:08"))
	if len(events) != 0 {
		t.Fatalf("got %d events before full frame arrives, want 0", len(events))
	}
	events = in.Feed([]byte("00:0000:4243"))
	if len(events) != 1 {
		t.Fatalf("got %d events after full frame arrives, want 1", len(events))
	}
}
