package pitracker

import "testing"

func TestFirstObservationConfirmsFromUnknown(t *testing.T) {
	var tr Tracker
	confirmed, changed := tr.Observe("D318", Unknown)
	if !changed || confirmed != "D318" {
		t.Errorf("got (%s, %v), want (D318, true)", confirmed, changed)
	}
}

func TestRequiresFourRepeatsOnceEstablished(t *testing.T) {
	var tr Tracker
	current := "D318"

	for i := 0; i < 3; i++ {
		confirmed, changed := tr.Observe("F00D", current)
		if changed {
			t.Fatalf("changed too early on repeat %d", i+1)
		}
		current = confirmed
	}

	confirmed, changed := tr.Observe("F00D", current)
	if !changed || confirmed != "F00D" {
		t.Errorf("got (%s, %v), want (F00D, true) on 4th repeat", confirmed, changed)
	}
}

func TestFlapDoesNotChangeConfirmedPI(t *testing.T) {
	var tr Tracker
	current := "D318"

	tr.Observe("F00D", current)
	tr.Observe("F00D", current)
	confirmed, changed := tr.Observe("D318", current)
	if changed {
		t.Error("brief flap should not change confirmed PI")
	}
	if confirmed != "D318" {
		t.Errorf("confirmed = %s, want D318", confirmed)
	}
}
