package group

import "testing"

func TestDecodeTypeAndVersion(t *testing.T) {
	// type 0A: B2 bits 15..12 = 0000, bit 11 = 0 (version A)
	g := Decode(0xD318, 0x0800, 0, 0)
	if g.Type != 0 {
		t.Errorf("Type = %d, want 0", g.Type)
	}
	if g.Version != VersionA {
		t.Errorf("Version = %c, want A", g.Version)
	}
	if g.Name() != "0A" {
		t.Errorf("Name = %s, want 0A", g.Name())
	}

	// type 2B: bits 15..12 = 0010, bit 11 = 1
	g2 := Decode(0xD318, 0x2800, 0, 0)
	if g2.Type != 2 || g2.Version != VersionB {
		t.Errorf("got type %d version %c, want 2B", g2.Type, g2.Version)
	}
	if g2.Name() != "2B" {
		t.Errorf("Name = %s, want 2B", g2.Name())
	}
}

func TestPI(t *testing.T) {
	g := Decode(0xD318, 0, 0, 0)
	if g.PI() != "D318" {
		t.Errorf("PI = %s, want D318", g.PI())
	}
}

func TestTPAndPTY(t *testing.T) {
	// bit10 set (TP), bits9..5 = 10101 (0x15)
	b2 := uint16(0x0000)
	b2 |= 1 << 10          // TP
	b2 |= 0x15 << 5        // PTY = 0x15
	g := Decode(0, b2, 0, 0)
	if !g.TP() {
		t.Error("expected TP true")
	}
	if g.PTY() != 0x15 {
		t.Errorf("PTY = 0x%X, want 0x15", g.PTY())
	}
}
