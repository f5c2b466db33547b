package iobus

import "testing"

type fakePort struct {
	val uint8
}

func (p *fakePort) In8(port uint16) uint8     { return p.val }
func (p *fakePort) Out8(port uint16, v uint8) { p.val = v }

func TestUnmappedInReturnsZero(t *testing.T) {
	b := New()
	if got := b.In8(0x40); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
}

func TestUnmappedOutIsDropped(t *testing.T) {
	b := New()
	b.Out8(0x80, 0xFF) // must not panic
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	b := New()
	dev := &fakePort{}
	b.AddPeripheral(0x60, 1, dev)
	b.Out8(0x60, 0x5A)
	if got := b.In8(0x60); got != 0x5A {
		t.Fatalf("got %#x, want 0x5A", got)
	}
}

func TestWord16DegradesToLowByteWithoutWordPeripheral(t *testing.T) {
	b := New()
	dev := &fakePort{val: 0x77}
	b.AddPeripheral(0x300, 1, dev)
	if got := b.In16(0x300); got != 0x77 {
		t.Fatalf("got %#x, want 0x0077", got)
	}
	b.Out16(0x300, 0x1234)
	if dev.val != 0x34 {
		t.Fatalf("got %#x, want low byte 0x34 only", dev.val)
	}
}
