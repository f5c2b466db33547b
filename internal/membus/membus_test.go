package membus

import "testing"

type fakeDevice struct {
	reads  []uint32
	mem    map[uint32]uint8
}

func newFakeDevice() *fakeDevice { return &fakeDevice{mem: map[uint32]uint8{}} }

func (d *fakeDevice) ReadByte(addr uint32) uint8 {
	d.reads = append(d.reads, addr)
	return d.mem[addr]
}

func (d *fakeDevice) WriteByte(addr uint32, v uint8) { d.mem[addr] = v }

func TestUnmappedReadReturnsZero(t *testing.T) {
	b := New()
	if got := b.ReadByte(0x1234); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	b := New()
	b.WriteByte(0x500, 0x42)
	if got := b.ReadByte(0x500); got != 0x42 {
		t.Fatalf("got %#x, want 0x42", got)
	}
}

func TestLittleEndianWordAccess(t *testing.T) {
	b := New()
	b.WriteWord(0x1000, 0xABCD)
	if got := b.ReadByte(0x1000); got != 0xCD {
		t.Fatalf("low byte %#x, want 0xCD", got)
	}
	if got := b.ReadByte(0x1001); got != 0xAB {
		t.Fatalf("high byte %#x, want 0xAB", got)
	}
	if got := b.ReadWord(0x1000); got != 0xABCD {
		t.Fatalf("got %#x, want 0xABCD", got)
	}
}

func TestOverlayTakesPriorityOverRAM(t *testing.T) {
	b := New()
	dev := newFakeDevice()
	b.AddPeripheral(0x2000, 0x100, dev)
	b.WriteByte(0x2010, 0x99)
	if _, ok := dev.mem[0x2010]; !ok {
		t.Fatal("write did not reach the overlay device")
	}
	if got := b.ReadByte(0x2010); got != 0x99 {
		t.Fatalf("got %#x, want 0x99", got)
	}
	b.WriteByte(0x2FFF, 1) // outside the mapping, still RAM
	if got := b.ReadByte(0x2FFF); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
}

func TestWordBaseInMappingRoutesEntirelyToDevice(t *testing.T) {
	b := New()
	dev := newFakeDevice()
	b.AddPeripheral(0x3000, 1, dev)
	dev.mem[0x3000] = 0x11
	b.ReadWord(0x3000)
	if len(dev.reads) != 2 {
		t.Fatalf("expected both word bytes routed to the device, got %d reads", len(dev.reads))
	}
}

func TestGetPointerUnavailableInsideMapping(t *testing.T) {
	b := New()
	dev := newFakeDevice()
	b.AddPeripheral(0xF0000, 0x1000, dev)
	if _, ok := b.GetPointer(0xF0000, 0x100); ok {
		t.Fatal("expected GetPointer to refuse a range overlapping a mapping")
	}
	if _, ok := b.GetPointer(0xE0000, 0x100); !ok {
		t.Fatal("expected GetPointer to succeed outside any mapping")
	}
}
