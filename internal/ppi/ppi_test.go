package ppi

import "testing"

type fakePIT struct{ out bool }

func (f *fakePIT) Channel2Output() bool { return f.out }

type fakePIC struct{ asserted []int }

func (f *fakePIC) AssertIRQ(n int) { f.asserted = append(f.asserted, n) }

type fakeSource struct {
	codes []byte
	i     int
}

func (f *fakeSource) ReadScancode() (byte, bool) {
	if f.i >= len(f.codes) {
		return 0, false
	}
	c := f.codes[f.i]
	f.i++
	return c, true
}

func TestPortCReflectsDipSwitches(t *testing.T) {
	p := New(&fakePIT{}, 0x0B) // 1011: color-active bit (bit 3) set, low three bits 3
	if got := p.In8(PortC); got != 0x0B {
		t.Fatalf("got %#x, want 0x0B", got)
	}
}

func TestPortBReflectsChannel2Output(t *testing.T) {
	pit := &fakePIT{out: true}
	p := New(pit, 0)
	if got := p.In8(PortB); got&(1<<6) == 0 {
		t.Fatalf("got %#x, want bit 6 set when PIT channel 2 output is high", got)
	}
	pit.out = false
	if got := p.In8(PortB); got&(1<<6) != 0 {
		t.Fatalf("got %#x, want bit 6 clear when PIT channel 2 output is low", got)
	}
}

func TestKeyboardPollLatchesScancodeAndAssertsIRQ1(t *testing.T) {
	pit := &fakePIT{}
	p := New(pit, 0)
	pic := &fakePIC{}
	src := &fakeSource{codes: []byte{0x1E}} // 'A' make code
	kbd := NewKeyboard(p, pic, src)

	kbd.Poll()

	if got := kbd.In8(PortKeyboardData); got != 0x1E {
		t.Fatalf("got %#x, want 0x1E", got)
	}
	if len(pic.asserted) != 1 || pic.asserted[0] != 1 {
		t.Fatalf("expected IRQ1 asserted once, got %v", pic.asserted)
	}
}

func TestKeyboardPollWithNoPendingByteDoesNothing(t *testing.T) {
	p := New(&fakePIT{}, 0)
	pic := &fakePIC{}
	kbd := NewKeyboard(p, pic, &fakeSource{})
	kbd.Poll()
	if len(pic.asserted) != 0 {
		t.Fatal("expected no IRQ when no scancode is pending")
	}
}
