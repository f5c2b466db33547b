package vga

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

type fakeSurface struct {
	cols, rows int
	cells      []byte
	calls      int
}

func (s *fakeSurface) UpdateText(cols, rows int, cells []byte) error {
	s.cols, s.rows = cols, rows
	s.cells = append([]byte(nil), cells...)
	s.calls++
	return nil
}

func (s *fakeSurface) Close() error { return nil }

func TestTextMemoryReadWrite(t *testing.T) {
	v := New(&fakeClock{t: time.Unix(0, 0)}, nil)
	v.WriteByte(TextWinBase, 'A')
	v.WriteByte(TextWinBase+1, 0x07)
	if got := v.ReadByte(TextWinBase); got != 'A' {
		t.Fatalf("got %q, want 'A'", got)
	}
	if got := v.ReadByte(TextWinBase + 1); got != 0x07 {
		t.Fatalf("got %#x, want 0x07", got)
	}
}

func TestCRTCIndexDataRegisterPair(t *testing.T) {
	v := New(&fakeClock{t: time.Unix(0, 0)}, nil)
	v.Out8(PortCRTCIndex, 0x0A)
	v.Out8(PortCRTCData, 0x55)
	if got := v.In8(PortCRTCData); got != 0x55 {
		t.Fatalf("got %#x, want 0x55", got)
	}
}

func TestOut16WritesCRTCIndexAndDataPair(t *testing.T) {
	v := New(&fakeClock{t: time.Unix(0, 0)}, nil)
	v.Out16(PortCRTCIndex, 0x550E) // index 0x0E, data 0x55 in one access
	v.Out8(PortCRTCIndex, 0x0E)
	if got := v.In8(PortCRTCData); got != 0x55 {
		t.Fatalf("got %#x, want 0x55", got)
	}
}

func TestAttributeIndexDataFlipFlop(t *testing.T) {
	v := New(&fakeClock{t: time.Unix(0, 0)}, nil)
	v.Out8(PortAttrIndexData, 0x03) // latches index
	v.Out8(PortAttrIndexData, 0x2A) // writes data for index 3
	v.In8(PortInputStatus1)         // resets the flip-flop
	v.Out8(PortAttrIndexData, 0x03)
	if got := v.In8(PortAttrIndexData); got != 0x2A {
		t.Fatalf("got %#x, want 0x2A", got)
	}
}

func TestRefreshFrameSkipsWithNoSurface(t *testing.T) {
	v := New(&fakeClock{t: time.Unix(0, 0)}, nil)
	if err := v.RefreshFrame(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.FrameCount() != 1 {
		t.Fatalf("got %d, want 1", v.FrameCount())
	}
}

func TestRefreshFrameRasterizesTextWindow(t *testing.T) {
	surface := &fakeSurface{}
	v := New(&fakeClock{t: time.Unix(0, 0)}, surface)
	v.WriteByte(TextWinBase, 'X')
	if err := v.RefreshFrame(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if surface.calls != 1 {
		t.Fatalf("got %d calls, want 1", surface.calls)
	}
	if surface.cols != 80 || surface.rows != 25 {
		t.Fatalf("got %dx%d, want 80x25", surface.cols, surface.rows)
	}
	if surface.cells[0] != 'X' {
		t.Fatalf("got %q, want 'X'", surface.cells[0])
	}
}
