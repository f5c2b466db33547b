package fdc

import (
	"errors"
	"testing"

	"pcxt/internal/dma"
)

type fakePIC struct{ asserted []int }

func (p *fakePIC) AssertIRQ(n int) { p.asserted = append(p.asserted, n) }

type memSink struct{ data [1 << 20]byte }

func (m *memSink) WriteByte(addr uint32, v uint8) { m.data[addr] = v }

type fakeImage struct {
	data []byte
	fail bool
}

func (f *fakeImage) ReadAt(offset int64, p []byte) (int, error) {
	if f.fail {
		return 0, errors.New("read failure")
	}
	if int(offset)+len(p) > len(f.data) {
		return 0, errors.New("out of range")
	}
	return copy(p, f.data[offset:offset+int64(len(p))]), nil
}

func newFloppyImage() *fakeImage {
	data := make([]byte, 80*2*18*512)
	for i := range data {
		data[i] = byte(i)
	}
	return &fakeImage{data: data}
}

func TestResetSenseInterruptStatus(t *testing.T) {
	pic := &fakePIC{}
	mem := &memSink{}
	dmac := dma.New(mem)
	f := New(newFloppyImage(), dmac, pic)

	f.Out8(PortDataFifo, 0x08) // SenseInterruptStatus
	got := []byte{f.In8(PortDataFifo), f.In8(PortDataFifo)}
	want := []byte{0xC0, 0x00}
	if got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSeekClearsDiskChange(t *testing.T) {
	pic := &fakePIC{}
	mem := &memSink{}
	dmac := dma.New(mem)
	f := New(newFloppyImage(), dmac, pic)
	f.SetImageReplaced()
	if !f.diskChange {
		t.Fatal("expected disk-change latch set")
	}
	f.Out8(PortDataFifo, 15) // Seek
	f.Out8(PortDataFifo, 0)  // unit/head
	f.Out8(PortDataFifo, 5)  // target cylinder
	if f.diskChange {
		t.Fatal("expected Seek to clear disk-change latch")
	}
}

func TestReadIDReportsControllerState(t *testing.T) {
	pic := &fakePIC{}
	mem := &memSink{}
	dmac := dma.New(mem)
	f := New(newFloppyImage(), dmac, pic)

	f.Out8(PortDataFifo, 7) // Recalibrate, sets st0 to SeekEnd
	f.Out8(PortDataFifo, 0)

	f.Out8(PortDataFifo, 10) // ReadID
	f.Out8(PortDataFifo, 0)  // drive select

	want := []byte{st0SeekEnd, 0, 0, 0, 0, 0, 2}
	for i, w := range want {
		if got := f.In8(PortDataFifo); got != w {
			t.Fatalf("result byte %d = %#x, want %#x", i, got, w)
		}
	}
}

func TestReadDataTransfersSectorAndReportsCommandCHR(t *testing.T) {
	pic := &fakePIC{}
	mem := &memSink{}
	dmac := dma.New(mem)
	f := New(newFloppyImage(), dmac, pic)

	dmac.Out8(dma.PortMask, 2)        // unmask channel 2
	dmac.Out8(dma.PortMode, (1<<2)|2) // write transfer, channel 2
	dmac.Out8(5, 511&0xFF)            // one sector, count holds length-1
	dmac.Out8(5, 511>>8)

	f.Out8(PortDataFifo, 6) // ReadData
	f.Out8(PortDataFifo, 0) // hds/ds
	f.Out8(PortDataFifo, 0) // c
	f.Out8(PortDataFifo, 0) // h
	f.Out8(PortDataFifo, 1) // r
	f.Out8(PortDataFifo, 2) // n
	for i := 0; i < 3; i++ {
		f.Out8(PortDataFifo, 0) // eot/gpl/dtl
	}

	for i := 0; i < 512; i++ {
		if mem.data[i] != byte(i) {
			t.Fatalf("memory byte %d = %#x, want %#x", i, mem.data[i], byte(i))
		}
	}
	want := []byte{st0ICNormal, 0, 0, 0, 0, 1, 2}
	for i, w := range want {
		if got := f.In8(PortDataFifo); got != w {
			t.Fatalf("result byte %d = %#x, want %#x", i, got, w)
		}
	}
}

func TestReadDataFailureReportsNoData(t *testing.T) {
	pic := &fakePIC{}
	mem := &memSink{}
	dmac := dma.New(mem)
	img := newFloppyImage()
	img.fail = true
	f := New(img, dmac, pic)

	dmac.Out8(dma.PortMask, 2) // unmask channel 2
	dmac.Out8(dma.PortMode, (1<<2)|2) // write transfer, channel 2
	// program count for a single sector (register holds length-1 = 511)
	dmac.Out8(5, 511&0xFF)
	dmac.Out8(5, 511>>8)

	f.Out8(PortDataFifo, 6) // ReadData
	for i := 0; i < 8; i++ {
		f.Out8(PortDataFifo, 0)
	}

	st0 := f.In8(PortDataFifo)
	st1 := f.In8(PortDataFifo)
	if st0&st0ICAbnormal == 0 {
		t.Fatalf("st0 = %#x, expected abnormal-termination bit set", st0)
	}
	if st1&st1NoData == 0 {
		t.Fatalf("st1 = %#x, expected NoData bit set", st1)
	}
	status := dmac.In8(dma.PortStatusCommand)
	if status&(1<<2) == 0 {
		t.Fatal("expected DMA transfer-complete bit set even on read failure")
	}
}
