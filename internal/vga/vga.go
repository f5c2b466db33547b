// Package vga implements the text-mode slice of VGA this platform actually
// uses: the B8000 text window, the CRTC and attribute-controller index/data
// register pairs, and retrace status derived from wall-clock time. Planar
// graphics modes are not modeled; the video RAM outside the text window is
// plain storage.
package vga

import (
	"pcxt/internal/hostio"
)

// Memory window, relative to the 1 MiB address space.
const (
	MemBase     = 0xA0000
	MemSize     = 0x20000
	TextWinBase = 0xB8000
	TextWinSize = 0x1000
)

// Port offsets for the color (3Dx) CRTC range; the monochrome (3Bx) range
// mirrors the same register layout one segment lower and is handled by
// registering a second mapping at the caller's discretion.
const (
	PortCRTCIndex     = 0x04 // 3D4
	PortCRTCData      = 0x05 // 3D5
	PortInputStatus1  = 0x0A // 3DA: retrace status, also resets the attr flip-flop on read
	PortAttrIndexData = 0x00 // 3C0: shared index/data port, flip-flop driven
)

const (
	crtcRegCount = 24
	attrRegCount = 20
)

const (
	cols = 80
	rows = 25
)

// Retrace timing matches the 70 Hz refresh of VGA text mode.
const refreshHz = 70

// VGA is the text-mode VGA controller.
type VGA struct {
	vram [MemSize]byte

	crtcIndex uint8
	crtcRegs  [crtcRegCount]uint8

	attrIndex uint8
	attrRegs  [attrRegCount]uint8
	attrFlip  bool

	clock      hostio.Clock
	resetAtNS  int64
	frameCount uint64

	surface hostio.DisplaySurface
}

// New returns a VGA controller anchored to the given clock and (optional)
// display surface.
func New(clock hostio.Clock, surface hostio.DisplaySurface) *VGA {
	v := &VGA{clock: clock, surface: surface}
	v.Reset()
	return v
}

// Reset zero-fills video memory and re-anchors the retrace clock.
func (v *VGA) Reset() {
	for i := range v.vram {
		v.vram[i] = 0
	}
	v.crtcIndex = 0
	v.attrIndex = 0
	v.attrFlip = false
	v.frameCount = 0
	v.resetAtNS = v.clock.Now().UnixNano()
}

// ReadByte reads video memory relative to MemBase.
func (v *VGA) ReadByte(addr uint32) uint8 {
	off := addr - MemBase
	if off >= MemSize {
		return 0
	}
	return v.vram[off]
}

// WriteByte writes video memory relative to MemBase.
func (v *VGA) WriteByte(addr uint32, b uint8) {
	off := addr - MemBase
	if off >= MemSize {
		return
	}
	v.vram[off] = b
}

// In8 reads a VGA I/O register.
func (v *VGA) In8(port uint16) uint8 {
	switch port & 0x0F {
	case PortCRTCData:
		return v.crtcRegs[v.crtcIndex%crtcRegCount]
	case PortInputStatus1:
		v.attrFlip = false
		return v.retraceStatus()
	case PortAttrIndexData:
		if v.attrFlip {
			val := v.attrRegs[v.attrIndex%attrRegCount]
			return val
		}
		return v.attrIndex
	}
	return 0
}

// Out8 writes a VGA I/O register.
func (v *VGA) Out8(port uint16, val uint8) {
	switch port & 0x0F {
	case PortCRTCIndex:
		v.crtcIndex = val
	case PortCRTCData:
		v.crtcRegs[v.crtcIndex%crtcRegCount] = val
	case PortAttrIndexData:
		if !v.attrFlip {
			v.attrIndex = val & 0x1F
			v.attrFlip = true
		} else {
			v.attrRegs[v.attrIndex%attrRegCount] = val
			v.attrFlip = false
		}
	}
}

// In16 splits a word access into two byte reads, low port first.
func (v *VGA) In16(port uint16) uint16 {
	lo := v.In8(port)
	hi := v.In8(port + 1)
	return uint16(lo) | uint16(hi)<<8
}

// Out16 splits a word access into two byte writes. BIOS code programs the
// CRTC with single 16-bit OUTs carrying the index in the low byte and the
// data in the high byte, so this split is what makes those work.
func (v *VGA) Out16(port uint16, val uint16) {
	v.Out8(port, uint8(val))
	v.Out8(port+1, uint8(val>>8))
}

// retraceStatus synthesizes the input-status-1 register's horizontal and
// vertical retrace bits from wall-clock elapsed time. Bit 0 is horizontal
// retrace, bit 3 is vertical retrace.
func (v *VGA) retraceStatus() uint8 {
	elapsed := v.clock.Now().UnixNano() - v.resetAtNS
	frameNS := int64(1_000_000_000 / refreshHz)
	within := elapsed % frameNS
	var s uint8
	if within < frameNS/10 {
		s |= 1 << 3 // vertical retrace for the first 10% of the frame
	}
	if within%(frameNS/100) < frameNS/1000 {
		s |= 1 << 0 // horizontal retrace pulses throughout the frame
	}
	return s
}

// RefreshFrame rasterizes the current text window to the display surface,
// if one is attached. Called periodically by internal/machine's outer loop.
func (v *VGA) RefreshFrame() error {
	v.frameCount++
	if v.surface == nil {
		return nil
	}
	cells := make([]byte, cols*rows*2)
	copy(cells, v.vram[TextWinBase-MemBase:TextWinBase-MemBase+len(cells)])
	return v.surface.UpdateText(cols, rows, cells)
}

// FrameCount returns the number of RefreshFrame calls since reset.
func (v *VGA) FrameCount() uint64 {
	return v.frameCount
}
