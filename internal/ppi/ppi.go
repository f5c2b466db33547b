// Package ppi implements the 8255-style peripheral interface reduced to the
// subset the IBM PC platform wires up: port A (keyboard scancode latch),
// port B (speaker/timer gate control plus status readback), port C (DIP
// switch readback), and a small keyboard controller sharing port A. The
// keyboard controller lives here rather than in its own package because
// both functions share one chip on the original board.
package ppi

import "pcxt/internal/logx"

var log = logx.For("ppi")

// Absolute port numbers for the keyboard controller and for the PPI
// proper; both In8 handlers switch on the full port number.
const (
	PortKeyboardData   = 0x60
	PortKeyboardStatus = 0x64
	PortB              = 0x61
	PortC              = 0x62
	PortNMIMask        = 0xA0
)

// PIT2Output is the minimal capability PPI needs from internal/pit to
// reflect channel 2's output in port B bit 6.
type PIT2Output interface {
	Channel2Output() bool
}

// PPI is the reduced 8255-style interface chip.
type PPI struct {
	portA     uint8
	portB     uint8
	dipSwitch uint8
	nmiMask   uint8
	refresh   bool
	pit       PIT2Output
}

// New returns a PPI with the given DIP-switch byte (machine configuration,
// low nibble of port C) fixed at construction.
func New(pit PIT2Output, dipSwitch uint8) *PPI {
	return &PPI{pit: pit, dipSwitch: dipSwitch & 0x0F}
}

// Reset restores port B to its power-on state (all control bits clear).
func (p *PPI) Reset() {
	p.portB = 0
	p.refresh = false
}

// SetPortA is called by the keyboard controller to latch a new scancode
// byte into port A, the handoff point between the keyboard and the PPI.
func (p *PPI) SetPortA(v uint8) {
	p.portA = v
}

// In8 reads port B or port C (port A and the keyboard ports are owned by
// Keyboard).
func (p *PPI) In8(port uint16) uint8 {
	switch port {
	case PortB:
		p.refresh = !p.refresh
		v := p.portB & 0x0F
		if p.pit.Channel2Output() {
			v |= 1 << 6
		}
		if p.refresh {
			v |= 1 << 4
		}
		return v
	case PortC:
		// Low nibble: DIP switches. Bit 3: dual-monitor "color active" bit,
		// derived from the same DIP byte.
		v := p.dipSwitch & 0x07
		if p.dipSwitch&0x08 != 0 {
			v |= 1 << 3
		}
		return v
	case PortNMIMask:
		return p.nmiMask
	}
	log.Warn("read from unmapped ppi port", "port", port)
	return 0
}

// Out8 writes port B, port C (ignored, read-only in this model), or the
// NMI-mask port.
func (p *PPI) Out8(port uint16, v uint8) {
	switch port {
	case PortB:
		p.portB = v
	case PortNMIMask:
		p.nmiMask = v
	default:
		log.Warn("write to unmapped ppi port", "port", port, "value", v)
	}
}

// PICIRQ1 is the minimal capability Keyboard needs from internal/pic.
type PICIRQ1 interface {
	AssertIRQ(n int)
}

// Keyboard is the small 8042-style controller feeding scancodes into port A
// and IRQ1.
type Keyboard struct {
	ppi    *PPI
	pic    PICIRQ1
	source ScancodeSource
}

// ScancodeSource is the host-facing capability Keyboard polls for new
// bytes; internal/hostio.KeyboardSource satisfies this shape directly.
type ScancodeSource interface {
	ReadScancode() (code byte, ok bool)
}

// NewKeyboard returns a controller wired to the given PPI (for the port-A
// handoff), PIC (for IRQ1), and scancode source.
func NewKeyboard(ppi *PPI, pic PICIRQ1, source ScancodeSource) *Keyboard {
	return &Keyboard{ppi: ppi, pic: pic, source: source}
}

// Poll checks the scancode source for a pending byte and, if one is ready,
// latches it into the PPI's port A and raises IRQ1. Called once per outer
// loop iteration by internal/machine.
func (k *Keyboard) Poll() {
	code, ok := k.source.ReadScancode()
	if !ok {
		return
	}
	k.ppi.SetPortA(code)
	k.pic.AssertIRQ(1)
}

// In8 reads the keyboard data port (the last latched scancode) or status
// port. The status port always reports output-buffer-full: scancodes are
// delivered synchronously, so the buffer can never be observed empty
// between the IRQ and the read.
func (k *Keyboard) In8(port uint16) uint8 {
	switch port {
	case PortKeyboardData:
		return k.ppi.portA
	case PortKeyboardStatus:
		return 0x01 // output buffer full
	}
	return 0
}

// Out8 accepts keyboard-controller command bytes; none are modeled beyond
// acceptance (no A20/reset lines wired in this emulator).
func (k *Keyboard) Out8(port uint16, v uint8) {}
