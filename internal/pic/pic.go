// Package pic implements a single 8259-style programmable interrupt
// controller: eight IRQ lines, priority-by-bit-index resolution, and the
// ICW/OCW initialization protocol.
package pic

import (
	"math/bits"

	"pcxt/internal/logx"
)

var log = logx.For("pic")

// Port offsets relative to the controller's base (0x20 on the PC platform).
const (
	PortCommand = 0 // write: ICW1/OCW2/OCW3; read: IRR or ISR per OCW3
	PortData    = 1 // write: ICW2/ICW3/ICW4/IMR; read: IMR
)

// Named IRQ lines in priority order, highest first.
const (
	IRQTimer = iota
	IRQKeyboard
	IRQCascade
	IRQCOM2
	IRQCOM1
	IRQLPT2
	IRQFDC
	IRQLPT1
)

type initStage int

const (
	stageNone initStage = iota
	stageICW2
	stageICW3
	stageICW4
)

// PIC is one 8259-style controller.
type PIC struct {
	irr, isr, imr uint8
	irqBase       uint8

	stage      initStage
	expectICW3 bool
	expectICW4 bool

	ocw3ReadISR bool // OCW3 read-select: false=IRR, true=ISR
}

// New returns a controller with IMR = 0xFF, matching reset state.
func New() *PIC {
	p := &PIC{}
	p.Reset()
	return p
}

// Reset restores power-on state: IMR all set, IRR/ISR clear, no
// initialization in progress.
func (p *PIC) Reset() {
	p.irr = 0
	p.isr = 0
	p.imr = 0xFF
	p.irqBase = 0
	p.stage = stageNone
	p.expectICW3 = false
	p.expectICW4 = false
	p.ocw3ReadISR = false
}

// AssertIRQ sets IRR bit n (0..7).
func (p *PIC) AssertIRQ(n int) {
	p.irr |= 1 << uint(n)
}

// DequeuePendingIRQ computes (IRR & ~ISR) & ~IMR; if nonzero it clears the
// lowest-set IRR bit, sets the corresponding ISR bit, and returns
// irq_base+k. Returns (0, false) if nothing is eligible.
func (p *PIC) DequeuePendingIRQ() (vector uint8, ok bool) {
	pending := p.irr &^ p.isr &^ p.imr
	if pending == 0 {
		return 0, false
	}
	k := bits.TrailingZeros8(pending)
	p.irr &^= 1 << uint(k)
	p.isr |= 1 << uint(k)
	return p.irqBase + uint8(k), true
}

// In8 reads the command or data port.
func (p *PIC) In8(port uint16) uint8 {
	switch port & 1 {
	case PortCommand:
		if p.ocw3ReadISR {
			return p.isr
		}
		return p.irr
	default:
		return p.imr
	}
}

// Out8 writes the command or data port, advancing the ICW state machine.
func (p *PIC) Out8(port uint16, v uint8) {
	switch port & 1 {
	case PortCommand:
		p.writeCommand(v)
	default:
		p.writeData(v)
	}
}

func (p *PIC) writeCommand(v uint8) {
	if v&0x10 != 0 {
		// ICW1: begin initialization.
		p.irr = 0
		p.isr = 0
		p.stage = stageICW2
		p.expectICW3 = v&0x02 == 0 // bit1=0 means cascade mode, ICW3 expected
		p.expectICW4 = v&0x01 != 0
		return
	}
	if v&0x08 != 0 {
		// OCW3.
		if v&0x02 != 0 {
			p.ocw3ReadISR = v&0x01 != 0
		}
		return
	}
	// OCW2.
	if v&0x20 != 0 {
		p.eoi(v)
	}
}

func (p *PIC) eoi(v uint8) {
	if v&0x40 != 0 {
		// Specific EOI: level encoded in bits 2:0.
		level := v & 0x07
		p.isr &^= 1 << level
		return
	}
	// Non-specific EOI: clear the lowest-set ISR bit.
	if p.isr == 0 {
		return
	}
	k := bits.TrailingZeros8(p.isr)
	p.isr &^= 1 << uint(k)
}

func (p *PIC) writeData(v uint8) {
	switch p.stage {
	case stageICW2:
		p.irqBase = v &^ 0x07
		if p.expectICW3 {
			p.stage = stageICW3
			return
		}
		if p.expectICW4 {
			p.stage = stageICW4
			return
		}
		p.stage = stageNone
	case stageICW3:
		// Cascade wiring byte: accepted, not modeled.
		if p.expectICW4 {
			p.stage = stageICW4
			return
		}
		p.stage = stageNone
	case stageICW4:
		if v&0x02 != 0 {
			log.Error("PIC auto-EOI requested but not implemented: fatal abort")
			panic("pic: auto-EOI unimplemented")
		}
		p.stage = stageNone
	default:
		p.imr = v
	}
}
