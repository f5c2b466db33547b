// Package pit implements three 8253/8254-style counter channels sharing a
// Mode/Command port, with square-wave output synthesized from a host
// monotonic clock rather than cycle-stepped: a channel's output level is a
// pure function of the time elapsed since its reload was programmed.
package pit

import (
	"pcxt/internal/hostio"
	"pcxt/internal/logx"
)

var log = logx.For("pit")

// PITFrequency is the PIT's fixed input clock, in Hz.
const PITFrequency = 1193182

// Port offsets relative to base 0x40.
const (
	PortData0   = 0
	PortData1   = 1
	PortData2   = 2
	PortCommand = 3
)

type accessMode int

const (
	accessLatch accessMode = iota
	accessLo
	accessHi
	accessLoHi
)

type loHiState int

const (
	stateLoByte loHiState = iota
	stateHiByte
	stateLoAndHi1
	stateLoAndHi2
)

type channel struct {
	reload        uint32 // a programmed 0 is stored as 0x10000; 0 only before programming
	access        accessMode
	operatingMode uint8
	bcd           bool

	state loHiState

	latch       uint16
	latched     bool
	writeLo     uint8 // staged low byte for LoAndHi
	active      bool
	countTimeNS int64
	prevOutput  bool
}

// PIT is the three-channel programmable interval timer.
type PIT struct {
	ch    [3]channel
	clock hostio.Clock
}

// New returns a PIT driven by the given clock.
func New(clock hostio.Clock) *PIT {
	p := &PIT{clock: clock}
	p.Reset()
	return p
}

// Reset clears all channel state.
func (p *PIT) Reset() {
	for i := range p.ch {
		p.ch[i] = channel{}
	}
}

func (p *PIT) nowNS() int64 {
	return p.clock.Now().UnixNano()
}

// In8 reads a data port (counter latch/current value) or is ignored for
// the write-only command port.
func (p *PIT) In8(port uint16) uint8 {
	idx := int(port & 3)
	if idx == PortCommand {
		return 0xFF
	}
	c := &p.ch[idx]
	if c.latched {
		switch c.state {
		case stateLoAndHi1:
			c.state = stateLoAndHi2
			return uint8(c.latch)
		default:
			c.latched = false
			return uint8(c.latch >> 8)
		}
	}
	val := p.currentCount(idx)
	switch c.access {
	case accessLo:
		return uint8(val)
	case accessHi:
		return uint8(val >> 8)
	default:
		return uint8(val)
	}
}

// Out8 writes a data port (reload programming) or the command port.
func (p *PIT) Out8(port uint16, v uint8) {
	idx := int(port & 3)
	if idx == PortCommand {
		p.writeCommand(v)
		return
	}
	p.writeData(idx, v)
}

func (p *PIT) writeCommand(v uint8) {
	sel := int(v >> 6)
	if sel == 3 {
		// Read-back command: not modeled; the byte is ignored and no
		// counter is latched.
		return
	}
	c := &p.ch[sel]
	mode := accessMode((v >> 4) & 0x3)
	if mode == accessLatch {
		c.latch = uint16(p.currentCount(sel))
		c.latched = true
		c.state = stateLoAndHi1
		return
	}
	c.access = mode
	c.operatingMode = (v >> 1) & 0x7
	c.bcd = v&1 != 0
	switch mode {
	case accessLo:
		c.state = stateLoByte
	case accessHi:
		c.state = stateHiByte
	case accessLoHi:
		c.state = stateLoAndHi1
	}
}

func (p *PIT) writeData(idx int, v uint8) {
	c := &p.ch[idx]
	switch c.access {
	case accessLo:
		p.commitReload(c, uint16(v))
	case accessHi:
		p.commitReload(c, uint16(v)<<8)
	case accessLoHi:
		switch c.state {
		case stateLoAndHi1:
			c.writeLo = v
			c.state = stateLoAndHi2
		default:
			reload := uint16(c.writeLo) | uint16(v)<<8
			p.commitReload(c, reload)
			c.state = stateLoAndHi1
		}
	}
}

func (p *PIT) commitReload(c *channel, reload uint16) {
	r := uint32(reload)
	if r == 0 {
		r = 0x10000
	}
	c.reload = r
	c.active = true
	c.countTimeNS = p.nowNS()
}

func (p *PIT) currentCount(idx int) uint32 {
	c := &p.ch[idx]
	if !c.active {
		return c.reload
	}
	elapsed := p.elapsedCounts(c)
	remaining := int64(c.reload) - int64(elapsed%uint64(c.reload))
	return uint32(remaining)
}

func (p *PIT) elapsedCounts(c *channel) uint64 {
	deltaNS := p.nowNS() - c.countTimeNS
	if deltaNS < 0 {
		deltaNS = 0
	}
	return uint64(deltaNS) * PITFrequency / 1_000_000_000
}

// output computes a channel's current output level: in square-wave mode
// the output is high for the first (reload+1)/2 counts of each period.
func (p *PIT) output(idx int) bool {
	c := &p.ch[idx]
	if !c.active {
		return false
	}
	switch c.operatingMode {
	case 3, 7:
		elapsed := p.elapsedCounts(c) % uint64(c.reload)
		half := (uint64(c.reload) + 1) / 2
		return elapsed < half
	default:
		log.Warn("unimplemented PIT operating mode", "mode", c.operatingMode, "channel", idx)
		return false
	}
}

// Tick evaluates channel 0's output and returns true exactly on its
// low-to-high edge, the IRQ0 trigger condition.
func (p *PIT) Tick() bool {
	out := p.output(0)
	edge := !p.ch[0].prevOutput && out
	p.ch[0].prevOutput = out
	return edge
}

// Channel2Output reports PIT channel 2's current output level, consumed by
// internal/ppi's port-B readback (bit 6, speaker/timer gate feedback).
func (p *PIT) Channel2Output() bool {
	return p.output(2)
}
