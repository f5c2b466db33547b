// Package cpu implements the 8086/80186 fetch/decode/execute loop: register
// file, ModR/M effective-address resolution, segment-override and REP
// prefix handling, real-mode interrupt dispatch, and the private
// vector-invocation escape opcode. The register file is an array of eight
// 16-bit cells with explicit shift/mask for byte-half access, so the same
// 3-bit index serves both the 16-bit and 8-bit encodings.
package cpu

import (
	"pcxt/internal/alu"
	"pcxt/internal/logx"
)

var log = logx.For("cpu")

// General register indices, in ModR/M encoding order.
const (
	RegAX = iota
	RegCX
	RegDX
	RegBX
	RegSP
	RegBP
	RegSI
	RegDI
)

// Segment register indices.
const (
	SegES = iota
	SegCS
	SegSS
	SegDS
)

// MemoryBus is the capability the CPU needs from internal/membus.
type MemoryBus interface {
	ReadByte(addr uint32) uint8
	WriteByte(addr uint32, v uint8)
	ReadWord(addr uint32) uint16
	WriteWord(addr uint32, v uint16)
}

// IOBus is the capability the CPU needs from internal/iobus.
type IOBus interface {
	In8(port uint16) uint8
	Out8(port uint16, v uint8)
	In16(port uint16) uint16
	Out16(port uint16, v uint16)
}

// PIC is the capability the CPU needs for polled interrupt dispatch.
type PIC interface {
	DequeuePendingIRQ() (vector uint8, ok bool)
}

// VectorHandler is a host callback registered against an interrupt vector
// number for the 0F 34 escape opcode.
type VectorHandler func(c *CPU)

// CPU is the 8086/80186 interpreter state.
type CPU struct {
	regs  [8]uint16
	segs  [4]uint16
	ip    uint16
	flags uint16

	Mem MemoryBus
	IO  IOBus
	PIC PIC

	vectorHandlers map[uint8]VectorHandler

	// Per-instruction prefix latch, cleared at the start of each Step.
	segOverride int  // -1 = none, else one of SegES..SegDS
	repPrefix   byte // 0 = none, 0xF2 = REPNE, 0xF3 = REPE
}

const noSegOverride = -1

// New returns a CPU wired to the given buses and PIC, at reset state.
func New(mem MemoryBus, io IOBus, pic PIC) *CPU {
	c := &CPU{Mem: mem, IO: io, PIC: pic, vectorHandlers: make(map[uint8]VectorHandler)}
	c.Reset()
	return c
}

// Reset restores power-on register state: CS=FFFF, IP=0, everything else
// cleared except the always-set flags bit.
func (c *CPU) Reset() {
	for i := range c.regs {
		c.regs[i] = 0
	}
	for i := range c.segs {
		c.segs[i] = 0
	}
	c.segs[SegCS] = 0xFFFF
	c.ip = 0x0000
	c.flags = alu.ResetFlags
	c.segOverride = noSegOverride
	c.repPrefix = 0
}

// RegisterVectorHandler installs a host callback for interrupt vector n,
// invoked by the 0F 34 n escape opcode.
func (c *CPU) RegisterVectorHandler(n uint8, h VectorHandler) {
	c.vectorHandlers[n] = h
}

// GetReg16 returns a general register's 16-bit value.
func (c *CPU) GetReg16(idx int) uint16 { return c.regs[idx] }

// SetReg16 sets a general register's 16-bit value.
func (c *CPU) SetReg16(idx int, v uint16) { c.regs[idx] = v }

// GetReg8 returns an 8-bit half-register: idx 0-3 are AL/CL/DL/BL (low
// bytes of AX/CX/DX/BX), idx 4-7 are AH/CH/DH/BH (high bytes).
func (c *CPU) GetReg8(idx int) uint8 {
	base := idx & 3
	if idx&4 != 0 {
		return uint8(c.regs[base] >> 8)
	}
	return uint8(c.regs[base])
}

// SetReg8 sets an 8-bit half-register, per the same encoding as GetReg8.
func (c *CPU) SetReg8(idx int, v uint8) {
	base := idx & 3
	if idx&4 != 0 {
		c.regs[base] = (c.regs[base] &^ 0xFF00) | uint16(v)<<8
	} else {
		c.regs[base] = (c.regs[base] &^ 0x00FF) | uint16(v)
	}
}

// GetSeg returns a segment register's value.
func (c *CPU) GetSeg(idx int) uint16 { return c.segs[idx] }

// SetSeg sets a segment register's value.
func (c *CPU) SetSeg(idx int, v uint16) { c.segs[idx] = v }

// Flags returns the current flags word.
func (c *CPU) Flags() uint16 { return c.flags }

// SetFlags sets the flags word, normalizing the fixed bits.
func (c *CPU) SetFlags(f uint16) { c.flags = alu.Normalize(f) }

// IP returns the instruction pointer.
func (c *CPU) IP() uint16 { return c.ip }

// SetIP sets the instruction pointer.
func (c *CPU) SetIP(v uint16) { c.ip = v }

// Linear computes (segment<<4 + offset), wrapping at 20 bits.
func Linear(segment, offset uint16) uint32 {
	return (uint32(segment)<<4 + uint32(offset)) & 0xFFFFF
}

func (c *CPU) fetch8() uint8 {
	addr := Linear(c.segs[SegCS], c.ip)
	v := c.Mem.ReadByte(addr)
	c.ip++
	return v
}

func (c *CPU) fetch16() uint16 {
	lo := c.fetch8()
	hi := c.fetch8()
	return uint16(lo) | uint16(hi)<<8
}

func signExtend8(v uint8) uint16 {
	return uint16(int16(int8(v)))
}

// push decrements SP by 2 then writes v at SS:SP.
func (c *CPU) push(v uint16) {
	sp := c.regs[RegSP] - 2
	c.regs[RegSP] = sp
	c.Mem.WriteWord(Linear(c.segs[SegSS], sp), v)
}

// pop reads SS:SP then increments SP by 2.
func (c *CPU) pop() uint16 {
	sp := c.regs[RegSP]
	v := c.Mem.ReadWord(Linear(c.segs[SegSS], sp))
	c.regs[RegSP] = sp + 2
	return v
}

// Step executes exactly one instruction (including any consumed prefix
// bytes), then polls the PIC for a pending IRQ if interrupts are enabled.
func (c *CPU) Step() {
	c.segOverride = noSegOverride
	c.repPrefix = 0

	for {
		opcode := c.fetch8()
		if handled := c.consumePrefix(opcode); handled {
			continue
		}
		c.dispatch(opcode)
		break
	}

	if c.flags&alu.IF != 0 && c.PIC != nil {
		if vector, ok := c.PIC.DequeuePendingIRQ(); ok {
			c.HandleInterrupt(vector)
		}
	}
}

func (c *CPU) consumePrefix(opcode uint8) bool {
	switch opcode {
	case 0xF0: // LOCK
		return true
	case 0xF2, 0xF3: // REPNE, REPE
		c.repPrefix = opcode
		return true
	case 0x26:
		c.segOverride = SegES
		return true
	case 0x2E:
		c.segOverride = SegCS
		return true
	case 0x36:
		c.segOverride = SegSS
		return true
	case 0x3E:
		c.segOverride = SegDS
		return true
	}
	return false
}

// HandleInterrupt performs the standard real-mode interrupt dispatch:
// push flags/CS/IP, clear IF/TF, load CS:IP from the vector table entry
// at physical address n*4.
func (c *CPU) HandleInterrupt(n uint8) {
	vecAddr := uint32(n) * 4
	newIP := c.Mem.ReadWord(vecAddr)
	newCS := c.Mem.ReadWord(vecAddr + 2)

	c.push(alu.Normalize(c.flags))
	c.push(c.segs[SegCS])
	c.push(c.ip)

	c.flags &^= alu.IF | alu.TF
	c.segs[SegCS] = newCS
	c.ip = newIP
}

// IRET pops IP, CS, then flags, in that order.
func (c *CPU) IRET() {
	c.ip = c.pop()
	c.segs[SegCS] = c.pop()
	c.flags = alu.Normalize(c.pop())
}

// defaultSegForEA returns DS, unless the base expression involves BP, in
// which case SS is the default.
func defaultSegForEA(usesBP bool) int {
	if usesBP {
		return SegSS
	}
	return SegDS
}

// effAddr is the tagged ModR/M decode result: either a register index or a
// (segment, offset) pair. The two cases stay distinct so downstream
// read/write paths can branch on the tag.
type effAddr struct {
	isReg  bool
	reg    int
	seg    int
	offset uint16
}

func (c *CPU) segFor(defaultSeg int) int {
	if c.segOverride != noSegOverride {
		return c.segOverride
	}
	return defaultSeg
}

// decodeModRM reads the ModR/M byte (and any displacement) and returns the
// "reg" field index plus the decoded r/m operand.
func (c *CPU) decodeModRM() (regField int, rm effAddr) {
	b := c.fetch8()
	mod := b >> 6
	regField = int((b >> 3) & 0x7)
	rmField := int(b & 0x7)

	if mod == 3 {
		return regField, effAddr{isReg: true, reg: rmField}
	}

	var base uint16
	usesBP := false
	switch rmField {
	case 0:
		base = c.regs[RegBX] + c.regs[RegSI]
	case 1:
		base = c.regs[RegBX] + c.regs[RegDI]
	case 2:
		base = c.regs[RegBP] + c.regs[RegSI]
		usesBP = true
	case 3:
		base = c.regs[RegBP] + c.regs[RegDI]
		usesBP = true
	case 4:
		base = c.regs[RegSI]
	case 5:
		base = c.regs[RegDI]
	case 6:
		if mod == 0 {
			base = c.fetch16() // direct address, no BP, default segment DS
			usesBP = false
		} else {
			base = c.regs[RegBP]
			usesBP = true
		}
	case 7:
		base = c.regs[RegBX]
	}

	switch mod {
	case 1:
		disp := signExtend8(c.fetch8())
		base += disp
	case 2:
		disp := c.fetch16()
		base += disp
	}

	seg := c.segFor(defaultSegForEA(usesBP))
	return regField, effAddr{isReg: false, seg: seg, offset: base}
}

func (c *CPU) readEA8(ea effAddr) uint8 {
	if ea.isReg {
		return c.GetReg8(ea.reg)
	}
	return c.Mem.ReadByte(Linear(c.segs[ea.seg], ea.offset))
}

func (c *CPU) writeEA8(ea effAddr, v uint8) {
	if ea.isReg {
		c.SetReg8(ea.reg, v)
		return
	}
	c.Mem.WriteByte(Linear(c.segs[ea.seg], ea.offset), v)
}

func (c *CPU) readEA16(ea effAddr) uint16 {
	if ea.isReg {
		return c.GetReg16(ea.reg)
	}
	return c.Mem.ReadWord(Linear(c.segs[ea.seg], ea.offset))
}

func (c *CPU) writeEA16(ea effAddr, v uint16) {
	if ea.isReg {
		c.SetReg16(ea.reg, v)
		return
	}
	c.Mem.WriteWord(Linear(c.segs[ea.seg], ea.offset), v)
}

func (c *CPU) eaAddr(ea effAddr) uint32 {
	return Linear(c.segs[ea.seg], ea.offset)
}
