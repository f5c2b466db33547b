package cpu

import "pcxt/internal/alu"

// stringOp dispatches MOVSB/MOVSW, CMPSB/CMPSW, STOSB/STOSW, LODSB/LODSW,
// SCASB/SCASW, applying the REP/REPE/REPNE prefix loop. The source operand
// (DS:SI) honors a segment-override prefix; the destination (ES:DI) always
// uses ES.
func (c *CPU) stringOp(opcode uint8) {
	isWord := opcode&1 != 0
	step := int16(1)
	if isWord {
		step = 2
	}
	if c.flags&alu.DF != 0 {
		step = -step
	}

	srcSeg := c.segFor(SegDS)

	switch opcode {
	case 0xA4, 0xA5: // MOVSB/MOVSW
		c.repLoop(false, func() bool {
			src := Linear(c.segs[srcSeg], c.regs[RegSI])
			dst := Linear(c.segs[SegES], c.regs[RegDI])
			if isWord {
				c.Mem.WriteWord(dst, c.Mem.ReadWord(src))
			} else {
				c.Mem.WriteByte(dst, c.Mem.ReadByte(src))
			}
			c.regs[RegSI] = uint16(int16(c.regs[RegSI]) + step)
			c.regs[RegDI] = uint16(int16(c.regs[RegDI]) + step)
			return true
		})
	case 0xA6, 0xA7: // CMPSB/CMPSW
		c.repLoop(true, func() bool {
			src := Linear(c.segs[srcSeg], c.regs[RegSI])
			dst := Linear(c.segs[SegES], c.regs[RegDI])
			if isWord {
				alu.Sub(&c.flags, 16, uint32(c.Mem.ReadWord(src)), uint32(c.Mem.ReadWord(dst)))
			} else {
				alu.Sub(&c.flags, 8, uint32(c.Mem.ReadByte(src)), uint32(c.Mem.ReadByte(dst)))
			}
			c.regs[RegSI] = uint16(int16(c.regs[RegSI]) + step)
			c.regs[RegDI] = uint16(int16(c.regs[RegDI]) + step)
			return true
		})
	case 0xAA, 0xAB: // STOSB/STOSW
		c.repLoop(false, func() bool {
			dst := Linear(c.segs[SegES], c.regs[RegDI])
			if isWord {
				c.Mem.WriteWord(dst, c.GetReg16(RegAX))
			} else {
				c.Mem.WriteByte(dst, c.GetReg8(RegAX))
			}
			c.regs[RegDI] = uint16(int16(c.regs[RegDI]) + step)
			return true
		})
	case 0xAC, 0xAD: // LODSB/LODSW
		c.repLoop(false, func() bool {
			src := Linear(c.segs[srcSeg], c.regs[RegSI])
			if isWord {
				c.SetReg16(RegAX, c.Mem.ReadWord(src))
			} else {
				c.SetReg8(RegAX, c.Mem.ReadByte(src))
			}
			c.regs[RegSI] = uint16(int16(c.regs[RegSI]) + step)
			return true
		})
	case 0xAE, 0xAF: // SCASB/SCASW
		c.repLoop(true, func() bool {
			dst := Linear(c.segs[SegES], c.regs[RegDI])
			if isWord {
				alu.Sub(&c.flags, 16, uint32(c.GetReg16(RegAX)), uint32(c.Mem.ReadWord(dst)))
			} else {
				alu.Sub(&c.flags, 8, uint32(c.GetReg8(RegAX)), uint32(c.Mem.ReadByte(dst)))
			}
			c.regs[RegDI] = uint16(int16(c.regs[RegDI]) + step)
			return true
		})
	}
}

// insOp implements the 80186 INSB/INSW: read a byte/word from port DX into
// ES:DI, advancing DI, under the same REP discipline as the other string
// opcodes (no ZF check).
func (c *CPU) insOp(opcode uint8) {
	isWord := opcode == 0x6D
	step := int16(1)
	if isWord {
		step = 2
	}
	if c.flags&alu.DF != 0 {
		step = -step
	}
	c.repLoop(false, func() bool {
		dst := Linear(c.segs[SegES], c.regs[RegDI])
		port := c.GetReg16(RegDX)
		if isWord {
			c.Mem.WriteWord(dst, c.IO.In16(port))
		} else {
			c.Mem.WriteByte(dst, c.IO.In8(port))
		}
		c.regs[RegDI] = uint16(int16(c.regs[RegDI]) + step)
		return true
	})
}

// outsOp implements the 80186 OUTSB/OUTSW: write a byte/word from DS:SI
// (honoring a segment-override prefix) to port DX, advancing SI.
func (c *CPU) outsOp(opcode uint8) {
	isWord := opcode == 0x6F
	step := int16(1)
	if isWord {
		step = 2
	}
	if c.flags&alu.DF != 0 {
		step = -step
	}
	srcSeg := c.segFor(SegDS)
	c.repLoop(false, func() bool {
		src := Linear(c.segs[srcSeg], c.regs[RegSI])
		port := c.GetReg16(RegDX)
		if isWord {
			c.IO.Out16(port, c.Mem.ReadWord(src))
		} else {
			c.IO.Out8(port, c.Mem.ReadByte(src))
		}
		c.regs[RegSI] = uint16(int16(c.regs[RegSI]) + step)
		return true
	})
}

// repLoop runs body once per element under no prefix, or repeatedly under
// REPE/REPNE while CX != 0 (and, for checksZF string ops CMPS/SCAS only,
// while ZF matches the prefix's termination condition). MOVS/STOS/LODS
// under F2/F3 loop on CX alone without inspecting ZF.
func (c *CPU) repLoop(checksZF bool, body func() bool) {
	if c.repPrefix == 0 {
		body()
		return
	}
	wantZF := c.repPrefix == 0xF3 // REPE/REP
	for c.GetReg16(RegCX) != 0 {
		c.SetReg16(RegCX, c.GetReg16(RegCX)-1)
		if !body() {
			break
		}
		if checksZF {
			zf := c.flags&alu.ZF != 0
			if zf != wantZF {
				break
			}
		}
	}
}
