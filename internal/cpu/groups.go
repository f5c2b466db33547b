package cpu

import "pcxt/internal/alu"

// group1 handles opcodes 80/81/82/83: immediate arithmetic dispatched by
// the ModR/M reg field (8 sub-opcodes: ADD, OR, ADC, SBB, AND, SUB, XOR,
// CMP).
func (c *CPU) group1(opcode uint8) {
	reg, rm := c.decodeModRM()
	op := arithOps[reg]
	isCmp := reg == 7
	switch opcode {
	case 0x80: // Eb, ib
		a := uint32(c.readEA8(rm))
		b := uint32(c.fetch8())
		res := op(&c.flags, 8, a, b)
		if !isCmp {
			c.writeEA8(rm, uint8(res))
		}
	case 0x81: // Ev, iv
		a := uint32(c.readEA16(rm))
		b := uint32(c.fetch16())
		res := op(&c.flags, 16, a, b)
		if !isCmp {
			c.writeEA16(rm, uint16(res))
		}
	case 0x82: // Eb, ib (alias of 80)
		a := uint32(c.readEA8(rm))
		b := uint32(c.fetch8())
		res := op(&c.flags, 8, a, b)
		if !isCmp {
			c.writeEA8(rm, uint8(res))
		}
	case 0x83: // Ev, ib (sign-extended)
		a := uint32(c.readEA16(rm))
		b := uint32(signExtend8(c.fetch8()))
		res := op(&c.flags, 16, a, b)
		if !isCmp {
			c.writeEA16(rm, uint16(res))
		}
	}
}

// group2 handles opcodes D0-D3: shifts/rotates by 1 or by CL, dispatched by
// the ModR/M reg field.
func (c *CPU) group2(opcode uint8) {
	reg, rm := c.decodeModRM()
	var count uint8 = 1
	if opcode == 0xD2 || opcode == 0xD3 {
		count = c.GetReg8(RegCX)
	}
	is16 := opcode == 0xD1 || opcode == 0xD3
	shiftFn := func(f *uint16, bits int, v uint32, cnt uint8) uint32 {
		switch reg {
		case 0:
			return alu.Rol(f, bits, v, cnt)
		case 1:
			return alu.Ror(f, bits, v, cnt)
		case 2:
			return alu.Rcl(f, bits, v, cnt)
		case 3:
			return alu.Rcr(f, bits, v, cnt)
		case 4, 6:
			return alu.Shl(f, bits, v, cnt)
		case 5:
			return alu.Shr(f, bits, v, cnt)
		case 7:
			return alu.Sar(f, bits, v, cnt)
		}
		return v
	}
	if is16 {
		v := uint32(c.readEA16(rm))
		res := shiftFn(&c.flags, 16, v, count)
		c.writeEA16(rm, uint16(res))
	} else {
		v := uint32(c.readEA8(rm))
		res := shiftFn(&c.flags, 8, v, count)
		c.writeEA8(rm, uint8(res))
	}
}

// group3 handles opcodes F6/F7: TEST/NOT/NEG/MUL/IMUL/DIV/IDIV, dispatched
// by the ModR/M reg field. A divisor of zero or a quotient that doesn't
// fit the destination dispatches INT 0 and leaves the registers alone.
func (c *CPU) group3(opcode uint8) {
	reg, rm := c.decodeModRM()
	is16 := opcode == 0xF7
	switch reg {
	case 0, 1: // TEST
		if is16 {
			imm := c.fetch16()
			alu.Test(&c.flags, 16, uint32(c.readEA16(rm)), uint32(imm))
		} else {
			imm := c.fetch8()
			alu.Test(&c.flags, 8, uint32(c.readEA8(rm)), uint32(imm))
		}
	case 2: // NOT
		if is16 {
			c.writeEA16(rm, ^c.readEA16(rm))
		} else {
			c.writeEA8(rm, ^c.readEA8(rm))
		}
	case 3: // NEG
		if is16 {
			c.writeEA16(rm, uint16(alu.Neg(&c.flags, 16, uint32(c.readEA16(rm)))))
		} else {
			c.writeEA8(rm, uint8(alu.Neg(&c.flags, 8, uint32(c.readEA8(rm)))))
		}
	case 4: // MUL
		if is16 {
			ax, dx := alu.Mul16(&c.flags, c.GetReg16(RegAX), c.readEA16(rm))
			c.SetReg16(RegAX, ax)
			c.SetReg16(RegDX, dx)
		} else {
			ax := alu.Mul8(&c.flags, c.GetReg8(RegAX), c.readEA8(rm))
			c.SetReg16(RegAX, ax)
		}
	case 5: // IMUL
		if is16 {
			ax, dx := alu.Imul16(&c.flags, int16(c.GetReg16(RegAX)), int16(c.readEA16(rm)))
			c.SetReg16(RegAX, ax)
			c.SetReg16(RegDX, dx)
		} else {
			ax := alu.Imul8(&c.flags, int8(c.GetReg8(RegAX)), int8(c.readEA8(rm)))
			c.SetReg16(RegAX, ax)
		}
	case 6: // DIV
		if is16 {
			newAX, newDX, trap := alu.Div16(c.GetReg16(RegAX), c.GetReg16(RegDX), c.readEA16(rm))
			if trap {
				c.HandleInterrupt(0)
				return
			}
			c.SetReg16(RegAX, newAX)
			c.SetReg16(RegDX, newDX)
		} else {
			al, ah, trap := alu.Div8(c.GetReg16(RegAX), c.readEA8(rm))
			if trap {
				c.HandleInterrupt(0)
				return
			}
			c.SetReg8(RegAX, al)
			c.SetReg8(4, ah)
		}
	case 7: // IDIV
		if is16 {
			newAX, newDX, trap := alu.Idiv16(c.GetReg16(RegAX), c.GetReg16(RegDX), int16(c.readEA16(rm)))
			if trap {
				c.HandleInterrupt(0)
				return
			}
			c.SetReg16(RegAX, newAX)
			c.SetReg16(RegDX, newDX)
		} else {
			al, ah, trap := alu.Idiv8(c.GetReg16(RegAX), int8(c.readEA8(rm)))
			if trap {
				c.HandleInterrupt(0)
				return
			}
			c.SetReg8(RegAX, al)
			c.SetReg8(4, ah)
		}
	}
}

// group4 handles opcode FE: INC/DEC Eb.
func (c *CPU) group4() {
	reg, rm := c.decodeModRM()
	switch reg {
	case 0:
		c.writeEA8(rm, uint8(alu.Inc(&c.flags, 8, uint32(c.readEA8(rm)))))
	case 1:
		c.writeEA8(rm, uint8(alu.Dec(&c.flags, 8, uint32(c.readEA8(rm)))))
	}
}

// group5 handles opcode FF: INC/DEC/CALL near/CALL far/JMP near/JMP far/
// PUSH, dispatched by the ModR/M reg field.
func (c *CPU) group5() {
	reg, rm := c.decodeModRM()
	switch reg {
	case 0: // INC Ev
		c.writeEA16(rm, uint16(alu.Inc(&c.flags, 16, uint32(c.readEA16(rm)))))
	case 1: // DEC Ev
		c.writeEA16(rm, uint16(alu.Dec(&c.flags, 16, uint32(c.readEA16(rm)))))
	case 2: // CALL near indirect
		target := c.readEA16(rm)
		c.push(c.ip)
		c.ip = target
	case 3: // CALL far indirect (m16:16 in memory)
		addr := c.eaAddr(rm)
		newIP := c.Mem.ReadWord(addr)
		newCS := c.Mem.ReadWord(addr + 2)
		c.push(c.segs[SegCS])
		c.push(c.ip)
		c.ip = newIP
		c.segs[SegCS] = newCS
	case 4: // JMP near indirect
		c.ip = c.readEA16(rm)
	case 5: // JMP far indirect (m16:16 in memory)
		addr := c.eaAddr(rm)
		c.ip = c.Mem.ReadWord(addr)
		c.segs[SegCS] = c.Mem.ReadWord(addr + 2)
	case 6: // PUSH Ev
		c.push(c.readEA16(rm))
	}
}
