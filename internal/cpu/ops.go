package cpu

import "pcxt/internal/alu"

// aluBinFn is the shape shared by alu.Add/Sub/Adc/Sbb/And/Or/Xor.
type aluBinFn func(f *uint16, bits int, a, b uint32) uint32

// arithOps indexes the eight ADD/OR/ADC/SBB/AND/SUB/XOR/CMP operations by
// the "reg" field of Group 1, and by opIndex for the 00-3D base table.
var arithOps = [8]aluBinFn{
	alu.Add, alu.Or, alu.Adc, alu.Sbb, alu.And, alu.Sub, alu.Xor, alu.Sub, // index 7 (CMP) reuses Sub, result discarded
}

func (c *CPU) dispatch(opcode uint8) {
	// 00-3D: arithmetic family, 8 ops x (Eb,Gb / Ev,Gv / Gb,Eb / Gv,Ev / AL,ib / eAX,iv)
	if opcode < 0x40 && opcode&0x07 <= 5 {
		opIndex := int(opcode >> 3)
		variant := opcode & 0x07
		c.arithFamily(opIndex, variant)
		return
	}

	switch {
	case opcode == 0x60: // PUSHA (80186)
		c.pusha()
		return
	case opcode == 0x61: // POPA (80186)
		c.popa()
		return
	case opcode == 0x62: // BOUND Gv,Ma (80186): trap INT 5 if out of range
		reg, rm := c.decodeModRM()
		idx := int16(c.GetReg16(reg))
		lo := int16(c.Mem.ReadWord(c.eaAddr(rm)))
		hi := int16(c.Mem.ReadWord(c.eaAddr(rm) + 2))
		if idx < lo || idx > hi {
			c.HandleInterrupt(5)
		}
		return
	case opcode == 0x68: // PUSH imm16 (80186)
		c.push(c.fetch16())
		return
	case opcode == 0x69: // IMUL Gv,Ev,Iv (80186)
		reg, rm := c.decodeModRM()
		imm := int16(c.fetch16())
		res, _ := alu.Imul16(&c.flags, int16(c.readEA16(rm)), imm)
		c.SetReg16(reg, res)
		return
	case opcode == 0x6A: // PUSH imm8 sign-extended (80186)
		c.push(signExtend8(c.fetch8()))
		return
	case opcode == 0x6B: // IMUL Gv,Ev,Ib (80186)
		reg, rm := c.decodeModRM()
		imm := int16(signExtend8(c.fetch8()))
		res, _ := alu.Imul16(&c.flags, int16(c.readEA16(rm)), imm)
		c.SetReg16(reg, res)
		return
	case opcode == 0x6C || opcode == 0x6D: // INSB/INSW (80186)
		c.insOp(opcode)
		return
	case opcode == 0x6E || opcode == 0x6F: // OUTSB/OUTSW (80186)
		c.outsOp(opcode)
		return
	case opcode == 0xC0 || opcode == 0xC1: // shift/rotate by imm8 (80186)
		c.group2Imm8(opcode)
		return
	case opcode == 0xC8: // ENTER imm16,imm8 (80186)
		c.enter()
		return
	case opcode == 0xC9: // LEAVE (80186)
		c.leave()
		return
	case opcode >= 0x50 && opcode <= 0x57:
		c.push(c.GetReg16(int(opcode - 0x50)))
		return
	case opcode >= 0x58 && opcode <= 0x5F:
		c.SetReg16(int(opcode-0x58), c.pop())
		return
	case opcode >= 0x70 && opcode <= 0x7F:
		c.jcc(opcode)
		return
	case opcode >= 0xB0 && opcode <= 0xB7:
		c.SetReg8(int(opcode-0xB0), c.fetch8())
		return
	case opcode >= 0xB8 && opcode <= 0xBF:
		c.SetReg16(int(opcode-0xB8), c.fetch16())
		return
	case opcode >= 0x91 && opcode <= 0x97:
		idx := int(opcode - 0x90)
		ax := c.GetReg16(RegAX)
		c.SetReg16(RegAX, c.GetReg16(idx))
		c.SetReg16(idx, ax)
		return
	case opcode >= 0x40 && opcode <= 0x47:
		idx := int(opcode - 0x40)
		c.SetReg16(idx, uint16(alu.Inc(&c.flags, 16, uint32(c.GetReg16(idx)))))
		return
	case opcode >= 0x48 && opcode <= 0x4F:
		idx := int(opcode - 0x48)
		c.SetReg16(idx, uint16(alu.Dec(&c.flags, 16, uint32(c.GetReg16(idx)))))
		return
	}

	switch opcode {
	case 0x27: // DAA
		c.SetReg8(RegAX, alu.Daa(&c.flags, c.GetReg8(RegAX)))
	case 0x2F: // DAS
		c.SetReg8(RegAX, alu.Das(&c.flags, c.GetReg8(RegAX)))
	case 0x37: // AAA
		c.SetReg16(RegAX, alu.Aaa(&c.flags, c.GetReg16(RegAX)))
	case 0x3F: // AAS
		c.SetReg16(RegAX, alu.Aas(&c.flags, c.GetReg16(RegAX)))

	case 0x06:
		c.push(c.GetSeg(SegES))
	case 0x07:
		c.SetSeg(SegES, c.pop())
	case 0x0E:
		c.push(c.GetSeg(SegCS))
	case 0x16:
		c.push(c.GetSeg(SegSS))
	case 0x17:
		c.SetSeg(SegSS, c.pop())
	case 0x1E:
		c.push(c.GetSeg(SegDS))
	case 0x1F:
		c.SetSeg(SegDS, c.pop())

	case 0x80, 0x81, 0x82, 0x83:
		c.group1(opcode)

	case 0x84: // TEST Eb,Gb
		reg, rm := c.decodeModRM()
		alu.Test(&c.flags, 8, uint32(c.readEA8(rm)), uint32(c.GetReg8(reg)))
	case 0x85: // TEST Ev,Gv
		reg, rm := c.decodeModRM()
		alu.Test(&c.flags, 16, uint32(c.readEA16(rm)), uint32(c.GetReg16(reg)))
	case 0x86: // XCHG Eb,Gb
		reg, rm := c.decodeModRM()
		rv := c.GetReg8(reg)
		mv := c.readEA8(rm)
		c.SetReg8(reg, mv)
		c.writeEA8(rm, rv)
	case 0x87: // XCHG Ev,Gv
		reg, rm := c.decodeModRM()
		rv := c.GetReg16(reg)
		mv := c.readEA16(rm)
		c.SetReg16(reg, mv)
		c.writeEA16(rm, rv)

	case 0x88: // MOV Eb,Gb
		reg, rm := c.decodeModRM()
		c.writeEA8(rm, c.GetReg8(reg))
	case 0x89: // MOV Ev,Gv
		reg, rm := c.decodeModRM()
		c.writeEA16(rm, c.GetReg16(reg))
	case 0x8A: // MOV Gb,Eb
		reg, rm := c.decodeModRM()
		c.SetReg8(reg, c.readEA8(rm))
	case 0x8B: // MOV Gv,Ev
		reg, rm := c.decodeModRM()
		c.SetReg16(reg, c.readEA16(rm))
	case 0x8C: // MOV Ew,Sw
		reg, rm := c.decodeModRM()
		c.writeEA16(rm, c.GetSeg(reg&0x3))
	case 0x8E: // MOV Sw,Ew
		reg, rm := c.decodeModRM()
		c.SetSeg(reg&0x3, c.readEA16(rm))
	case 0x8D: // LEA Gv,M
		reg, rm := c.decodeModRM()
		c.SetReg16(reg, rm.offset)
	case 0x8F: // POP Ev (Group: only /0 defined)
		_, rm := c.decodeModRM()
		c.writeEA16(rm, c.pop())

	case 0x90: // NOP
	case 0x9B: // WAIT: no FPU to wait on, treated as NOP
	case 0x98: // CBW
		al := int8(c.GetReg8(RegAX))
		c.SetReg16(RegAX, uint16(int16(al)))
	case 0x99: // CWD
		ax := int16(c.GetReg16(RegAX))
		if ax < 0 {
			c.SetReg16(RegDX, 0xFFFF)
		} else {
			c.SetReg16(RegDX, 0x0000)
		}

	case 0x9C: // PUSHF
		c.push(alu.Normalize(c.flags))
	case 0x9D: // POPF
		c.flags = alu.Normalize(c.pop())
	case 0x9E: // SAHF
		ah := c.GetReg8(4) // AH
		c.flags = alu.Normalize((c.flags &^ 0xFF) | uint16(ah))
	case 0x9F: // LAHF
		c.SetReg8(4, uint8(c.flags))

	case 0xA0: // MOV AL, [imm16]
		addr := c.fetch16()
		c.SetReg8(RegAX, c.Mem.ReadByte(Linear(c.segs[c.segFor(SegDS)], addr)))
	case 0xA1: // MOV AX, [imm16]
		addr := c.fetch16()
		c.SetReg16(RegAX, c.Mem.ReadWord(Linear(c.segs[c.segFor(SegDS)], addr)))
	case 0xA2:
		addr := c.fetch16()
		c.Mem.WriteByte(Linear(c.segs[c.segFor(SegDS)], addr), c.GetReg8(RegAX))
	case 0xA3:
		addr := c.fetch16()
		c.Mem.WriteWord(Linear(c.segs[c.segFor(SegDS)], addr), c.GetReg16(RegAX))

	case 0xA4, 0xA5, 0xA6, 0xA7, 0xAA, 0xAB, 0xAC, 0xAD, 0xAE, 0xAF:
		c.stringOp(opcode)

	case 0xA8: // TEST AL, ib
		alu.Test(&c.flags, 8, uint32(c.GetReg8(RegAX)), uint32(c.fetch8()))
	case 0xA9: // TEST AX, iv
		alu.Test(&c.flags, 16, uint32(c.GetReg16(RegAX)), uint32(c.fetch16()))

	case 0xC4: // LES Gv, Mp
		reg, rm := c.decodeModRM()
		addr := c.eaAddr(rm)
		c.SetReg16(reg, c.Mem.ReadWord(addr))
		c.SetSeg(SegES, c.Mem.ReadWord(addr+2))
	case 0xC5: // LDS Gv, Mp
		reg, rm := c.decodeModRM()
		addr := c.eaAddr(rm)
		c.SetReg16(reg, c.Mem.ReadWord(addr))
		c.SetSeg(SegDS, c.Mem.ReadWord(addr+2))

	case 0xC2: // RET imm16
		n := c.fetch16()
		c.ip = c.pop()
		c.SetReg16(RegSP, c.GetReg16(RegSP)+n)
	case 0xC3: // RET
		c.ip = c.pop()
	case 0xC6: // MOV Eb, ib
		_, rm := c.decodeModRM()
		c.writeEA8(rm, c.fetch8())
	case 0xC7: // MOV Ev, iv
		_, rm := c.decodeModRM()
		c.writeEA16(rm, c.fetch16())
	case 0xCA: // RETF imm16
		n := c.fetch16()
		c.ip = c.pop()
		c.segs[SegCS] = c.pop()
		c.SetReg16(RegSP, c.GetReg16(RegSP)+n)
	case 0xCB: // RETF
		c.ip = c.pop()
		c.segs[SegCS] = c.pop()
	case 0xCC: // INT3
		c.HandleInterrupt(3)
	case 0xCD: // INT n
		n := c.fetch8()
		c.HandleInterrupt(n)
	case 0xCE: // INTO
		if c.flags&alu.OF != 0 {
			c.HandleInterrupt(4)
		}
	case 0xCF: // IRET
		c.IRET()

	case 0xD0, 0xD1, 0xD2, 0xD3:
		c.group2(opcode)

	case 0xD4: // AAM
		base := c.fetch8()
		c.SetReg16(RegAX, alu.Aam(&c.flags, c.GetReg8(RegAX), base))
	case 0xD5: // AAD
		base := c.fetch8()
		c.SetReg16(RegAX, alu.Aad(&c.flags, c.GetReg16(RegAX), base))
	case 0xD7: // XLAT
		addr := uint32(c.GetReg16(RegBX)) + uint32(c.GetReg8(RegAX))
		seg := c.segs[c.segFor(SegDS)]
		c.SetReg8(RegAX, c.Mem.ReadByte(Linear(seg, uint16(addr))))

	case 0xE0, 0xE1, 0xE2, 0xE3: // LOOPNZ/LOOPZ/LOOP/JCXZ
		c.loopJcxz(opcode)
	case 0xE4: // IN AL, ib
		port := c.fetch8()
		c.SetReg8(RegAX, c.IO.In8(uint16(port)))
	case 0xE5: // IN AX, ib
		port := c.fetch8()
		c.SetReg16(RegAX, c.IO.In16(uint16(port)))
	case 0xE6: // OUT ib, AL
		port := c.fetch8()
		c.IO.Out8(uint16(port), c.GetReg8(RegAX))
	case 0xE7: // OUT ib, AX
		port := c.fetch8()
		c.IO.Out16(uint16(port), c.GetReg16(RegAX))
	case 0xE8: // CALL rel16
		rel := c.fetch16()
		c.push(c.ip)
		c.ip = c.ip + rel
	case 0xE9: // JMP rel16
		rel := c.fetch16()
		c.ip = c.ip + rel
	case 0xEA: // JMP far ptr16:16
		newIP := c.fetch16()
		newCS := c.fetch16()
		c.ip = newIP
		c.segs[SegCS] = newCS
	case 0xEB: // JMP rel8
		rel := signExtend8(c.fetch8())
		c.ip = c.ip + rel
	case 0xEC: // IN AL, DX
		c.SetReg8(RegAX, c.IO.In8(c.GetReg16(RegDX)))
	case 0xED: // IN AX, DX
		c.SetReg16(RegAX, c.IO.In16(c.GetReg16(RegDX)))
	case 0xEE: // OUT DX, AL
		c.IO.Out8(c.GetReg16(RegDX), c.GetReg8(RegAX))
	case 0xEF: // OUT DX, AX
		c.IO.Out16(c.GetReg16(RegDX), c.GetReg16(RegAX))

	case 0xF4: // HLT: the outer loop never idles, so this is a no-op
	case 0xF5: // CMC
		c.flags ^= alu.CF
	case 0xF6, 0xF7:
		c.group3(opcode)
	case 0xF8: // CLC
		c.flags &^= alu.CF
	case 0xF9: // STC
		c.flags |= alu.CF
	case 0xFA: // CLI
		c.flags &^= alu.IF
	case 0xFB: // STI
		c.flags |= alu.IF
	case 0xFC: // CLD
		c.flags &^= alu.DF
	case 0xFD: // STD
		c.flags |= alu.DF
	case 0xFE: // Group 4
		c.group4()
	case 0xFF: // Group 5
		c.group5()

	case 0x9A: // CALL far ptr16:16
		newIP := c.fetch16()
		newCS := c.fetch16()
		c.push(c.segs[SegCS])
		c.push(c.ip)
		c.ip = newIP
		c.segs[SegCS] = newCS

	case 0x0F:
		c.dispatch0F()

	default:
		log.Error("unimplemented opcode: fatal abort", "opcode", opcode)
		panic("cpu: unimplemented opcode")
	}
}

// dispatch0F handles two-byte opcodes: only the private vector-invocation
// escape (0F 34 <vec>) is implemented; everything else traps.
func (c *CPU) dispatch0F() {
	sub := c.fetch8()
	if sub != 0x34 {
		log.Error("unimplemented 0F escape: fatal abort", "subopcode", sub)
		panic("cpu: unimplemented 0F opcode")
	}
	vec := c.fetch8()
	if h, ok := c.vectorHandlers[vec]; ok {
		h(c)
		// The stub runs inside an interrupt frame, so the flags the guest
		// will get back sit at SS:SP+4. Rewrite them with whatever the
		// handler left in the live flags word.
		c.Mem.WriteWord(Linear(c.segs[SegSS], c.regs[RegSP]+4), alu.Normalize(c.flags))
	} else {
		log.Warn("vector invocation escape for unregistered vector", "vector", vec)
	}
	// The following byte is the IRET (0xCF) completing the pseudo-handler
	// stub; consume and execute it so the flags the handler just mutated
	// are the ones IRET pops back.
	iret := c.fetch8()
	if iret == 0xCF {
		c.IRET()
	}
}

func (c *CPU) arithFamily(opIndex int, variant uint8) {
	op := arithOps[opIndex]
	isCmp := opIndex == 7
	switch variant {
	case 0: // Eb, Gb
		reg, rm := c.decodeModRM()
		a := uint32(c.readEA8(rm))
		b := uint32(c.GetReg8(reg))
		res := op(&c.flags, 8, a, b)
		if !isCmp {
			c.writeEA8(rm, uint8(res))
		}
	case 1: // Ev, Gv
		reg, rm := c.decodeModRM()
		a := uint32(c.readEA16(rm))
		b := uint32(c.GetReg16(reg))
		res := op(&c.flags, 16, a, b)
		if !isCmp {
			c.writeEA16(rm, uint16(res))
		}
	case 2: // Gb, Eb
		reg, rm := c.decodeModRM()
		a := uint32(c.GetReg8(reg))
		b := uint32(c.readEA8(rm))
		res := op(&c.flags, 8, a, b)
		if !isCmp {
			c.SetReg8(reg, uint8(res))
		}
	case 3: // Gv, Ev
		reg, rm := c.decodeModRM()
		a := uint32(c.GetReg16(reg))
		b := uint32(c.readEA16(rm))
		res := op(&c.flags, 16, a, b)
		if !isCmp {
			c.SetReg16(reg, uint16(res))
		}
	case 4: // AL, ib
		a := uint32(c.GetReg8(RegAX))
		b := uint32(c.fetch8())
		res := op(&c.flags, 8, a, b)
		if !isCmp {
			c.SetReg8(RegAX, uint8(res))
		}
	case 5: // eAX, iv
		a := uint32(c.GetReg16(RegAX))
		b := uint32(c.fetch16())
		res := op(&c.flags, 16, a, b)
		if !isCmp {
			c.SetReg16(RegAX, uint16(res))
		}
	}
}

func (c *CPU) jcc(opcode uint8) {
	rel := signExtend8(c.fetch8())
	if c.condTrue(opcode & 0x0F) {
		c.ip = c.ip + rel
	}
}

func (c *CPU) condTrue(cc uint8) bool {
	f := c.flags
	switch cc {
	case 0x0: // JO
		return f&alu.OF != 0
	case 0x1: // JNO
		return f&alu.OF == 0
	case 0x2: // JB/JC
		return f&alu.CF != 0
	case 0x3: // JAE/JNC
		return f&alu.CF == 0
	case 0x4: // JE/JZ
		return f&alu.ZF != 0
	case 0x5: // JNE/JNZ
		return f&alu.ZF == 0
	case 0x6: // JBE
		return f&alu.CF != 0 || f&alu.ZF != 0
	case 0x7: // JA
		return f&alu.CF == 0 && f&alu.ZF == 0
	case 0x8: // JS
		return f&alu.SF != 0
	case 0x9: // JNS
		return f&alu.SF == 0
	case 0xA: // JP/JPE
		return f&alu.PF != 0
	case 0xB: // JNP/JPO
		return f&alu.PF == 0
	case 0xC: // JL
		return (f&alu.SF != 0) != (f&alu.OF != 0)
	case 0xD: // JGE
		return (f&alu.SF != 0) == (f&alu.OF != 0)
	case 0xE: // JLE
		return f&alu.ZF != 0 || (f&alu.SF != 0) != (f&alu.OF != 0)
	case 0xF: // JG
		return f&alu.ZF == 0 && (f&alu.SF != 0) == (f&alu.OF != 0)
	}
	return false
}

// pusha pushes AX,CX,DX,BX,original-SP,BP,SI,DI, per the 80186 PUSHA opcode.
func (c *CPU) pusha() {
	sp := c.GetReg16(RegSP)
	c.push(c.GetReg16(RegAX))
	c.push(c.GetReg16(RegCX))
	c.push(c.GetReg16(RegDX))
	c.push(c.GetReg16(RegBX))
	c.push(sp)
	c.push(c.GetReg16(RegBP))
	c.push(c.GetReg16(RegSI))
	c.push(c.GetReg16(RegDI))
}

// popa pops DI,SI,BP,(SP discarded),BX,DX,CX,AX, per the 80186 POPA opcode.
func (c *CPU) popa() {
	c.SetReg16(RegDI, c.pop())
	c.SetReg16(RegSI, c.pop())
	c.SetReg16(RegBP, c.pop())
	c.pop() // discard the saved SP
	c.SetReg16(RegBX, c.pop())
	c.SetReg16(RegDX, c.pop())
	c.SetReg16(RegCX, c.pop())
	c.SetReg16(RegAX, c.pop())
}

// group2Imm8 handles opcodes C0/C1: shift/rotate by an immediate byte count,
// the 80186 extension of group2's by-1/by-CL forms.
func (c *CPU) group2Imm8(opcode uint8) {
	reg, rm := c.decodeModRM()
	count := c.fetch8()
	is16 := opcode == 0xC1
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
		c.writeEA16(rm, uint16(shiftFn(&c.flags, 16, uint32(c.readEA16(rm)), count)))
	} else {
		c.writeEA8(rm, uint8(shiftFn(&c.flags, 8, uint32(c.readEA8(rm)), count)))
	}
}

// enter implements the 80186 ENTER imm16,imm8 stack-frame instruction.
func (c *CPU) enter() {
	size := c.fetch16()
	level := c.fetch8() & 0x1F
	bp := c.GetReg16(RegBP)
	c.push(bp)
	frameSP := c.GetReg16(RegSP)
	for i := uint8(1); i < level; i++ {
		bp -= 2
		c.push(c.Mem.ReadWord(Linear(c.segs[SegSS], bp)))
	}
	if level != 0 {
		c.push(frameSP)
	}
	c.SetReg16(RegBP, frameSP)
	c.SetReg16(RegSP, frameSP-size)
}

// leave implements the 80186 LEAVE instruction: SP = BP, then pop BP.
func (c *CPU) leave() {
	c.SetReg16(RegSP, c.GetReg16(RegBP))
	c.SetReg16(RegBP, c.pop())
}

func (c *CPU) loopJcxz(opcode uint8) {
	rel := signExtend8(c.fetch8())
	switch opcode {
	case 0xE0: // LOOPNZ
		cx := c.GetReg16(RegCX) - 1
		c.SetReg16(RegCX, cx)
		if cx != 0 && c.flags&alu.ZF == 0 {
			c.ip = c.ip + rel
		}
	case 0xE1: // LOOPZ
		cx := c.GetReg16(RegCX) - 1
		c.SetReg16(RegCX, cx)
		if cx != 0 && c.flags&alu.ZF != 0 {
			c.ip = c.ip + rel
		}
	case 0xE2: // LOOP
		cx := c.GetReg16(RegCX) - 1
		c.SetReg16(RegCX, cx)
		if cx != 0 {
			c.ip = c.ip + rel
		}
	case 0xE3: // JCXZ
		if c.GetReg16(RegCX) == 0 {
			c.ip = c.ip + rel
		}
	}
}
