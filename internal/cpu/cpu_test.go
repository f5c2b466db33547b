package cpu

import (
	"testing"

	"pcxt/internal/alu"
	"pcxt/internal/iobus"
	"pcxt/internal/membus"
	"pcxt/internal/pic"
)

func newTestCPU() (*CPU, *membus.Bus) {
	mem := membus.New()
	io := iobus.New()
	p := pic.New()
	c := New(mem, io, p)
	c.SetSeg(SegCS, 0)
	c.SetSeg(SegDS, 0)
	c.SetSeg(SegES, 0)
	c.SetSeg(SegSS, 0)
	c.SetIP(0)
	c.SetReg16(RegSP, 0x0600)
	return c, mem
}

func loadCode(mem *membus.Bus, base uint32, code ...byte) {
	for i, b := range code {
		mem.WriteByte(base+uint32(i), b)
	}
}

// TestREPMovsbCopiesString exercises the REP-prefixed MOVSB string op's
// repeat-and-decrement CX loop.
func TestREPMovsbCopiesString(t *testing.T) {
	c, mem := newTestCPU()
	for i, b := range []byte{1, 2, 3, 4, 5} {
		mem.WriteByte(0x100+uint32(i), b)
	}
	c.SetReg16(RegSI, 0x100)
	c.SetReg16(RegDI, 0x200)
	c.SetReg16(RegCX, 5)

	loadCode(mem, 0, 0xF3, 0xA4) // REP MOVSB

	c.Step()

	for i := 0; i < 5; i++ {
		if got := mem.ReadByte(0x200 + uint32(i)); got != byte(i+1) {
			t.Fatalf("dest[%d] = %d, want %d", i, got, i+1)
		}
	}
	if c.GetReg16(RegCX) != 0 {
		t.Fatalf("CX = %d, want 0", c.GetReg16(RegCX))
	}
	if c.GetReg16(RegSI) != 0x105 || c.GetReg16(RegDI) != 0x205 {
		t.Fatalf("SI/DI = %#x/%#x, want 0x105/0x205", c.GetReg16(RegSI), c.GetReg16(RegDI))
	}
}

// TestFarCallAndRetf exercises CALL far ptr16:16 and its matching RETF,
// confirming the pushed return CS:IP round-trips through the stack.
func TestFarCallAndRetf(t *testing.T) {
	c, mem := newTestCPU()
	loadCode(mem, 0, 0x9A, 0x50, 0x00, 0x10, 0x00) // CALL far 0010:0050

	c.Step()

	if c.GetSeg(SegCS) != 0x10 || c.IP() != 0x50 {
		t.Fatalf("CS:IP = %#x:%#x, want 0010:0050", c.GetSeg(SegCS), c.IP())
	}

	loadCode(mem, Linear(0x10, 0x50), 0xCB) // RETF
	c.Step()

	if c.GetSeg(SegCS) != 0 || c.IP() != 5 {
		t.Fatalf("CS:IP = %#x:%#x, want 0000:0005", c.GetSeg(SegCS), c.IP())
	}
}

// TestPushfPopfNormalizesFlags exercises the XOR/PUSH/POPF/PUSHF/POP
// sequence whose final AX must reflect the fixed-bits invariant: bit 1
// forced set, bits 3/5/15 forced clear, nothing else synthesized.
func TestPushfPopfNormalizesFlags(t *testing.T) {
	c, mem := newTestCPU()
	c.SetReg16(RegBX, 0xFFFF)
	loadCode(mem, 0,
		0x31, 0xDB, // XOR BX, BX
		0x53,       // PUSH BX
		0x9D,       // POPF
		0x9C,       // PUSHF
		0x58,       // POP AX
	)

	for i := 0; i < 5; i++ {
		c.Step()
	}

	if got := c.GetReg16(RegAX); got != 0x0002 {
		t.Fatalf("AX = %#x, want 0x0002", got)
	}
}

// TestVectorInvocationEscape exercises the private 0F 34 <vec> opcode: the
// registered handler runs, and the trailing 0xCF byte drives a real IRET
// that pops the return frame the caller pushed, including the flags word
// the CPU rewrote on the stack to carry the handler's flag changes, so
// handler mutations reach the guest through the normal IRET pop rather
// than through some side channel.
func TestVectorInvocationEscape(t *testing.T) {
	c, mem := newTestCPU()

	const origIP, origCS uint16 = 0x9999, 0x1111
	c.push(alu.ResetFlags)
	c.push(origCS)
	c.push(origIP)

	c.RegisterVectorHandler(5, func(cpu *CPU) {
		cpu.SetReg16(RegAX, 0x1234)
		cpu.SetFlags(0x8046)
	})

	loadCode(mem, 0, 0x0F, 0x34, 0x05, 0xCF)
	c.Step()

	if got := c.GetReg16(RegAX); got != 0x1234 {
		t.Fatalf("AX = %#x, want 0x1234", got)
	}
	if c.IP() != origIP || c.GetSeg(SegCS) != origCS {
		t.Fatalf("CS:IP = %#x:%#x, want %#x:%#x", c.GetSeg(SegCS), c.IP(), origCS, origIP)
	}
	if want := alu.Normalize(0x8046); c.Flags() != want {
		t.Fatalf("flags = %#x, want %#x", c.Flags(), want)
	}
}

// TestDaaOpcodeDispatch exercises the 0x27 DAA opcode end to end (not just
// alu.Daa in isolation), confirming the dispatch table actually reaches the
// BCD-adjust family: 0x09 + 0x01 in packed BCD with AL=0x0A before the
// adjust must carry into 0x10 with AF set (CF stays clear), the classic
// BCD-carry case.
func TestDaaOpcodeDispatch(t *testing.T) {
	c, mem := newTestCPU()
	c.SetReg8(RegAX, 0x0A)
	loadCode(mem, 0, 0x27) // DAA

	c.Step()

	if got := c.GetReg8(RegAX); got != 0x10 {
		t.Fatalf("AL = %#x, want 0x10", got)
	}
	if c.Flags()&alu.AF == 0 {
		t.Fatal("expected AF set")
	}
}

// TestAamOpcodeDispatch exercises the 0xD4 AAM opcode: AL=0x1B (27 decimal)
// adjusted for base 10 yields AH=2, AL=7.
func TestAamOpcodeDispatch(t *testing.T) {
	c, mem := newTestCPU()
	c.SetReg8(RegAX, 0x1B)
	loadCode(mem, 0, 0xD4, 0x0A) // AAM base 10

	c.Step()

	if ax := c.GetReg16(RegAX); ax != 0x0207 {
		t.Fatalf("AX = %#x, want 0x0207", ax)
	}
}

// TestPushaPopaRoundTrip exercises the 80186 PUSHA/POPA pair, confirming
// every general register survives the round trip except SP (which POPA
// restores from the frame it was pushed from, not from the pushed value).
func TestPushaPopaRoundTrip(t *testing.T) {
	c, mem := newTestCPU()
	c.SetReg16(RegAX, 0x1111)
	c.SetReg16(RegCX, 0x2222)
	c.SetReg16(RegDX, 0x3333)
	c.SetReg16(RegBX, 0x4444)
	c.SetReg16(RegBP, 0x5555)
	c.SetReg16(RegSI, 0x6666)
	c.SetReg16(RegDI, 0x7777)
	loadCode(mem, 0, 0x60, 0x61) // PUSHA; POPA

	c.Step() // PUSHA (pushes the values set above)
	c.SetReg16(RegAX, 0xDEAD)
	c.Step() // POPA

	if c.GetReg16(RegAX) != 0x1111 || c.GetReg16(RegDI) != 0x7777 {
		t.Fatalf("AX/DI = %#x/%#x after POPA, want 0x1111/0x7777", c.GetReg16(RegAX), c.GetReg16(RegDI))
	}
}

// TestEnterLeaveFramePointer exercises the 80186 ENTER/LEAVE stack-frame
// pair at nesting level 0: ENTER sets BP to the post-push SP and reserves
// the requested local space; LEAVE restores SP and pops BP.
func TestEnterLeaveFramePointer(t *testing.T) {
	c, mem := newTestCPU()
	startSP := c.GetReg16(RegSP)
	loadCode(mem, 0, 0xC8, 0x04, 0x00, 0x00, 0xC9) // ENTER 4,0; LEAVE

	c.Step() // ENTER
	if got, want := c.GetReg16(RegSP), startSP-2-4; got != want {
		t.Fatalf("SP after ENTER = %#x, want %#x", got, want)
	}
	if c.GetReg16(RegBP) != startSP-2 {
		t.Fatalf("BP after ENTER = %#x, want %#x", c.GetReg16(RegBP), startSP-2)
	}

	c.Step() // LEAVE
	if c.GetReg16(RegSP) != startSP {
		t.Fatalf("SP after LEAVE = %#x, want %#x", c.GetReg16(RegSP), startSP)
	}
}

func TestResetState(t *testing.T) {
	c, _ := newTestCPU()
	c.SetReg16(RegAX, 0x1234)
	c.Reset()
	if c.GetReg16(RegAX) != 0 {
		t.Fatal("expected general registers cleared on reset")
	}
	if c.GetSeg(SegCS) != 0xFFFF || c.IP() != 0 {
		t.Fatalf("CS:IP = %#x:%#x, want FFFF:0000", c.GetSeg(SegCS), c.IP())
	}
	if c.Flags() != alu.ResetFlags {
		t.Fatalf("flags = %#x, want %#x", c.Flags(), alu.ResetFlags)
	}
}
