package machine

import "pcxt/internal/cpu"

// VectorHandlerSegment is the real-mode segment holding the invocation
// stubs for host-registered interrupt vectors. Each registered vector n
// gets the four-byte stub 0F 34 n CF at offset n*4, and the interrupt
// vector table entry at 0:n*4 is pointed at it, so guest software can
// chain into the vector the same way it would hook any other handler.
const VectorHandlerSegment = 0xF800

// RegisterVector installs a host callback for interrupt vector n: it
// writes the invocation stub, hooks the real-mode vector table, and
// registers the callback with the CPU's escape-opcode dispatch.
func (m *Machine) RegisterVector(n uint8, h cpu.VectorHandler) {
	stub := cpu.Linear(VectorHandlerSegment, uint16(n)*4)
	m.Mem.WriteByte(stub+0, 0x0F)
	m.Mem.WriteByte(stub+1, 0x34)
	m.Mem.WriteByte(stub+2, n)
	m.Mem.WriteByte(stub+3, 0xCF)

	ivt := uint32(n) * 4
	m.Mem.WriteWord(ivt+0, uint16(n)*4)
	m.Mem.WriteWord(ivt+2, VectorHandlerSegment)

	m.CPU.RegisterVectorHandler(n, h)
}
