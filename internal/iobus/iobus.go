// Package iobus implements the 64Ki-port I/O address space: the same
// range-registered mapping discipline as internal/membus, but with no
// backing store: unmapped reads return 0, unmapped writes are dropped and
// logged.
package iobus

import "pcxt/internal/logx"

var log = logx.For("iobus")

// Peripheral is implemented by any device mapped into the I/O bus.
type Peripheral interface {
	In8(port uint16) uint8
	Out8(port uint16, v uint8)
}

// WordPeripheral is an optional capability for peripherals that handle
// 16-bit port accesses themselves. The bus never splits a 16-bit access
// into two 8-bit accesses on its own: against an 8-bit-only peripheral,
// In16 reads just the low byte (high byte zero) and Out16 writes just the
// low byte.
type WordPeripheral interface {
	In16(port uint16) uint16
	Out16(port uint16, v uint16)
}

type mapping struct {
	base, length uint16
	dev          Peripheral
}

// Bus is the I/O port bus.
type Bus struct {
	mappings []mapping
}

// New returns an empty I/O bus.
func New() *Bus { return &Bus{} }

// AddPeripheral registers a non-overlapping (base, length) port range.
func (b *Bus) AddPeripheral(base, length uint16, dev Peripheral) {
	b.mappings = append(b.mappings, mapping{base, length, dev})
}

func (b *Bus) find(port uint16) Peripheral {
	for _, m := range b.mappings {
		if port >= m.base && port < m.base+m.length {
			return m.dev
		}
	}
	return nil
}

// In8 reads one byte from the given port.
func (b *Bus) In8(port uint16) uint8 {
	dev := b.find(port)
	if dev == nil {
		log.Warn("read from unmapped port", "port", port)
		return 0
	}
	return dev.In8(port)
}

// Out8 writes one byte to the given port.
func (b *Bus) Out8(port uint16, v uint8) {
	dev := b.find(port)
	if dev == nil {
		log.Warn("write to unmapped port", "port", port, "value", v)
		return
	}
	dev.Out8(port, v)
}

// In16 reads a 16-bit value. If the owning peripheral implements
// WordPeripheral, its In16 is used; otherwise the low byte comes from In8
// at port and the high byte is zero.
func (b *Bus) In16(port uint16) uint16 {
	dev := b.find(port)
	if dev == nil {
		log.Warn("read16 from unmapped port", "port", port)
		return 0
	}
	if wp, ok := dev.(WordPeripheral); ok {
		return wp.In16(port)
	}
	return uint16(dev.In8(port))
}

// Out16 writes a 16-bit value, with the same capability rule as In16.
func (b *Bus) Out16(port uint16, v uint16) {
	dev := b.find(port)
	if dev == nil {
		log.Warn("write16 to unmapped port", "port", port, "value", v)
		return
	}
	if wp, ok := dev.(WordPeripheral); ok {
		wp.Out16(port, v)
		return
	}
	dev.Out8(port, uint8(v))
}
