// Package rtc implements the indexed CMOS/RTC register file: an address
// port latching a register index and a data port reading/writing the
// addressed register. The time/date registers are synthesized live from a
// host clock, BCD-encoded; everything else is plain battery-backed storage.
package rtc

import "pcxt/internal/hostio"

// Port offsets relative to base 0x70.
const (
	PortAddress = 0
	PortData    = 1
)

// Well-known register indices.
const (
	RegSeconds   = 0x00
	RegMinutes   = 0x02
	RegHours     = 0x04
	RegWeekday   = 0x06
	RegDayOfMon  = 0x07
	RegMonth     = 0x08
	RegYear      = 0x09
	RegStatusA   = 0x0A
	RegStatusB   = 0x0B
	RegFloppies  = 0x10
	RegCentury   = 0x32
)

const numRegisters = 128

func toBCD(v int) uint8 {
	return uint8((v/10)<<4 | (v % 10))
}

// RTC is the CMOS indexed register file.
type RTC struct {
	regs  [numRegisters]byte
	index uint8
	clock hostio.Clock
}

// New returns an RTC backed by the given clock, with the installed-floppy
// register pre-seeded: drive 0 = type 4 (1.44 MB), drive 1 = none.
func New(clock hostio.Clock) *RTC {
	r := &RTC{clock: clock}
	r.Reset()
	return r
}

// Reset zeros all storage registers and restores the floppy-type byte.
func (r *RTC) Reset() {
	for i := range r.regs {
		r.regs[i] = 0
	}
	r.index = 0
	r.regs[RegFloppies] = 0x40
}

// In8 reads the address or data port.
func (r *RTC) In8(port uint16) uint8 {
	if port&1 == PortAddress {
		return r.index
	}
	return r.readData()
}

// Out8 writes the address or data port.
func (r *RTC) Out8(port uint16, v uint8) {
	if port&1 == PortAddress {
		r.index = v & 0x7F // bit 7 is the NMI-mask bit; it is dropped, not stored
		return
	}
	r.writeData(v)
}

func (r *RTC) readData() uint8 {
	idx := r.index
	switch idx {
	case RegSeconds, RegMinutes, RegHours, RegWeekday, RegDayOfMon, RegMonth, RegYear, RegCentury:
		return r.liveClockRegister(idx)
	case RegStatusA:
		return 0x00 // update-in-progress never set
	default:
		return r.regs[idx]
	}
}

func (r *RTC) writeData(v uint8) {
	idx := r.index
	switch idx {
	case RegSeconds, RegMinutes, RegHours, RegWeekday, RegDayOfMon, RegMonth, RegYear, RegCentury, RegStatusA:
		return // time/date and status-A are read-only in this model
	default:
		r.regs[idx] = v
	}
}

func (r *RTC) liveClockRegister(idx uint8) uint8 {
	now := r.clock.Now()
	switch idx {
	case RegSeconds:
		return toBCD(now.Second())
	case RegMinutes:
		return toBCD(now.Minute())
	case RegHours:
		return toBCD(now.Hour())
	case RegWeekday:
		return toBCD(int(now.Weekday()) + 1)
	case RegDayOfMon:
		return toBCD(now.Day())
	case RegMonth:
		return toBCD(int(now.Month()))
	case RegYear:
		return toBCD(now.Year() % 100)
	case RegCentury:
		return toBCD(now.Year() / 100)
	}
	return 0
}
