// Package ide implements a single-channel IDE/ATA task-file interface with
// a sector-oriented PIO transfer state machine. This board decodes each
// task-file register at an even offset from the base port (base + 2n)
// rather than the contiguous byte-per-register layout of a standard ISA
// IDE adapter.
package ide

import "pcxt/internal/logx"

var log = logx.For("ide")

// Register offsets, each at base + n*2.
const (
	RegData           = 0x00
	RegErrorFeature   = 0x02
	RegSectorCount    = 0x04
	RegSectorNumber   = 0x06
	RegCylinderLow    = 0x08
	RegCylinderHigh   = 0x0A
	RegDriveHead      = 0x0C
	RegStatusCommand  = 0x0E
	// RegAltStatus shares the same offset as RegStatusCommand: the 16-byte
	// 0x300-0x30F span has room for only eight strided registers, so this
	// simplified model folds AltStatus/DevControl reads into the Status
	// register read path rather than giving it a ninth slot.
	RegAltStatus = 0x0E
)

// Status register bits.
const (
	StatusError       = 1 << 0
	StatusIndex       = 1 << 1
	StatusCorrectData = 1 << 2
	StatusDataRequest = 1 << 3
	StatusServiceReq  = 1 << 4
	StatusDriveFault  = 1 << 5
	StatusReady       = 1 << 6
	StatusBusy        = 1 << 7
)

// Commands.
const (
	CmdReadSectors       = 0x20
	CmdReadSectorsVerify = 0x40
	CmdWriteSectors      = 0x30
	CmdSetMultipleMode   = 0xC6
	CmdIdentify          = 0xEC
	CmdSetFeatures       = 0xEF
)

// Fixed CHS geometry reported by Identify and used for address translation.
const (
	Cylinders  = 615
	Heads      = 6
	Sectors    = 17
	SectorSize = 512
)

type transferMode int

const (
	modeIdle transferMode = iota
	modePeripheralToHost
	modeHostToPeripheral
)

// Disk is the backing image capability.
type Disk interface {
	ReadAt(offset int64, p []byte) (int, error)
	WriteAt(offset int64, p []byte) (int, error)
}

// Controller is a single IDE channel with up to two devices.
type Controller struct {
	disks [2]Disk // nil entries mean "no drive present"
	sel   int

	sectorCount  uint8
	sectorNumber uint8
	cylinderLo   uint8
	cylinderHi   uint8
	driveHead    uint8
	feature      uint8
	errorReg     uint8

	buf       [SectorSize]byte
	bufOffset int

	mode         transferMode
	lba          int64
	sectorsLeft  int
	statusError  bool
}

// New returns a controller with up to two disks attached (either may be nil).
func New(disk0, disk1 Disk) *Controller {
	c := &Controller{}
	c.disks[0] = disk0
	c.disks[1] = disk1
	return c
}

// Reset clears the task file and aborts any in-flight transfer.
func (c *Controller) Reset() {
	*c = Controller{disks: c.disks}
}

func (c *Controller) selectedDisk() Disk {
	return c.disks[c.sel]
}

// In8 reads a task-file register.
func (c *Controller) In8(port uint16) uint8 {
	switch port & 0x0F {
	case RegData:
		return c.readData()
	case RegErrorFeature:
		return c.errorReg
	case RegSectorCount:
		return c.sectorCount
	case RegSectorNumber:
		return c.sectorNumber
	case RegCylinderLow:
		return c.cylinderLo
	case RegCylinderHigh:
		return c.cylinderHi
	case RegDriveHead:
		return c.driveHead
	case RegAltStatus:
		return c.status()
	}
	return 0
}

// Out8 writes a task-file register, dispatching a command on a write to
// the command register.
func (c *Controller) Out8(port uint16, v uint8) {
	switch port & 0x0F {
	case RegData:
		c.writeData(v)
	case RegErrorFeature:
		c.feature = v
	case RegSectorCount:
		c.sectorCount = v
	case RegSectorNumber:
		c.sectorNumber = v
	case RegCylinderLow:
		c.cylinderLo = v
	case RegCylinderHigh:
		c.cylinderHi = v
	case RegDriveHead:
		c.driveHead = v
		c.sel = int((v >> 4) & 1)
	case RegStatusCommand:
		c.execute(v)
	}
}

func (c *Controller) status() uint8 {
	var v uint8
	if c.selectedDisk() != nil {
		v |= StatusReady
	}
	if c.mode != modeIdle {
		v |= StatusDataRequest
	}
	if c.statusError {
		v |= StatusError
	}
	return v
}

func (c *Controller) currentLBA() int64 {
	cyl := int64(c.cylinderLo) | int64(c.cylinderHi)<<8
	head := int64(c.driveHead & 0x0F)
	sector := int64(c.sectorNumber)
	return (cyl*Heads + head) * Sectors + (sector - 1)
}

func (c *Controller) execute(cmd uint8) {
	c.errorReg = 0
	c.statusError = false
	switch cmd {
	case CmdReadSectors, CmdReadSectorsVerify:
		c.beginRead(cmd == CmdReadSectorsVerify)
	case CmdWriteSectors:
		c.beginWrite()
	case CmdSetMultipleMode:
		if c.sectorCount != 0 && c.sectorCount != 1 {
			c.statusError = true
			c.errorReg = 0x04 // aborted command
		}
	case CmdIdentify:
		c.identify()
	case CmdSetFeatures:
		// accepted, not modeled further
	default:
		log.Warn("unimplemented IDE command", "command", cmd)
		c.statusError = true
		c.errorReg = 0x04
	}
}

func (c *Controller) beginRead(verifyOnly bool) {
	if c.selectedDisk() == nil {
		c.statusError = true
		c.errorReg = 0x04
		return
	}
	c.lba = c.currentLBA()
	c.sectorsLeft = int(c.sectorCount)
	if c.sectorsLeft == 0 {
		c.sectorsLeft = 256
	}
	if verifyOnly {
		c.mode = modeIdle
		return
	}
	if !c.loadSector() {
		return
	}
	c.mode = modePeripheralToHost
	c.bufOffset = 0
}

func (c *Controller) loadSector() bool {
	_, err := c.selectedDisk().ReadAt(c.lba*SectorSize, c.buf[:])
	if err != nil {
		c.statusError = true
		c.errorReg = 0x10 // ID-not-found class error
		c.mode = modeIdle
		return false
	}
	return true
}

func (c *Controller) beginWrite() {
	if c.selectedDisk() == nil {
		c.statusError = true
		c.errorReg = 0x04
		return
	}
	c.lba = c.currentLBA()
	c.sectorsLeft = int(c.sectorCount)
	if c.sectorsLeft == 0 {
		c.sectorsLeft = 256
	}
	c.mode = modeHostToPeripheral
	c.bufOffset = 0
}

func (c *Controller) identify() {
	if c.selectedDisk() == nil {
		c.statusError = true
		c.errorReg = 0x04
		return
	}
	var b [SectorSize]byte
	b[1] = 0x80 // fixed device
	putWord := func(off int, v uint16) {
		b[off] = byte(v)
		b[off+1] = byte(v >> 8)
	}
	putWord(2, Cylinders)
	putWord(6, Heads)
	putWord(12, Sectors)
	model := "DUMMY DRIVE"
	for i := 0; i < 20 && 2*i+1 < 40; i++ {
		var c0, c1 byte = ' ', ' '
		if 2*i < len(model) {
			c0 = model[2*i]
		}
		if 2*i+1 < len(model) {
			c1 = model[2*i+1]
		}
		b[54+2*i] = c1
		b[54+2*i+1] = c0
	}
	c.buf = b
	c.mode = modePeripheralToHost
	c.bufOffset = 0
	c.sectorsLeft = 1
}

func (c *Controller) readData() uint8 {
	if c.mode != modePeripheralToHost {
		return 0xFF
	}
	v := c.buf[c.bufOffset]
	c.bufOffset++
	if c.bufOffset >= SectorSize {
		c.sectorsLeft--
		if c.sectorsLeft > 0 {
			c.lba++
			c.loadSector()
			c.bufOffset = 0
		} else {
			c.mode = modeIdle
		}
	}
	return v
}

func (c *Controller) writeData(v uint8) {
	if c.mode != modeHostToPeripheral {
		return
	}
	c.buf[c.bufOffset] = v
	c.bufOffset++
	if c.bufOffset >= SectorSize {
		c.flushSector()
		c.sectorsLeft--
		if c.sectorsLeft > 0 {
			c.lba++
			c.bufOffset = 0
		} else {
			c.mode = modeIdle
		}
	}
}

func (c *Controller) flushSector() {
	if _, err := c.selectedDisk().WriteAt(c.lba*SectorSize, c.buf[:]); err != nil {
		c.statusError = true
		c.errorReg = 0x04
	}
}
