// Package fdc implements an 82077A-style floppy disk controller: a
// command-byte FIFO state machine that drives DMA-mediated sector
// transfers. An image read that fails mid-command reports abnormal
// termination plus NoData in the status bytes but still completes the
// DMA transfer, the way the real controller finishes its bus cycle.
package fdc

import (
	"pcxt/internal/dma"
	"pcxt/internal/logx"
)

var log = logx.For("fdc")

// Port offsets relative to base 0x3F0.
const (
	PortStatusA       = 0
	PortStatusB       = 1
	PortDigitalOutput = 2
	PortMainStatus    = 4 // read
	PortDataRate      = 4 // write
	PortDataFifo      = 5
	PortDigitalInput  = 7 // read
	PortConfigControl = 7 // write
)

// IRQLine is the FDC's wired interrupt line on the PC platform.
const IRQLine = 6

// st0 interrupt-code bits.
const (
	st0ICNormal   = 0x00
	st0ICAbnormal = 0x40
	st0ICInvalid  = 0xC0 // drive-not-ready status reported after a reset
	st0SeekEnd    = 0x20
)

// st1 bits.
const st1NoData = 0x04

type state int

const (
	stateIdle state = iota
	stateReceiveCommand
	stateTransmitResult
)

// inputByteCount maps the low 5 bits of an opcode to its total command
// byte count, including the opcode itself.
var inputByteCount = map[uint8]int{
	3:  3,  // Specify
	5:  9,  // WriteData
	6:  9,  // ReadData
	7:  2,  // Recalibrate
	8:  1,  // SenseInterruptStatus
	10: 2,  // ReadID
	13: 6,  // FormatTrack
	15: 3,  // Seek
	19: 7,  // Configure
}

// Image is the backing floppy-image capability: fixed-geometry raw CHS
// (80/2/18/512), read by absolute byte offset. The controller only reads
// from the image; it never writes to it.
type Image interface {
	ReadAt(offset int64, p []byte) (n int, err error)
}

// DMAController is the capability FDC uses to start a channel-2 transfer.
type DMAController interface {
	InitiateTransfer(ch int) *dma.Handle
}

// PIC is the capability FDC uses to raise its interrupt line.
type PIC interface {
	AssertIRQ(n int)
}

// FDC is the floppy disk controller.
type FDC struct {
	st     state
	fifo   [16]byte
	wr, rd int
	need   int
	opcode uint8

	st0          uint8
	currentTrack uint8
	diskChange   bool

	dor uint8 // digital output register (motor/drive select/reset line)

	image Image
	dma   DMAController
	pic   PIC
}

// New returns a reset controller wired to the given image, DMA controller,
// and PIC.
func New(image Image, dma DMAController, pic PIC) *FDC {
	f := &FDC{image: image, dma: dma, pic: pic}
	f.Reset()
	return f
}

// Reset restores Idle state, clears the FIFO, and raises the controller's
// IRQ line as real 82077A hardware does after a reset.
func (f *FDC) Reset() {
	f.st = stateIdle
	f.wr, f.rd, f.need = 0, 0, 0
	f.st0 = st0ICInvalid
	f.currentTrack = 0
	f.pic.AssertIRQ(IRQLine)
}

// SetImageReplaced marks the disk-change latch, simulating a host-level
// "image swapped" event.
func (f *FDC) SetImageReplaced() {
	f.diskChange = true
}

// In8 reads a controller port.
func (f *FDC) In8(port uint16) uint8 {
	switch port & 0x07 {
	case PortMainStatus:
		return f.mainStatus()
	case PortDataFifo:
		return f.readFifo()
	case PortDigitalInput:
		var v uint8
		if f.diskChange {
			v |= 1 << 7
		}
		return v
	}
	return 0
}

// Out8 writes a controller port.
func (f *FDC) Out8(port uint16, v uint8) {
	switch port & 0x07 {
	case PortDigitalOutput:
		f.writeDOR(v)
	case PortDataFifo:
		f.writeFifo(v)
	}
}

func (f *FDC) writeDOR(v uint8) {
	resetLine := v&0x04 != 0
	wasLow := f.dor&0x04 == 0
	f.dor = v
	if resetLine && wasLow {
		f.Reset()
	}
}

func (f *FDC) mainStatus() uint8 {
	var v uint8
	switch f.st {
	case stateReceiveCommand:
		v |= 1 << 4 // CMD_BSY
		v |= 1 << 7 // RQM: ready for more command bytes
	case stateTransmitResult:
		v |= 1 << 6 // DIO: data direction controller->host
		v |= 1 << 7 // RQM
	default:
		v |= 1 << 7 // RQM: ready to accept a new command
	}
	return v
}

func (f *FDC) writeFifo(v uint8) {
	switch f.st {
	case stateIdle:
		f.opcode = v
		f.wr = 0
		f.fifo[f.wr] = v
		f.wr++
		n, ok := inputByteCount[v&0x1F]
		if !ok {
			log.Error("unimplemented FDC opcode", "opcode", v)
			n = 1
		}
		f.need = n
		if f.need == 1 {
			f.execute()
		} else {
			f.st = stateReceiveCommand
		}
	case stateReceiveCommand:
		f.fifo[f.wr] = v
		f.wr++
		if f.wr >= f.need {
			f.execute()
		}
	}
}

func (f *FDC) readFifo() uint8 {
	if f.st != stateTransmitResult {
		return 0
	}
	v := f.fifo[f.rd]
	f.rd++
	if f.rd >= f.wr {
		f.st = stateIdle
		f.rd, f.wr = 0, 0
	}
	return v
}

func (f *FDC) pushResult(bytes ...uint8) {
	f.wr = copy(f.fifo[:], bytes)
	f.rd = 0
	f.st = stateTransmitResult
}

func (f *FDC) execute() {
	opcode := f.opcode & 0x1F
	switch opcode {
	case 8:
		f.senseInterruptStatus()
	case 3:
		f.specify()
	case 7:
		f.recalibrate()
	case 15:
		f.seek()
	case 10:
		f.readID()
	case 6:
		f.readData()
	default:
		log.Error("unimplemented FDC command execution", "opcode", f.opcode)
		f.st = stateIdle
		f.wr, f.rd = 0, 0
	}
}

func (f *FDC) senseInterruptStatus() {
	f.pushResult(f.st0, f.currentTrack)
}

func (f *FDC) specify() {
	// fifo[1] = SRT/HUT nibbles, fifo[2] = HLT/ND; accepted, not timed.
	f.st = stateIdle
	f.wr, f.rd = 0, 0
}

func (f *FDC) recalibrate() {
	f.currentTrack = 0
	f.st0 = st0SeekEnd
	f.st = stateIdle
	f.wr, f.rd = 0, 0
	f.pic.AssertIRQ(IRQLine)
}

func (f *FDC) seek() {
	f.currentTrack = f.fifo[2]
	f.diskChange = false
	f.st0 = st0SeekEnd
	f.st = stateIdle
	f.wr, f.rd = 0, 0
	f.pic.AssertIRQ(IRQLine)
}

func (f *FDC) readID() {
	f.pushResult(f.st0, 0, 0, 0, 0, 0, 2)
	f.pic.AssertIRQ(IRQLine)
}

// geometry constants for the fixed 1.44 MB image.
const (
	headsPerCylinder = 2
	sectorsPerTrack  = 18
	bytesPerSector   = 512
)

func (f *FDC) readData() {
	// FIFO layout: [0]=opcode mt/mfm/sk bits, [1]=hds/ds, [2]=c, [3]=h,
	// [4]=r, [5]=n, [6]=eot, [7]=gpl, [8]=dtl.
	c := f.fifo[2]
	h := f.fifo[3]
	r := f.fifo[4]

	handle := f.dma.InitiateTransfer(2)
	total := handle.TotalLength()

	buf := make([]byte, bytesPerSector)
	offset := 0
	curR := r
	curC := c
	readFailed := false
	for offset < total {
		if f.image == nil {
			readFailed = true
			break
		}
		byteOffset := int64((int(curC)*headsPerCylinder+int(h))*sectorsPerTrack+int(curR-1)) * bytesPerSector
		n, err := f.image.ReadAt(byteOffset, buf)
		if err != nil || n != bytesPerSector {
			readFailed = true
			break
		}
		chunk := buf
		if remaining := total - offset; remaining < len(chunk) {
			chunk = chunk[:remaining]
		}
		handle.WriteFromPeripheral(offset, chunk)
		offset += len(chunk)
		curR++
		if curR > sectorsPerTrack {
			curR = 1
			curC++
		}
	}
	handle.Complete()

	// The result phase reports the command's original c/h/r, not the
	// position the transfer loop advanced to.
	if readFailed {
		f.pushResult(st0ICAbnormal, st1NoData, 0, c, h, r, f.fifo[5])
	} else {
		f.pushResult(st0ICNormal, 0, 0, c, h, r, f.fifo[5])
	}
	f.pic.AssertIRQ(IRQLine)
}
