// Package machine is the composition root: it wires the CPU to the memory
// and I/O buses, registers every peripheral's mapping at its standard PC
// address or port, and drives the single-threaded cooperative instruction
// loop. The CPU is the only bus initiator, so nothing here needs locking.
package machine

import (
	"context"
	"fmt"
	"os"

	"pcxt/internal/alu"
	"pcxt/internal/cpu"
	"pcxt/internal/diskimage"
	"pcxt/internal/dma"
	"pcxt/internal/fdc"
	"pcxt/internal/hostio"
	"pcxt/internal/ide"
	"pcxt/internal/iobus"
	"pcxt/internal/logx"
	"pcxt/internal/membus"
	"pcxt/internal/pic"
	"pcxt/internal/pit"
	"pcxt/internal/ppi"
	"pcxt/internal/rtc"
	"pcxt/internal/vga"
)

var log = logx.For("machine")

// Memory map base addresses.
const (
	vgaMemBase   = 0xA0000
	vgaMemLength = 0x20000
	extROMBase   = 0xE8000
)

// I/O port assignments, matching the standard PC layout.
const (
	portDMABase      = 0x00
	portDMALength    = 0x10
	portPICBase      = 0x20
	portPICLength    = 0x02
	portPITBase      = 0x40
	portPITLength    = 0x04
	portRTCBase      = 0x70
	portRTCLength    = 0x02
	portIDEBase      = 0x300
	portIDELength    = 0x10
	portFDCBase      = 0x3F0
	portFDCLength    = 0x08
	portVGAMonoBase  = 0x3B0
	portVGAColorBase = 0x3D0
	portVGARangeLen  = 0x10
	portVGAAttr      = 0x3C0
)

// FrameInterval is how many CPU instructions elapse between VGA rasterize
// passes.
const FrameInterval = 4096

// Config gathers everything needed to build a Machine.
type Config struct {
	BIOSPath         string
	ExtensionROMPath string
	FloppyPath       string
	HardDiskPath     string

	DipSwitches uint8

	Clock    hostio.Clock
	Display  hostio.DisplaySurface
	Keyboard hostio.KeyboardSource
}

// Machine owns every peripheral and the CPU that drives them.
type Machine struct {
	CPU *cpu.CPU
	Mem *membus.Bus
	IO  *iobus.Bus

	PIC      *pic.PIC
	PIT      *pit.PIT
	DMA      *dma.Controller
	FDC      *fdc.FDC
	IDE      *ide.Controller
	VGA      *vga.VGA
	RTC      *rtc.RTC
	PPI      *ppi.PPI
	Keyboard *ppi.Keyboard

	floppyImage *diskimage.Image
	hddImage    *diskimage.Image

	instrCount uint64
}

// New builds a fully wired Machine: buses, every peripheral's memory/port
// mapping, and image/ROM loading.
func New(cfg Config) (*Machine, error) {
	if cfg.Clock == nil {
		cfg.Clock = hostio.SystemClock{}
	}
	if cfg.Keyboard == nil {
		cfg.Keyboard = noKeyboard{}
	}

	m := &Machine{
		Mem: membus.New(),
		IO:  iobus.New(),
	}

	m.PIC = pic.New()
	m.DMA = dma.New(m.Mem)
	m.PIT = pit.New(cfg.Clock)
	m.RTC = rtc.New(cfg.Clock)
	m.PPI = ppi.New(m.PIT, cfg.DipSwitches)
	m.Keyboard = ppi.NewKeyboard(m.PPI, m.PIC, cfg.Keyboard)
	m.VGA = vga.New(cfg.Clock, cfg.Display)

	var err error
	var floppyDisk fdc.Image
	if cfg.FloppyPath != "" {
		m.floppyImage, err = diskimage.Open(cfg.FloppyPath)
		if err != nil {
			return nil, fmt.Errorf("machine: floppy image: %w", err)
		}
		floppyDisk = m.floppyImage
	}
	m.FDC = fdc.New(floppyDisk, m.DMA, m.PIC)

	var hddDisk ide.Disk
	if cfg.HardDiskPath != "" {
		m.hddImage, err = diskimage.Open(cfg.HardDiskPath)
		if err != nil {
			return nil, fmt.Errorf("machine: hard disk image: %w", err)
		}
		hddDisk = m.hddImage
	}
	m.IDE = ide.New(hddDisk, nil)

	m.CPU = cpu.New(m.Mem, m.IO, m.PIC)

	m.registerMappings()

	if cfg.BIOSPath != "" {
		if err := m.loadBIOS(cfg.BIOSPath); err != nil {
			return nil, err
		}
	}
	if cfg.ExtensionROMPath != "" {
		if err := m.loadExtensionROM(cfg.ExtensionROMPath); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Machine) registerMappings() {
	m.Mem.AddPeripheral(vgaMemBase, vgaMemLength, m.VGA)

	m.IO.AddPeripheral(portDMABase, portDMALength, m.DMA)
	for ch := 0; ch < 4; ch++ {
		m.IO.AddPeripheral(dma.PagePort(ch), 1, m.DMA)
	}
	m.IO.AddPeripheral(portPICBase, portPICLength, m.PIC)
	m.IO.AddPeripheral(portPITBase, portPITLength, m.PIT)
	m.IO.AddPeripheral(ppi.PortKeyboardData, 1, m.Keyboard)
	m.IO.AddPeripheral(ppi.PortKeyboardStatus, 1, m.Keyboard)
	m.IO.AddPeripheral(ppi.PortB, 1, m.PPI)
	m.IO.AddPeripheral(ppi.PortC, 1, m.PPI)
	m.IO.AddPeripheral(ppi.PortNMIMask, 1, m.PPI)
	m.IO.AddPeripheral(portRTCBase, portRTCLength, m.RTC)
	m.IO.AddPeripheral(portIDEBase, portIDELength, m.IDE)
	m.IO.AddPeripheral(portFDCBase, portFDCLength, m.FDC)
	m.IO.AddPeripheral(portVGAMonoBase, portVGARangeLen, m.VGA)
	m.IO.AddPeripheral(portVGAColorBase, portVGARangeLen, m.VGA)
	m.IO.AddPeripheral(portVGAAttr, 1, m.VGA)
}

func readFile(path string) ([]byte, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	return data, len(data), nil
}

func (m *Machine) loadBIOS(path string) error {
	data, size, err := readFile(path)
	if err != nil {
		return fmt.Errorf("machine: load BIOS: %w", err)
	}
	base := uint32(membus.Size) - uint32(size)
	dst, ok := m.Mem.GetPointer(base, uint32(size))
	if !ok {
		return fmt.Errorf("machine: BIOS image of length %d overlaps a mapped peripheral", size)
	}
	copy(dst, data)
	return nil
}

func (m *Machine) loadExtensionROM(path string) error {
	data, size, err := readFile(path)
	if err != nil {
		return fmt.Errorf("machine: load extension ROM: %w", err)
	}
	dst, ok := m.Mem.GetPointer(extROMBase, uint32(size))
	if !ok {
		return fmt.Errorf("machine: extension ROM of length %d overlaps a mapped peripheral", size)
	}
	copy(dst, data)
	return nil
}

// Reset restores every peripheral and the CPU to power-on state.
func (m *Machine) Reset() {
	m.Mem.Reset()
	m.PIC.Reset()
	m.PIT.Reset()
	m.DMA.Reset()
	m.FDC.Reset()
	m.IDE.Reset()
	m.VGA.Reset()
	m.RTC.Reset()
	m.PPI.Reset()
	m.CPU.Reset()
	m.instrCount = 0
}

// Step executes exactly one CPU instruction plus one round of peripheral
// polling: keyboard input, the PIT channel-0 edge check, and a periodic
// VGA rasterize pass.
func (m *Machine) Step() {
	m.CPU.Step()
	m.Keyboard.Poll()
	if m.PIT.Tick() {
		m.PIC.AssertIRQ(pic.IRQTimer)
	}
	m.instrCount++
	if m.instrCount%FrameInterval == 0 {
		if err := m.VGA.RefreshFrame(); err != nil {
			log.Warn("VGA frame refresh failed", "error", err)
		}
	}
}

// Run drives Step in a loop until ctx is cancelled. There is no other
// suspension point: HLT does not idle the loop.
func (m *Machine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		m.Step()
	}
}

// Close releases any open disk images.
func (m *Machine) Close() error {
	var firstErr error
	if m.floppyImage != nil {
		if err := m.floppyImage.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if m.hddImage != nil {
		if err := m.hddImage.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// noKeyboard is the default KeyboardSource when none is supplied (headless,
// scripted, or test use).
type noKeyboard struct{}

func (noKeyboard) ReadScancode() (byte, bool) { return 0, false }

// ResetFlags re-exports alu.ResetFlags so callers that want to assert on
// freshly reset CPU state don't need to import internal/alu directly.
const ResetFlags = alu.ResetFlags
