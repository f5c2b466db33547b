// Command pcxtengine is the pcxt platform emulator's entry point: it parses
// BIOS/disk-image paths and a display mode from the command line, builds a
// Machine, and runs it until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pcxt/internal/hostio"
	"pcxt/internal/hostio/ebitenhost"
	"pcxt/internal/hostio/termkbd"
	"pcxt/internal/logx"
	"pcxt/internal/machine"
)

var (
	biosPath    string
	extROMPath  string
	floppyPath  string
	hddPath     string
	displayMode string
	dipSwitches uint8
)

func main() {
	root := &cobra.Command{
		Use:   "pcxtengine",
		Short: "An 8086/80186-class PC platform emulator",
		RunE:  run,
	}
	root.Flags().StringVar(&biosPath, "bios", "", "path to the BIOS ROM image (required)")
	root.Flags().StringVar(&extROMPath, "rom", "", "path to an optional extension ROM image, loaded at 0xE8000")
	root.Flags().StringVar(&floppyPath, "floppy", "", "path to a 1.44MB raw floppy image")
	root.Flags().StringVar(&hddPath, "hdd", "", "path to a raw hard-disk image")
	root.Flags().StringVar(&displayMode, "display", "gui", "display backend: gui or headless")
	root.Flags().Uint8Var(&dipSwitches, "dip", 0x0C, "PPI port C DIP-switch byte (machine configuration)")
	_ = root.MarkFlagRequired("bios")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pcxtengine:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := logx.For("cmd")

	var surface hostio.DisplaySurface
	var keyboard hostio.KeyboardSource

	switch displayMode {
	case "gui":
		s := ebitenhost.New()
		if err := s.Start(80, 25); err != nil {
			return fmt.Errorf("starting display surface: %w", err)
		}
		surface = s
		kbd, err := termkbd.Open()
		if err != nil {
			log.Warn("keyboard input unavailable", "error", err)
		} else {
			keyboard = kbd
			defer kbd.Close()
		}
	case "headless":
		surface = nil
	default:
		return fmt.Errorf("unknown --display mode %q (want gui or headless)", displayMode)
	}

	m, err := machine.New(machine.Config{
		BIOSPath:         biosPath,
		ExtensionROMPath: extROMPath,
		FloppyPath:       floppyPath,
		HardDiskPath:     hddPath,
		DipSwitches:      dipSwitches,
		Clock:            hostio.SystemClock{},
		Display:          surface,
		Keyboard:         keyboard,
	})
	if err != nil {
		return fmt.Errorf("building machine: %w", err)
	}
	defer m.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("pcxt starting", "bios", biosPath, "floppy", floppyPath, "hdd", hddPath, "display", displayMode)
	if err := m.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
