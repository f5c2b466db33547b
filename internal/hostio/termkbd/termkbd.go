// Package termkbd implements a hostio.KeyboardSource backed by a raw
// terminal: stdin is put into raw, non-blocking mode and each byte read is
// translated to an IBM PC scancode-set-1 byte. Delivery is a lock-free
// single-slot mailbox, so the reader goroutine never blocks the
// instruction loop.
package termkbd

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/term"

	"pcxt/internal/logx"
)

var log = logx.For("termkbd")

// asciiToScancode maps lowercase letters, digits, space, and the Enter,
// Backspace and Escape bytes to their PC scancode-set-1 make codes. Other
// bytes (uppercase, punctuation, other control bytes) have no mapping and
// extended keys are not modeled; this keyboard exists to drive simple
// text-mode software, not to be a full PS/2 emulation.
var asciiToScancode = map[byte]byte{
	'\n': 0x1C, '\r': 0x1C, 0x08: 0x0E, 0x1B: 0x01, ' ': 0x39,
	'a': 0x1E, 'b': 0x30, 'c': 0x2E, 'd': 0x20, 'e': 0x12, 'f': 0x21,
	'g': 0x22, 'h': 0x23, 'i': 0x17, 'j': 0x24, 'k': 0x25, 'l': 0x26,
	'm': 0x32, 'n': 0x31, 'o': 0x18, 'p': 0x19, 'q': 0x10, 'r': 0x13,
	's': 0x1F, 't': 0x14, 'u': 0x16, 'v': 0x2F, 'w': 0x11, 'x': 0x2D,
	'y': 0x15, 'z': 0x2C,
	'0': 0x0B, '1': 0x02, '2': 0x03, '3': 0x04, '4': 0x05, '5': 0x06,
	'6': 0x07, '7': 0x08, '8': 0x09, '9': 0x0A,
}

// Source is a hostio.KeyboardSource reading raw stdin.
type Source struct {
	fd           int
	oldTermState *term.State
	nonblockSet  bool

	stopCh  chan struct{}
	done    chan struct{}
	stopped sync.Once

	pending atomic.Uint32 // holds scancode+1, 0 means empty
}

// Open puts stdin into raw, non-blocking mode and starts the reader
// goroutine. Callers must Close when done to restore terminal state.
func Open() (*Source, error) {
	s := &Source{
		fd:     int(os.Stdin.Fd()),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	oldState, err := term.MakeRaw(s.fd)
	if err != nil {
		return nil, fmt.Errorf("termkbd: set raw mode: %w", err)
	}
	s.oldTermState = oldState

	if err := syscall.SetNonblock(s.fd, true); err != nil {
		_ = term.Restore(s.fd, s.oldTermState)
		return nil, fmt.Errorf("termkbd: set nonblocking stdin: %w", err)
	}
	s.nonblockSet = true

	go s.run()
	return s, nil
}

func (s *Source) run() {
	defer close(s.done)
	buf := make([]byte, 1)
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		n, err := syscall.Read(s.fd, buf)
		if n > 0 {
			if code, ok := asciiToScancode[buf[0]]; ok {
				s.pending.Store(uint32(code) + 1)
			} else {
				log.Debug("no scancode mapping for byte", "byte", buf[0])
			}
		}
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if err != nil {
			return
		}
		if n == 0 {
			time.Sleep(5 * time.Millisecond)
		}
	}
}

// ReadScancode returns the most recently translated scancode, if any has
// arrived since the last call.
func (s *Source) ReadScancode() (byte, bool) {
	v := s.pending.Swap(0)
	if v == 0 {
		return 0, false
	}
	return byte(v - 1), true
}

// Close stops the reader goroutine and restores the terminal.
func (s *Source) Close() error {
	s.stopped.Do(func() { close(s.stopCh) })
	<-s.done
	if s.nonblockSet {
		_ = syscall.SetNonblock(s.fd, false)
	}
	if s.oldTermState != nil {
		return term.Restore(s.fd, s.oldTermState)
	}
	return nil
}
