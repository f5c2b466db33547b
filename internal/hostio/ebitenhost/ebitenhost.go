// Package ebitenhost implements a hostio.DisplaySurface that rasterizes the
// VGA text window to an ebiten window, using golang.org/x/image/font's
// basicfont for glyph rendering. The cell buffer is swapped under a mutex:
// UpdateText is called from the emulator's instruction loop while Draw runs
// on ebiten's render goroutine.
package ebitenhost

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"pcxt/internal/logx"
)

var log = logx.For("ebitenhost")

const (
	cellW = 8
	cellH = 16
)

// Surface is an ebiten-backed hostio.DisplaySurface.
type Surface struct {
	mu      sync.Mutex
	cols    int
	rows    int
	cells   []byte
	started chan struct{}
	once    sync.Once

	face font.Face
}

// New returns an unstarted surface; call Start to open the window.
func New() *Surface {
	return &Surface{
		face:    basicfont.Face7x13,
		started: make(chan struct{}, 1),
	}
}

// Start opens the ebiten window on a background goroutine and blocks until
// ebiten makes its first Draw call, so callers never race window creation.
func (s *Surface) Start(cols, rows int) error {
	s.cols, s.rows = cols, rows
	ebiten.SetWindowSize(cols*cellW*2, rows*cellH*2)
	ebiten.SetWindowTitle("pcxt")
	ebiten.SetWindowResizable(true)
	go func() {
		if err := ebiten.RunGame(s); err != nil {
			log.Error("ebiten run loop exited", "error", err)
		}
	}()
	<-s.started
	return nil
}

// UpdateText implements hostio.DisplaySurface: cells is row-major,
// (character, attribute) pairs, matching the B8000 text-window layout.
func (s *Surface) UpdateText(cols, rows int, cells []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cols != cols || s.rows != rows {
		return fmt.Errorf("ebitenhost: surface sized %dx%d, got %dx%d", s.cols, s.rows, cols, rows)
	}
	s.cells = append(s.cells[:0], cells...)
	return nil
}

// Close releases no resources beyond letting the ebiten goroutine exit
// when the process does; ebiten has no documented clean-shutdown API for
// RunGame short of returning an error from Update.
func (s *Surface) Close() error { return nil }

// Update implements ebiten.Game.
func (s *Surface) Update() error { return nil }

// Draw implements ebiten.Game, rasterizing each text cell as a glyph in
// its attribute-derived foreground color over a black fill; cell
// background colors are not drawn.
func (s *Surface) Draw(screen *ebiten.Image) {
	s.once.Do(func() { s.started <- struct{}{} })
	s.mu.Lock()
	cells := append([]byte(nil), s.cells...)
	cols, rows := s.cols, s.rows
	s.mu.Unlock()
	if len(cells) < cols*rows*2 {
		return
	}
	screen.Fill(color.Black)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			idx := (y*cols + x) * 2
			ch := cells[idx]
			attr := cells[idx+1]
			fg := cgaColor(attr & 0x0F)
			// Cell background (attr>>4&0x07) is not rasterized; only the
			// glyph foreground is drawn over the screen's black fill.
			drawCell(screen, x*cellW, y*cellH, ch, fg, s.face)
		}
	}
}

func drawCell(dst *ebiten.Image, px, py int, ch byte, fg color.Color, face font.Face) {
	dot := fixed.P(px, py+cellH-4)
	d := &font.Drawer{Dst: ebitenImageDrawTarget{dst}, Src: image.NewUniform(fg), Face: face, Dot: dot}
	d.DrawString(string(rune(ch)))
}

// ebitenImageDrawTarget adapts *ebiten.Image to draw.Image for font.Drawer.
type ebitenImageDrawTarget struct{ *ebiten.Image }

func (t ebitenImageDrawTarget) ColorModel() color.Model { return color.RGBAModel }
func (t ebitenImageDrawTarget) Bounds() image.Rectangle { return t.Image.Bounds() }
func (t ebitenImageDrawTarget) At(x, y int) color.Color { return t.Image.At(x, y) }
func (t ebitenImageDrawTarget) Set(x, y int, c color.Color) { t.Image.Set(x, y, c) }

// Layout implements ebiten.Game.
func (s *Surface) Layout(outsideWidth, outsideHeight int) (int, int) {
	return s.cols * cellW, s.rows * cellH
}

var cgaPalette = [8]color.RGBA{
	{0, 0, 0, 255}, {0, 0, 170, 255}, {0, 170, 0, 255}, {0, 170, 170, 255},
	{170, 0, 0, 255}, {170, 0, 170, 255}, {170, 85, 0, 255}, {170, 170, 170, 255},
}

func cgaColor(idx byte) color.RGBA {
	return cgaPalette[idx&0x07]
}
