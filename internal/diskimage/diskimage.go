// Package diskimage provides the raw byte-addressable disk-image backend
// consumed by internal/fdc and internal/ide: open an os.File and expose
// read/write/size by absolute byte offset. Images are plain sector dumps
// with no container format, so the file offset is the disk offset.
package diskimage

import (
	"fmt"
	"os"
)

// Image is an open disk-image file.
type Image struct {
	f    *os.File
	size int64
}

// Open opens path for read/write without truncating. The image is not
// created if missing; image files are provisioned out-of-band.
func Open(path string) (*Image, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("diskimage: open %q: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("diskimage: stat %q: %w", path, err)
	}
	return &Image{f: f, size: st.Size()}, nil
}

// ReadAt reads len(p) bytes starting at offset, matching io.ReaderAt.
func (img *Image) ReadAt(offset int64, p []byte) (int, error) {
	return img.f.ReadAt(p, offset)
}

// WriteAt writes len(p) bytes starting at offset, matching io.WriterAt.
func (img *Image) WriteAt(offset int64, p []byte) (int, error) {
	return img.f.WriteAt(p, offset)
}

// Size returns the image's byte length, used to derive IDE/FDC geometry
// limits at attach time.
func (img *Image) Size() int64 {
	return img.size
}

// Close releases the underlying file handle.
func (img *Image) Close() error {
	return img.f.Close()
}
