package backend

import (
	"fmt"
	"io"
	"os"

	"github.com/ehrlich-b/vramblk/internal/interfaces"
)

// File serves the device from a flat file on disk. The file is created
// and truncated to the requested size when it does not exist; an
// existing file must be at least size bytes long.
type File struct {
	f    *os.File
	size int64
}

// NewFile opens or creates path as a size-byte backing store.
func NewFile(path string, size int64) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("unable to open backing file: %w", err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to stat backing file: %w", err)
	}
	if st.Size() < size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("unable to size backing file: %w", err)
		}
	}

	return &File{f: f, size: size}, nil
}

// ReadAt implements the Backend interface
func (b *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= b.size {
		return 0, fmt.Errorf("read offset %d out of range", off)
	}
	if available := b.size - off; int64(len(p)) > available {
		p = p[:available]
	}

	n, err := b.f.ReadAt(p, off)
	if err == io.EOF && n == len(p) {
		err = nil
	}
	return n, err
}

// WriteAt implements the Backend interface
func (b *File) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= b.size {
		return 0, fmt.Errorf("write offset %d out of range", off)
	}
	if available := b.size - off; int64(len(p)) > available {
		return 0, fmt.Errorf("write of %d bytes at %d past end of device", len(p), off)
	}
	return b.f.WriteAt(p, off)
}

// Size implements the Backend interface
func (b *File) Size() int64 {
	return b.size
}

// Sync flushes written data to stable storage.
func (b *File) Sync() error {
	return b.f.Sync()
}

// Close closes the backing file.
func (b *File) Close() error {
	return b.f.Close()
}

var _ interfaces.Backend = (*File)(nil)
