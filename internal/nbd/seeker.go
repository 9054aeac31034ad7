package nbd

import (
	"errors"
	"fmt"
	"io"

	"github.com/ehrlich-b/vramblk/internal/interfaces"
)

// ErrWritePastEnd is returned when a write starts at or beyond the end
// of the device. Reads at the end return io.EOF instead.
var ErrWritePastEnd = errors.New("write past end of device")

// Seeker adapts a Backend to io.ReadWriteSeeker so stream-oriented
// consumers can treat the device as a bounded file. Reads and writes
// clamp to the remaining capacity; position may be seeked past the end
// (subsequent reads hit EOF, writes fail).
type Seeker struct {
	b    interfaces.Backend
	pos  int64
	size int64
}

// NewSeeker wraps b with a stream cursor positioned at offset zero.
func NewSeeker(b interfaces.Backend) *Seeker {
	return &Seeker{b: b, size: b.Size()}
}

// Read reads up to len(p) bytes at the current position, advancing it.
// At or past the end of the device it returns (0, io.EOF).
func (s *Seeker) Read(p []byte) (int, error) {
	if s.pos >= s.size {
		return 0, io.EOF
	}
	remaining := s.size - s.pos
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := s.b.ReadAt(p, s.pos)
	s.pos += int64(n)
	return n, err
}

// Write writes len(p) bytes at the current position, advancing it.
// A write starting at or past the end fails with ErrWritePastEnd; a
// write extending past the end is clamped and reports the short count.
func (s *Seeker) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if s.pos >= s.size {
		return 0, ErrWritePastEnd
	}
	remaining := s.size - s.pos
	short := false
	if int64(len(p)) > remaining {
		p = p[:remaining]
		short = true
	}
	n, err := s.b.WriteAt(p, s.pos)
	s.pos += int64(n)
	if err == nil && short {
		err = ErrWritePastEnd
	}
	return n, err
}

// Seek sets the position. Seeking past the end is allowed; seeking to a
// negative position or overflowing int64 is not.
func (s *Seeker) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = s.pos
	case io.SeekEnd:
		base = s.size
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}

	pos := base + offset
	if offset > 0 && pos < base {
		return 0, fmt.Errorf("seek offset overflows")
	}
	if pos < 0 {
		return 0, fmt.Errorf("negative seek position %d", pos)
	}
	s.pos = pos
	return pos, nil
}

// Size returns the device capacity in bytes.
func (s *Seeker) Size() int64 {
	return s.size
}

// Flush is a no-op; the backends persist writes synchronously.
func (s *Seeker) Flush() error {
	return nil
}

var _ io.ReadWriteSeeker = (*Seeker)(nil)
