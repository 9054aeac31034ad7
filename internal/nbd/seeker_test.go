package nbd

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/vramblk/backend"
)

func TestSeekerReadWrite(t *testing.T) {
	s := NewSeeker(backend.NewMemory(1024))

	n, err := s.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	pos, err := s.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)

	buf := make([]byte, 5)
	n, err = s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("hello"), buf)
}

func TestSeekerReadClampsAtEnd(t *testing.T) {
	s := NewSeeker(backend.NewMemory(100))

	_, err := s.Seek(90, io.SeekStart)
	require.NoError(t, err)

	// Read past end is clamped to the remaining 10 bytes.
	buf := make([]byte, 50)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	// At the end, reads hit EOF.
	n, err = s.Read(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSeekerWriteAtEnd(t *testing.T) {
	s := NewSeeker(backend.NewMemory(100))

	_, err := s.Seek(100, io.SeekStart)
	require.NoError(t, err)

	n, err := s.Write([]byte("x"))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ErrWritePastEnd)
}

func TestSeekerWriteClamped(t *testing.T) {
	s := NewSeeker(backend.NewMemory(100))

	_, err := s.Seek(95, io.SeekStart)
	require.NoError(t, err)

	n, err := s.Write(make([]byte, 10))
	assert.Equal(t, 5, n)
	assert.ErrorIs(t, err, ErrWritePastEnd)
}

func TestSeekerSeek(t *testing.T) {
	s := NewSeeker(backend.NewMemory(100))

	// Seeking past the end is allowed.
	pos, err := s.Seek(500, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(500), pos)

	// SeekEnd with negative offset.
	pos, err = s.Seek(-10, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(90), pos)

	// SeekCurrent.
	pos, err = s.Seek(5, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(95), pos)

	// Negative absolute position fails and leaves position unchanged.
	_, err = s.Seek(-1, io.SeekStart)
	assert.Error(t, err)
	pos, err = s.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(95), pos)

	// Invalid whence.
	_, err = s.Seek(0, 42)
	assert.Error(t, err)
}

func TestSeekerFlush(t *testing.T) {
	s := NewSeeker(backend.NewMemory(100))
	assert.NoError(t, s.Flush())
	assert.Equal(t, int64(100), s.Size())
}
