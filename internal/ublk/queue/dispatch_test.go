package queue

import (
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ehrlich-b/vramblk/backend"
	"github.com/ehrlich-b/vramblk/internal/metrics"
	"github.com/ehrlich-b/vramblk/internal/ublk/uapi"
)

func TestBound(t *testing.T) {
	tests := []struct {
		name     string
		offset   int64
		length   int
		capacity int64
		maxIO    int
		want     int
		ok       bool
	}{
		{"in range", 0, 4096, 1 << 20, 64 * 1024, 4096, true},
		{"clamped to remaining", 1<<20 - 512, 4096, 1 << 20, 64 * 1024, 512, true},
		{"clamped to buffer", 0, 1 << 20, 1 << 20, 64 * 1024, 64 * 1024, true},
		{"at capacity", 1 << 20, 512, 1 << 20, 64 * 1024, 0, false},
		{"at capacity zero length", 1 << 20, 0, 1 << 20, 64 * 1024, 0, false},
		{"past capacity", 2 << 20, 512, 1 << 20, 64 * 1024, 0, false},
		{"negative offset", -512, 512, 1 << 20, 64 * 1024, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := bound(tt.offset, tt.length, tt.capacity, tt.maxIO)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func desc(op uint8, startSector uint64, nrSectors uint32) *uapi.IODesc {
	return &uapi.IODesc{
		OpFlags:     uint32(op),
		StartSector: startSector,
		NrSectors:   nrSectors,
	}
}

func TestDispatchReadWrite(t *testing.T) {
	mem := backend.NewMemory(1 << 20)
	defer mem.Close()

	m := metrics.New()
	buf := make([]byte, 64*1024)

	// Write a pattern at sector 8.
	for i := 0; i < 4096; i++ {
		buf[i] = byte(i)
	}
	res := dispatch(mem, m, desc(uapi.UBLK_IO_OP_WRITE, 8, 8), buf)
	assert.Equal(t, int32(4096), res)

	// Read it back through a fresh buffer.
	rbuf := make([]byte, 64*1024)
	res = dispatch(mem, m, desc(uapi.UBLK_IO_OP_READ, 8, 8), rbuf)
	assert.Equal(t, int32(4096), res)
	assert.Equal(t, buf[:4096], rbuf[:4096])

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.Reads)
	assert.Equal(t, uint64(1), snap.Writes)
	assert.Equal(t, uint64(4096), snap.ReadBytes)
	assert.Equal(t, uint64(4096), snap.WriteBytes)
}

func TestDispatchFlush(t *testing.T) {
	mem := backend.NewMemory(1 << 20)
	defer mem.Close()

	m := metrics.New()
	res := dispatch(mem, m, desc(uapi.UBLK_IO_OP_FLUSH, 0, 0), nil)
	assert.Equal(t, int32(0), res)
	assert.Equal(t, uint64(1), m.Snapshot().Flushes)
}

func TestDispatchUnsupportedOps(t *testing.T) {
	mem := backend.NewMemory(1 << 20)
	defer mem.Close()

	m := metrics.New()
	buf := make([]byte, 64*1024)
	for _, op := range []uint8{
		uapi.UBLK_IO_OP_DISCARD,
		uapi.UBLK_IO_OP_WRITE_ZEROES,
		uapi.UBLK_IO_OP_WRITE_SAME,
		0x7f,
	} {
		res := dispatch(mem, m, desc(op, 0, 8), buf)
		assert.Equal(t, -int32(syscall.EOPNOTSUPP), res, "op %d", op)
	}
	assert.Equal(t, uint64(4), m.Snapshot().Errors)
}

// untouchable fails the test if any data path method runs.
type untouchable struct {
	t    *testing.T
	size int64
}

func (u *untouchable) ReadAt(p []byte, off int64) (int, error) {
	u.t.Fatalf("ReadAt(len=%d, off=%d) reached the backend", len(p), off)
	return 0, nil
}

func (u *untouchable) WriteAt(p []byte, off int64) (int, error) {
	u.t.Fatalf("WriteAt(len=%d, off=%d) reached the backend", len(p), off)
	return 0, nil
}

func (u *untouchable) Size() int64 { return u.size }

func TestDispatchOutOfRange(t *testing.T) {
	b := &untouchable{t: t, size: 1 << 20}
	m := metrics.New()
	buf := make([]byte, 64*1024)

	// Start exactly at capacity.
	res := dispatch(b, m, desc(uapi.UBLK_IO_OP_READ, (1<<20)>>9, 1), buf)
	assert.Equal(t, -int32(syscall.EINVAL), res)

	// Well past capacity.
	res = dispatch(b, m, desc(uapi.UBLK_IO_OP_WRITE, (4<<20)>>9, 8), buf)
	assert.Equal(t, -int32(syscall.EINVAL), res)

	// Sector count that would overflow a byte offset.
	res = dispatch(b, m, desc(uapi.UBLK_IO_OP_READ, 1<<62, 1), buf)
	assert.Equal(t, -int32(syscall.EINVAL), res)

	assert.Equal(t, uint64(3), m.Snapshot().Errors)
}

func TestDispatchClampsToCapacity(t *testing.T) {
	mem := backend.NewMemory(1 << 20)
	defer mem.Close()

	m := metrics.New()
	buf := make([]byte, 64*1024)

	// 8 sectors requested with only 2 left before the end.
	start := uint64((1<<20)>>9) - 2
	res := dispatch(mem, m, desc(uapi.UBLK_IO_OP_READ, start, 8), buf)
	assert.Equal(t, int32(1024), res)
}

// faulty errors on reads and returns short writes.
type faulty struct {
	size int64
}

func (f *faulty) ReadAt(p []byte, off int64) (int, error) {
	return 0, fmt.Errorf("backend fault")
}

func (f *faulty) WriteAt(p []byte, off int64) (int, error) {
	return len(p) / 2, nil // short write
}

func (f *faulty) Size() int64 { return f.size }

func TestDispatchBackendFaults(t *testing.T) {
	b := &faulty{size: 1 << 20}
	m := metrics.New()
	buf := make([]byte, 64*1024)

	res := dispatch(b, m, desc(uapi.UBLK_IO_OP_READ, 0, 8), buf)
	assert.Equal(t, -int32(syscall.EIO), res)

	res = dispatch(b, m, desc(uapi.UBLK_IO_OP_WRITE, 0, 8), buf)
	assert.Equal(t, -int32(syscall.EIO), res)

	assert.Equal(t, uint64(2), m.Snapshot().Errors)
}
