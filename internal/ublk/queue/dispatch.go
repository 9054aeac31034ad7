package queue

import (
	"math"
	"syscall"

	"github.com/ehrlich-b/vramblk/internal/interfaces"
	"github.com/ehrlich-b/vramblk/internal/metrics"
	"github.com/ehrlich-b/vramblk/internal/ublk/uapi"
)

// sectorShift converts kernel sectors (always 512 bytes) to byte
// offsets.
const sectorShift = 9

// bound validates and clamps a request range. It returns the usable
// byte length and false when the starting offset is outside the device
// entirely; a start exactly at capacity is out of range even for a
// zero-length request.
func bound(offset int64, length int, capacity int64, maxIOBuf int) (int, bool) {
	if offset < 0 || offset >= capacity {
		return 0, false
	}
	if remaining := capacity - offset; int64(length) > remaining {
		length = int(remaining)
	}
	if length > maxIOBuf {
		length = maxIOBuf
	}
	return length, true
}

// dispatch executes one kernel request against the backend, using buf
// as the data buffer for the tag, and returns the ublk commit result:
// bytes transferred on success, -errno on failure.
func dispatch(b interfaces.Backend, m *metrics.Metrics, desc *uapi.IODesc, buf []byte) int32 {
	op := desc.Op()

	switch op {
	case uapi.UBLK_IO_OP_FLUSH:
		// Backends persist writes synchronously; acknowledge.
		m.RecordFlush()
		return 0

	case uapi.UBLK_IO_OP_READ, uapi.UBLK_IO_OP_WRITE:
		// fall through below

	default:
		// DISCARD, WRITE_ZEROES, WRITE_SAME, and anything newer. The
		// device advertises none of these; reject rather than emulate.
		m.RecordError()
		return -int32(syscall.EOPNOTSUPP)
	}

	if desc.StartSector > math.MaxInt64>>sectorShift {
		m.RecordError()
		return -int32(syscall.EINVAL)
	}
	offset := int64(desc.StartSector) << sectorShift
	length := int(desc.NrSectors) << sectorShift

	n, ok := bound(offset, length, b.Size(), len(buf))
	if !ok {
		m.RecordError()
		return -int32(syscall.EINVAL)
	}

	switch op {
	case uapi.UBLK_IO_OP_READ:
		read, err := b.ReadAt(buf[:n], offset)
		if err != nil || read != n {
			m.RecordError()
			return -int32(syscall.EIO)
		}
		m.RecordRead(read)
		return int32(read)

	default: // UBLK_IO_OP_WRITE
		written, err := b.WriteAt(buf[:n], offset)
		if err != nil || written != n {
			m.RecordError()
			return -int32(syscall.EIO)
		}
		m.RecordWrite(written)
		return int32(written)
	}
}
