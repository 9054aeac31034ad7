// Package backend provides the storage providers a vramblk device can
// be served from.
package backend

import (
	"fmt"
	"sync"

	"github.com/ehrlich-b/vramblk/internal/interfaces"
)

// Memory is a RAM-backed store. It stands in for device memory when no
// accelerator is present and doubles as the reference backend in tests.
type Memory struct {
	data []byte
	size int64
	mu   sync.RWMutex
}

// NewMemory creates a memory backend of the specified size
func NewMemory(size int64) *Memory {
	return &Memory{
		data: make([]byte, size),
		size: size,
	}
}

// ReadAt implements the Backend interface
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.data == nil {
		return 0, fmt.Errorf("backend closed")
	}
	if off < 0 || off >= m.size {
		return 0, fmt.Errorf("read offset %d out of range", off)
	}

	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	n := copy(p, m.data[off:off+int64(len(p))])
	return n, nil
}

// WriteAt implements the Backend interface
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data == nil {
		return 0, fmt.Errorf("backend closed")
	}
	if off < 0 || off >= m.size {
		return 0, fmt.Errorf("write offset %d out of range", off)
	}

	available := m.size - off
	if int64(len(p)) > available {
		return 0, fmt.Errorf("write of %d bytes at %d past end of device", len(p), off)
	}

	n := copy(m.data[off:off+int64(len(p))], p)
	return n, nil
}

// Size implements the Backend interface
func (m *Memory) Size() int64 {
	return m.size
}

// Close releases the buffer. Further I/O fails.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = nil
	return nil
}

var _ interfaces.Backend = (*Memory)(nil)
