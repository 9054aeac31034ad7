// Package vramblk exposes a fixed-size memory region as a block
// device over two frontends at once: an NBD server for network
// clients and a ublk device for a local kernel block node.
package vramblk

import (
	"sync"

	"github.com/ehrlich-b/vramblk/internal/interfaces"
)

// Backend is the storage contract both frontends drive. Callers clamp
// requests to [0, Size()) before issuing them; implementations reject
// anything out of range.
type Backend = interfaces.Backend

// Shared serializes writers over a Backend so the NBD and ublk
// frontends can share one region. Reads run concurrently.
type Shared struct {
	b  Backend
	mu sync.RWMutex
}

// NewShared wraps b for concurrent use by multiple frontends.
func NewShared(b Backend) *Shared {
	return &Shared{b: b}
}

// ReadAt reads from the underlying backend under a shared lock.
func (s *Shared) ReadAt(p []byte, off int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.b.ReadAt(p, off)
}

// WriteAt writes to the underlying backend under an exclusive lock.
func (s *Shared) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.WriteAt(p, off)
}

// Size returns the capacity of the underlying backend.
func (s *Shared) Size() int64 {
	return s.b.Size()
}

var _ Backend = (*Shared)(nil)
