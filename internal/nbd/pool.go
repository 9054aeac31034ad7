package nbd

import "sync"

// Transmission payload buffers are size-bucketed (64KB through 1MB,
// powers of two) and pooled so steady-state reads and writes allocate
// nothing. Requests above the largest bucket fall back to a one-off
// allocation; maxRequestLength bounds those.
const (
	size64k  = 64 * 1024
	size128k = 128 * 1024
	size256k = 256 * 1024
	size512k = 512 * 1024
	size1m   = 1024 * 1024
)

// Pointer-to-slice pattern avoids the interface allocation on Put.
var payloadPool = struct {
	pool64k  sync.Pool
	pool128k sync.Pool
	pool256k sync.Pool
	pool512k sync.Pool
	pool1m   sync.Pool
}{
	pool64k:  sync.Pool{New: func() any { b := make([]byte, size64k); return &b }},
	pool128k: sync.Pool{New: func() any { b := make([]byte, size128k); return &b }},
	pool256k: sync.Pool{New: func() any { b := make([]byte, size256k); return &b }},
	pool512k: sync.Pool{New: func() any { b := make([]byte, size512k); return &b }},
	pool1m:   sync.Pool{New: func() any { b := make([]byte, size1m); return &b }},
}

// getBuffer returns a buffer of exactly the requested length, backed by
// a pooled allocation of at least that capacity. Callers must hand it
// back with putBuffer.
func getBuffer(size uint32) []byte {
	switch {
	case size <= size64k:
		return (*payloadPool.pool64k.Get().(*[]byte))[:size]
	case size <= size128k:
		return (*payloadPool.pool128k.Get().(*[]byte))[:size]
	case size <= size256k:
		return (*payloadPool.pool256k.Get().(*[]byte))[:size]
	case size <= size512k:
		return (*payloadPool.pool512k.Get().(*[]byte))[:size]
	case size <= size1m:
		return (*payloadPool.pool1m.Get().(*[]byte))[:size]
	default:
		return make([]byte, size)
	}
}

// putBuffer returns a buffer to its bucket. Non-standard capacities
// (the oversized fallback) are left to the garbage collector.
func putBuffer(buf []byte) {
	c := cap(buf)
	buf = buf[:c]
	switch c {
	case size64k:
		payloadPool.pool64k.Put(&buf)
	case size128k:
		payloadPool.pool128k.Put(&buf)
	case size256k:
		payloadPool.pool256k.Put(&buf)
	case size512k:
		payloadPool.pool512k.Put(&buf)
	case size1m:
		payloadPool.pool1m.Put(&buf)
	}
}
