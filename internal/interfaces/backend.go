// Package interfaces defines the storage contract shared by the NBD and
// ublk frontends.
package interfaces

// Backend is the capability every frontend speaks: a fixed-size,
// byte-addressable store. The interface is intentionally shaped like
// io.ReaderAt and io.WriterAt for familiarity and composability.
//
// Range clamping is the caller's responsibility: frontends bound every
// request to [0, Size()) before touching the backend, so implementations
// may assume offsets and lengths are already in range. Implementations
// must be safe for concurrent use across goroutines for non-overlapping
// ranges; any stronger guarantee (atomicity of overlapping accesses) is
// up to the concrete backend.
type Backend interface {
	// ReadAt reads len(p) bytes into p starting at offset off and returns
	// the number of bytes read. A fault in the underlying medium is
	// reported as an error, never a panic.
	ReadAt(p []byte, off int64) (n int, err error)

	// WriteAt writes len(p) bytes from p at offset off and returns the
	// number of bytes written. WriteAt must return a non-nil error if it
	// returns n < len(p).
	WriteAt(p []byte, off int64) (n int, err error)

	// Size returns the total byte length of the backend. The value is
	// fixed for the backend's lifetime.
	Size() int64
}
