// Package uring submits ublk URING_CMD operations over io_uring. The
// ublk driver speaks only URING_CMD with 128-byte SQEs and 32-byte
// CQEs, so this is a deliberately narrow wrapper rather than a general
// io_uring binding.
package uring

import (
	"github.com/ehrlich-b/vramblk/internal/ublk/uapi"
)

// Completion is one CQE.
type Completion struct {
	UserData uint64
	Res      int32
}

// Ring submits URING_CMDs against a single target file descriptor
// (/dev/ublk-control for the control plane, /dev/ublkcN for a queue).
type Ring interface {
	// Close tears the ring down and unmaps its rings.
	Close() error

	// SubmitCtrlCmd submits a control command and blocks for its CQE,
	// returning the CQE result (>= 0 on success, -errno on failure).
	SubmitCtrlCmd(cmdOp uint32, cmd *uapi.CtrlCmd, userData uint64) (int32, error)

	// SubmitIOCmd queues and submits an I/O command without waiting.
	// FETCH completions arrive later, when the kernel has a request.
	SubmitIOCmd(cmdOp uint32, cmd *uapi.IOCmd, userData uint64) error

	// WaitCompletions blocks until at least one CQE is available, then
	// drains up to len(out) completions and returns the count.
	WaitCompletions(out []Completion) (int, error)
}

// Config describes the ring to create.
type Config struct {
	// Entries is the SQ depth; the CQ is sized at twice this.
	Entries uint32

	// FD is the target device descriptor for every URING_CMD on this
	// ring.
	FD int32
}

// NewRing creates a Ring. Builds tagged giouring use the
// iceber/iouring-go implementation; the default is the raw syscall
// ring.
func NewRing(config Config) (Ring, error) {
	if r, ok, err := newLibraryRing(config); ok {
		return r, err
	}
	return newSyscallRing(config)
}
