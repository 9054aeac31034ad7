package uring

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/vramblk/internal/ublk/uapi"
)

// io_uring ABI pieces, from include/uapi/linux/io_uring.h. Only what
// URING_CMD needs.
const (
	ioringSetupSQE128 = 1 << 10
	ioringSetupCQE32  = 1 << 11

	ioringEnterGetevents = 1 << 0

	ioringOffSQRing = 0x0
	ioringOffCQRing = 0x8000000
	ioringOffSQEs   = 0x10000000

	sqeSize128 = 128
	cqeSize32  = 32

	// URING_CMD SQE field offsets
	sqeOffOpcode   = 0
	sqeOffFd       = 4
	sqeOffCmdOp    = 8 // shares the off field
	sqeOffUserData = 32
	sqeOffCmd      = 48 // 80 bytes of cmd area in a 128-byte SQE
)

// ioSQRingOffsets is struct io_sqring_offsets.
type ioSQRingOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	flags       uint32
	dropped     uint32
	array       uint32
	resv1       uint32
	userAddr    uint64
}

// ioCQRingOffsets is struct io_cqring_offsets.
type ioCQRingOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	overflow    uint32
	cqes        uint32
	flags       uint32
	resv1       uint32
	userAddr    uint64
}

// ioUringParams is struct io_uring_params.
type ioUringParams struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCPU  uint32
	sqThreadIdle uint32
	features     uint32
	wqFd         uint32
	resv         [3]uint32
	sqOff        ioSQRingOffsets
	cqOff        ioCQRingOffsets
}

// syscallRing is a from-scratch SQE128/CQE32 ring speaking directly to
// the kernel. One ring per target fd; submission is serialized.
type syscallRing struct {
	fd       int
	targetFd int32
	params   ioUringParams

	sqRing []byte
	cqRing []byte
	sqes   []byte

	sqHead  *uint32
	sqTail  *uint32
	sqMask  uint32
	sqArray unsafe.Pointer

	cqHead *uint32
	cqTail *uint32
	cqMask uint32
	cqes   unsafe.Pointer

	mu     sync.Mutex
	closed bool
}

var errRingClosed = fmt.Errorf("ring closed")

func newSyscallRing(config Config) (Ring, error) {
	if config.Entries == 0 || config.Entries&(config.Entries-1) != 0 {
		return nil, fmt.Errorf("ring entries %d not a power of two", config.Entries)
	}

	params := ioUringParams{
		flags: ioringSetupSQE128 | ioringSetupCQE32,
	}
	fd, _, errno := unix.Syscall(unix.SYS_IO_URING_SETUP,
		uintptr(config.Entries),
		uintptr(unsafe.Pointer(&params)),
		0)
	if errno != 0 {
		return nil, fmt.Errorf("io_uring_setup: %w", errno)
	}

	r := &syscallRing{
		fd:       int(fd),
		targetFd: config.FD,
		params:   params,
	}
	if err := r.mapRings(); err != nil {
		unix.Close(r.fd)
		return nil, err
	}
	return r, nil
}

func (r *syscallRing) mapRings() error {
	sqSize := int(r.params.sqOff.array + r.params.sqEntries*4)
	sqRing, err := unix.Mmap(r.fd, ioringOffSQRing, sqSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		return fmt.Errorf("mmap sq ring: %w", err)
	}

	cqSize := int(r.params.cqOff.cqes + r.params.cqEntries*cqeSize32)
	cqRing, err := unix.Mmap(r.fd, ioringOffCQRing, cqSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Munmap(sqRing)
		return fmt.Errorf("mmap cq ring: %w", err)
	}

	sqes, err := unix.Mmap(r.fd, ioringOffSQEs, int(r.params.sqEntries*sqeSize128),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Munmap(sqRing)
		unix.Munmap(cqRing)
		return fmt.Errorf("mmap sqes: %w", err)
	}

	r.sqRing = sqRing
	r.cqRing = cqRing
	r.sqes = sqes

	sqBase := unsafe.Pointer(&sqRing[0])
	r.sqHead = (*uint32)(unsafe.Add(sqBase, r.params.sqOff.head))
	r.sqTail = (*uint32)(unsafe.Add(sqBase, r.params.sqOff.tail))
	r.sqMask = *(*uint32)(unsafe.Add(sqBase, r.params.sqOff.ringMask))
	r.sqArray = unsafe.Add(sqBase, r.params.sqOff.array)

	cqBase := unsafe.Pointer(&cqRing[0])
	r.cqHead = (*uint32)(unsafe.Add(cqBase, r.params.cqOff.head))
	r.cqTail = (*uint32)(unsafe.Add(cqBase, r.params.cqOff.tail))
	r.cqMask = *(*uint32)(unsafe.Add(cqBase, r.params.cqOff.ringMask))
	r.cqes = unsafe.Add(cqBase, r.params.cqOff.cqes)
	return nil
}

// Close unmaps the rings. The closed flag is set under r.mu, so a
// concurrent WaitCompletions either reaps before the unmap or observes
// the flag and backs off without touching the mappings.
func (r *syscallRing) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if r.sqes != nil {
		unix.Munmap(r.sqes)
		r.sqes = nil
	}
	if r.cqRing != nil {
		unix.Munmap(r.cqRing)
		r.cqRing = nil
	}
	if r.sqRing != nil {
		unix.Munmap(r.sqRing)
		r.sqRing = nil
	}
	if r.fd >= 0 {
		err := unix.Close(r.fd)
		r.fd = -1
		return err
	}
	return nil
}

// push writes one URING_CMD SQE and advances the tail. Caller holds
// r.mu.
func (r *syscallRing) push(cmdOp uint32, cmdArea []byte, userData uint64) error {
	if r.closed {
		return errRingClosed
	}
	head := atomic.LoadUint32(r.sqHead)
	tail := *r.sqTail
	if tail-head >= r.params.sqEntries {
		return fmt.Errorf("submission queue full")
	}

	idx := tail & r.sqMask
	sqe := r.sqes[idx*sqeSize128 : (idx+1)*sqeSize128]
	for i := range sqe {
		sqe[i] = 0
	}

	sqe[sqeOffOpcode] = ioringOpUringCmd()
	*(*int32)(unsafe.Pointer(&sqe[sqeOffFd])) = r.targetFd
	*(*uint32)(unsafe.Pointer(&sqe[sqeOffCmdOp])) = cmdOp
	*(*uint64)(unsafe.Pointer(&sqe[sqeOffUserData])) = userData
	copy(sqe[sqeOffCmd:], cmdArea)

	*(*uint32)(unsafe.Add(r.sqArray, uintptr(4*idx))) = idx

	// Publish the SQE before the kernel sees the new tail.
	atomic.StoreUint32(r.sqTail, tail+1)
	return nil
}

// enter assumes the caller holds r.mu. enterFd takes a snapshot of the
// ring fd so WaitCompletions can block outside the lock without racing
// a concurrent Close reusing the descriptor number.
func (r *syscallRing) enter(toSubmit, minComplete, flags uint32) (uint32, error) {
	return r.enterFd(r.fd, toSubmit, minComplete, flags)
}

func (r *syscallRing) enterFd(fd int, toSubmit, minComplete, flags uint32) (uint32, error) {
	n, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER,
		uintptr(fd),
		uintptr(toSubmit),
		uintptr(minComplete),
		uintptr(flags),
		0, 0)
	if errno != 0 {
		return 0, fmt.Errorf("io_uring_enter: %w", errno)
	}
	return uint32(n), nil
}

// reap drains up to len(out) available CQEs without blocking. Caller
// holds r.mu.
func (r *syscallRing) reap(out []Completion) int {
	if r.closed {
		return 0
	}
	n := 0
	head := *r.cqHead
	for n < len(out) {
		tail := atomic.LoadUint32(r.cqTail)
		if head == tail {
			break
		}
		idx := head & r.cqMask
		cqe := unsafe.Add(r.cqes, uintptr(idx)*cqeSize32)
		out[n] = Completion{
			UserData: *(*uint64)(cqe),
			Res:      *(*int32)(unsafe.Add(cqe, 8)),
		}
		n++
		head++
	}
	if n > 0 {
		atomic.StoreUint32(r.cqHead, head)
	}
	return n
}

func (r *syscallRing) SubmitCtrlCmd(cmdOp uint32, cmd *uapi.CtrlCmd, userData uint64) (int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The kernel reads the struct behind Addr during the syscall; keep
	// the marshaled bytes alive until the CQE arrives.
	if err := r.push(cmdOp, cmd.Marshal(), userData); err != nil {
		return 0, err
	}
	if _, err := r.enter(1, 1, ioringEnterGetevents); err != nil {
		return 0, err
	}

	var out [1]Completion
	for r.reap(out[:]) == 0 {
		if _, err := r.enter(0, 1, ioringEnterGetevents); err != nil {
			return 0, err
		}
	}
	if out[0].UserData != userData {
		return 0, fmt.Errorf("control completion mismatch: got user data %#x, want %#x",
			out[0].UserData, userData)
	}
	return out[0].Res, nil
}

func (r *syscallRing) SubmitIOCmd(cmdOp uint32, cmd *uapi.IOCmd, userData uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.push(cmdOp, cmd.Marshal(), userData); err != nil {
		return err
	}
	_, err := r.enter(1, 0, 0)
	return err
}

func (r *syscallRing) WaitCompletions(out []Completion) (int, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return 0, errRingClosed
		}
		n := r.reap(out)
		fd := r.fd
		r.mu.Unlock()
		if n > 0 {
			return n, nil
		}
		if _, err := r.enterFd(fd, 0, 1, ioringEnterGetevents); err != nil {
			return 0, err
		}
	}
}
