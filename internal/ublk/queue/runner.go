// Package queue runs the per-queue ublk data plane: fetching requests
// from the kernel, executing them against the backend, and committing
// results.
package queue

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/ehrlich-b/vramblk/internal/constants"
	"github.com/ehrlich-b/vramblk/internal/interfaces"
	"github.com/ehrlich-b/vramblk/internal/logging"
	"github.com/ehrlich-b/vramblk/internal/metrics"
	"github.com/ehrlich-b/vramblk/internal/ublk/uapi"
	"github.com/ehrlich-b/vramblk/internal/ublk/uring"
)

// tagState tracks who owns a tag in the fetch/commit cycle.
type tagState int

const (
	tagInFlightFetch  tagState = iota // kernel owns, FETCH_REQ pending
	tagOwned                          // we own, descriptor readable
	tagInFlightCommit                 // kernel owns, COMMIT_AND_FETCH pending
)

// User data encoding for CQEs: bit 63 marks a commit completion, the
// queue ID sits above the tag.
const (
	udOpCommit uint64 = 1 << 63
	udQIDShift        = 16
	udTagMask         = 0xFFFF
)

// Config describes one queue runner.
type Config struct {
	DevID   uint32
	QueueID uint16
	Depth   int
	Backend interfaces.Backend
	Logger  *logging.Logger
	Metrics *metrics.Metrics
}

// Runner services a single ublk queue. The kernel requires all queue
// commands to come from one thread, so the I/O loop pins itself.
type Runner struct {
	devID   uint32
	queueID uint16
	depth   int
	backend interfaces.Backend
	metrics *metrics.Metrics
	log     *logging.Logger

	charFd  int
	ring    uring.Ring
	descPtr uintptr // mmap'd read-only descriptor array
	descLen int
	bufPtr  uintptr // anonymous per-tag I/O buffers
	bufLen  int

	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	closed  bool
	done    chan struct{}

	tagStates []tagState
	tagMu     []sync.Mutex
}

// NewRunner opens the queue's character device, sets up its ring, and
// maps the descriptor array. The char device may lag ADD_DEV while
// udev catches up, so the open retries briefly.
func NewRunner(ctx context.Context, config Config) (*Runner, error) {
	log := config.Logger
	if log == nil {
		log = logging.Default()
	}
	log = log.WithDevice(int(config.DevID)).WithQueue(int(config.QueueID))

	charPath := uapi.CharDevPath(config.DevID)
	fd, err := openWithRetry(charPath)
	if err != nil {
		return nil, err
	}

	ring, err := uring.NewRing(uring.Config{
		Entries: ringEntries(config.Depth),
		FD:      int32(fd),
	})
	if err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("queue ring: %w", err)
	}

	descPtr, descLen, bufPtr, bufLen, err := mmapQueue(fd, config.QueueID, config.Depth)
	if err != nil {
		ring.Close()
		syscall.Close(fd)
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Runner{
		devID:     config.DevID,
		queueID:   config.QueueID,
		depth:     config.Depth,
		backend:   config.Backend,
		metrics:   config.Metrics,
		log:       log,
		charFd:    fd,
		ring:      ring,
		descPtr:   descPtr,
		descLen:   descLen,
		bufPtr:    bufPtr,
		bufLen:    bufLen,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		tagStates: make([]tagState, config.Depth),
		tagMu:     make([]sync.Mutex, config.Depth),
	}, nil
}

// openWithRetry waits out the window between ADD_DEV and the char
// device node appearing.
func openWithRetry(path string) (int, error) {
	const maxRetries = 50
	var err error
	for i := 0; i < maxRetries; i++ {
		var fd int
		fd, err = syscall.Open(path, syscall.O_RDWR, 0)
		if err == nil {
			return fd, nil
		}
		if err != syscall.ENOENT {
			return -1, fmt.Errorf("open %s: %w", path, err)
		}
		time.Sleep(constants.DevicePollingInterval)
	}
	return -1, fmt.Errorf("%s did not appear: %w", path, err)
}

// ringEntries rounds the queue depth up to a power of two for the SQ.
func ringEntries(depth int) uint32 {
	n := uint32(1)
	for n < uint32(depth) {
		n <<= 1
	}
	return n
}

// Start primes the queue with FETCH_REQs and launches the I/O loop.
func (r *Runner) Start() error {
	if err := r.Prime(); err != nil {
		return fmt.Errorf("prime queue %d: %w", r.queueID, err)
	}
	r.started = true
	go r.ioLoop()
	return nil
}

// Prime submits the initial FETCH_REQ for every tag. Must run exactly
// once, before START_DEV.
func (r *Runner) Prime() error {
	for tag := 0; tag < r.depth; tag++ {
		if err := r.submitFetch(uint16(tag)); err != nil {
			return fmt.Errorf("FETCH_REQ tag %d: %w", tag, err)
		}
		r.tagStates[tag] = tagInFlightFetch
	}
	r.log.Debug("queue primed", "depth", r.depth)
	return nil
}

// Close stops the loop and releases the ring, mappings, and fd. Safe
// to call more than once.
func (r *Runner) Close() error {
	r.cancel()

	if !r.closed {
		r.closed = true
		// Closing the ring unblocks the I/O loop's wait; submissions
		// after this fail instead of blocking.
		r.ring.Close()
		if r.started {
			<-r.done
			r.started = false
		}
	}
	if r.descPtr != 0 {
		syscall.Syscall(syscall.SYS_MUNMAP, r.descPtr, uintptr(r.descLen), 0)
		r.descPtr = 0
	}
	if r.bufPtr != 0 {
		syscall.Syscall(syscall.SYS_MUNMAP, r.bufPtr, uintptr(r.bufLen), 0)
		r.bufPtr = 0
	}
	if r.charFd >= 0 {
		syscall.Close(r.charFd)
		r.charFd = -1
	}
	return nil
}

// ioLoop drains completions until cancellation. Pinned to an OS thread
// because ublk_drv records the submitting thread per queue.
func (r *Runner) ioLoop() {
	defer close(r.done)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r.log.Debug("I/O loop running")

	// Closing the ring is what wakes a blocked wait; the wait then
	// fails with a closed-ring error and the loop exits.
	ring := r.ring

	completions := make([]uring.Completion, r.depth)
	for {
		select {
		case <-r.ctx.Done():
			r.log.Debug("I/O loop stopping")
			return
		default:
		}

		n, err := ring.WaitCompletions(completions)
		if err != nil {
			if r.ctx.Err() == nil {
				r.log.Error("completion wait failed", "error", err.Error())
			}
			return
		}

		for _, c := range completions[:n] {
			tag := uint16(c.UserData & udTagMask)
			isCommit := c.UserData&udOpCommit != 0
			if int(tag) >= r.depth {
				r.log.Warn("completion for invalid tag", "tag", tag)
				continue
			}
			if err := r.handleCompletion(tag, isCommit, c.Res); err != nil {
				if r.ctx.Err() == nil {
					r.log.Error("completion handling failed", "tag", tag, "error", err.Error())
				}
				return
			}
		}
	}
}

// handleCompletion advances the tag state machine for one CQE.
func (r *Runner) handleCompletion(tag uint16, isCommit bool, res int32) error {
	r.tagMu[tag].Lock()
	defer r.tagMu[tag].Unlock()

	state := r.tagStates[tag]
	switch state {
	case tagInFlightFetch, tagInFlightCommit:
		switch {
		case res == uapi.UBLK_IO_RES_OK:
			// A request is ready in the descriptor slot.
			r.tagStates[tag] = tagOwned
			return r.serveTag(tag)
		case res == uapi.UBLK_IO_RES_ABORT || res < 0:
			// Device stopping; leave the tag parked.
			r.tagStates[tag] = tagOwned
			return fmt.Errorf("tag %d aborted by kernel (res=%d)", tag, res)
		default:
			return fmt.Errorf("tag %d unexpected completion result %d", tag, res)
		}

	case tagOwned:
		return fmt.Errorf("tag %d completion while owned (commit=%v)", tag, isCommit)

	default:
		return fmt.Errorf("tag %d in invalid state %d", tag, state)
	}
}

// serveTag reads the descriptor, runs the request, and commits the
// result. Caller holds the tag mutex.
func (r *Runner) serveTag(tag uint16) error {
	desc, err := r.readDesc(tag)
	if err != nil {
		return err
	}

	// Keep-alive completions carry an empty descriptor.
	if desc.OpFlags == 0 && desc.NrSectors == 0 {
		return r.submitCommit(tag, 0)
	}

	buf, err := r.tagBuffer(tag)
	if err != nil {
		return err
	}
	result := dispatch(r.backend, r.metrics, &desc, buf)
	return r.submitCommit(tag, result)
}

// readDesc copies the shared-memory descriptor for a tag.
func (r *Runner) readDesc(tag uint16) (uapi.IODesc, error) {
	off := int(tag) * uapi.IODescSize
	if off+uapi.IODescSize > r.descLen {
		return uapi.IODesc{}, fmt.Errorf("descriptor for tag %d outside mapping", tag)
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(r.descPtr)), r.descLen)

	var desc uapi.IODesc
	err := uapi.UnmarshalIODesc(raw[off:off+uapi.IODescSize], &desc)
	return desc, err
}

// tagBuffer returns the 64KB data buffer slice for a tag.
func (r *Runner) tagBuffer(tag uint16) ([]byte, error) {
	off := int(tag) * constants.IOBufferSizePerTag
	if off+constants.IOBufferSizePerTag > r.bufLen {
		return nil, fmt.Errorf("buffer for tag %d outside allocation", tag)
	}
	base := unsafe.Slice((*byte)(unsafe.Pointer(r.bufPtr)), r.bufLen)
	return base[off : off+constants.IOBufferSizePerTag], nil
}

func (r *Runner) tagBufferAddr(tag uint16) uint64 {
	return uint64(r.bufPtr) + uint64(int(tag)*constants.IOBufferSizePerTag)
}

// submitFetch issues the initial FETCH_REQ for a tag.
func (r *Runner) submitFetch(tag uint16) error {
	cmd := &uapi.IOCmd{
		QID:  r.queueID,
		Tag:  tag,
		Addr: r.tagBufferAddr(tag),
	}
	userData := uint64(r.queueID)<<udQIDShift | uint64(tag)
	return r.ring.SubmitIOCmd(uapi.UblkIOCmd(uapi.UBLK_IO_FETCH_REQ), cmd, userData)
}

// submitCommit commits a result and re-arms the tag. Caller holds the
// tag mutex and the tag must be owned.
func (r *Runner) submitCommit(tag uint16, result int32) error {
	if r.tagStates[tag] != tagOwned {
		return fmt.Errorf("commit for tag %d in state %d", tag, r.tagStates[tag])
	}

	cmd := &uapi.IOCmd{
		QID:    r.queueID,
		Tag:    tag,
		Result: result,
		Addr:   r.tagBufferAddr(tag),
	}
	userData := udOpCommit | uint64(r.queueID)<<udQIDShift | uint64(tag)
	op := uapi.UblkIOCmd(uapi.UBLK_IO_COMMIT_AND_FETCH_REQ)
	if err := r.ring.SubmitIOCmd(op, cmd, userData); err != nil {
		return fmt.Errorf("COMMIT_AND_FETCH tag %d: %w", tag, err)
	}
	r.tagStates[tag] = tagInFlightCommit
	return nil
}

// mmapQueue maps the queue's descriptor array (read-only, kernel
// writes it) and allocates the per-tag I/O buffers from anonymous
// memory.
func mmapQueue(fd int, queueID uint16, depth int) (descPtr uintptr, descLen int, bufPtr uintptr, bufLen int, err error) {
	descLen = depth * uapi.IODescSize
	pageSize := syscall.Getpagesize()
	if rem := descLen % pageSize; rem != 0 {
		descLen += pageSize - rem
	}
	mmapOffset := uintptr(queueID) * uintptr(descLen)

	descPtr, _, errno := syscall.Syscall6(
		syscall.SYS_MMAP,
		0,
		uintptr(descLen),
		syscall.PROT_READ,
		syscall.MAP_SHARED|syscall.MAP_POPULATE,
		uintptr(fd),
		uapi.UBLKSRV_CMD_BUF_OFFSET+mmapOffset,
	)
	if errno != 0 {
		return 0, 0, 0, 0, fmt.Errorf("mmap descriptor array: %w", errno)
	}

	bufLen = depth * constants.IOBufferSizePerTag
	bufPtr, _, errno = syscall.Syscall6(
		syscall.SYS_MMAP,
		0,
		uintptr(bufLen),
		syscall.PROT_READ|syscall.PROT_WRITE,
		syscall.MAP_PRIVATE|syscall.MAP_ANONYMOUS,
		^uintptr(0),
		0,
	)
	if errno != 0 {
		syscall.Syscall(syscall.SYS_MUNMAP, descPtr, uintptr(descLen), 0)
		return 0, 0, 0, 0, fmt.Errorf("allocate I/O buffers: %w", errno)
	}

	return descPtr, descLen, bufPtr, bufLen, nil
}
