//go:build giouring

package uring

import (
	"fmt"

	"github.com/iceber/iouring-go"
	iouring_syscall "github.com/iceber/iouring-go/syscall"

	"github.com/ehrlich-b/vramblk/internal/ublk/uapi"
)

// libraryRing implements Ring on top of iceber/iouring-go. Selected
// with -tags giouring; the syscall ring is the default.
type libraryRing struct {
	ring        *iouring.IOURing
	config      Config
	completions chan Completion
	closed      chan struct{}
}

func newLibraryRing(config Config) (Ring, bool, error) {
	ring, err := iouring.New(uint(config.Entries),
		iouring.WithSQE128(), iouring.WithCQE32())
	if err != nil {
		return nil, true, fmt.Errorf("iouring new: %w", err)
	}
	return &libraryRing{
		ring:        ring,
		config:      config,
		completions: make(chan Completion, config.Entries*2),
		closed:      make(chan struct{}),
	}, true, nil
}

func (r *libraryRing) Close() error {
	select {
	case <-r.closed:
		return nil
	default:
	}
	close(r.closed)
	if r.ring != nil {
		return r.ring.Close()
	}
	return nil
}

func (r *libraryRing) prepCmd(cmdOp uint32, cmdArea any, userData uint64) iouring.PrepRequest {
	return func(sqe iouring_syscall.SubmissionQueueEntry, udata *iouring.UserData) {
		sqe.PrepOperation(
			iouring_syscall.IORING_OP_URING_CMD,
			r.config.FD,
			0, 0,
			uint64(cmdOp))
		sqe.SetUserData(userData)

		switch v := cmdArea.(type) {
		case *uapi.CtrlCmd:
			ptr := sqe.CMD(*v)
			*ptr.(*uapi.CtrlCmd) = *v
		case *uapi.IOCmd:
			ptr := sqe.CMD(*v)
			*ptr.(*uapi.IOCmd) = *v
		}
	}
}

func (r *libraryRing) SubmitCtrlCmd(cmdOp uint32, cmd *uapi.CtrlCmd, userData uint64) (int32, error) {
	ch := make(chan iouring.Result, 1)
	if _, err := r.ring.SubmitRequest(r.prepCmd(cmdOp, cmd, userData), ch); err != nil {
		return 0, fmt.Errorf("submit control command: %w", err)
	}
	result := <-ch
	// The library surfaces negative CQE results as errors; the ublk
	// control plane wants the raw -errno, so take the value either way.
	ret, _ := result.ReturnInt()
	return int32(ret), nil
}

func (r *libraryRing) SubmitIOCmd(cmdOp uint32, cmd *uapi.IOCmd, userData uint64) error {
	ch := make(chan iouring.Result, 1)
	if _, err := r.ring.SubmitRequest(r.prepCmd(cmdOp, cmd, userData), ch); err != nil {
		return fmt.Errorf("submit I/O command: %w", err)
	}

	go func() {
		result := <-ch
		ret, _ := result.ReturnInt()
		r.completions <- Completion{UserData: userData, Res: int32(ret)}
	}()
	return nil
}

func (r *libraryRing) WaitCompletions(out []Completion) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}
	select {
	case out[0] = <-r.completions:
	case <-r.closed:
		return 0, errRingClosed
	}
	n := 1
	for n < len(out) {
		select {
		case c := <-r.completions:
			out[n] = c
			n++
		default:
			return n, nil
		}
	}
	return n, nil
}
