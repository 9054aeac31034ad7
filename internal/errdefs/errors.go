// Package errdefs defines the structured error type shared by the
// frontends and the control plane, with kernel errno mapping.
package errdefs

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// ErrorCode is a high-level failure category.
type ErrorCode string

const (
	ErrCodeDeviceNotFound    ErrorCode = "device not found"
	ErrCodeDeviceBusy        ErrorCode = "device busy"
	ErrCodeInvalidParameters ErrorCode = "invalid parameters"
	ErrCodeKernelUnsupported ErrorCode = "kernel does not support ublk"
	ErrCodePermissionDenied  ErrorCode = "permission denied"
	ErrCodeOutOfMemory       ErrorCode = "insufficient memory"
	ErrCodeIOError           ErrorCode = "I/O error"
	ErrCodeProtocol          ErrorCode = "protocol error"
)

// Error carries the failing operation, where it happened, and the
// kernel errno when one is known.
type Error struct {
	Op    string        // operation that failed ("ADD_DEV", "handshake", ...)
	Conn  string        // NBD client address, empty if not applicable
	Queue int           // ublk queue number, -1 if not applicable
	Code  ErrorCode     // failure category
	Errno syscall.Errno // kernel errno, 0 if not applicable
	Msg   string        // human-readable message
	Inner error         // wrapped error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, "op="+e.Op)
	}
	if e.Conn != "" {
		parts = append(parts, "conn="+e.Conn)
	}
	if e.Queue >= 0 {
		parts = append(parts, fmt.Sprintf("queue=%d", e.Queue))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", int(e.Errno)))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("vramblk: %s (%s)", msg, strings.Join(parts, " "))
	}
	return "vramblk: " + msg
}

// Unwrap supports errors.Is/As on the wrapped error.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is matches two structured errors by code.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	return ok && e.Code == te.Code
}

// NewError builds a structured error for an operation.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Queue: -1, Code: code, Msg: msg}
}

// WrapError attaches operation context to an error, mapping syscall
// errnos to categories. Returns nil when inner is nil.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	if ve := (*Error)(nil); errors.As(inner, &ve) {
		return &Error{
			Op:    op,
			Conn:  ve.Conn,
			Queue: ve.Queue,
			Code:  ve.Code,
			Errno: ve.Errno,
			Msg:   ve.Msg,
			Inner: inner,
		}
	}

	var errno syscall.Errno
	if errors.As(inner, &errno) {
		return &Error{
			Op:    op,
			Queue: -1,
			Code:  errnoCode(errno),
			Errno: errno,
			Msg:   errno.Error(),
			Inner: inner,
		}
	}

	return &Error{
		Op:    op,
		Queue: -1,
		Code:  ErrCodeIOError,
		Msg:   inner.Error(),
		Inner: inner,
	}
}

func errnoCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.ENOENT:
		return ErrCodeDeviceNotFound
	case syscall.EBUSY:
		return ErrCodeDeviceBusy
	case syscall.EINVAL, syscall.E2BIG:
		return ErrCodeInvalidParameters
	case syscall.ENOSYS, syscall.EOPNOTSUPP:
		return ErrCodeKernelUnsupported
	case syscall.EPERM, syscall.EACCES:
		return ErrCodePermissionDenied
	case syscall.ENOMEM, syscall.ENOSPC:
		return ErrCodeOutOfMemory
	default:
		return ErrCodeIOError
	}
}

// IsCode reports whether err carries the given category.
func IsCode(err error, code ErrorCode) bool {
	var ve *Error
	return errors.As(err, &ve) && ve.Code == code
}

// IsErrno reports whether err carries the given kernel errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var ve *Error
	return errors.As(err, &ve) && ve.Errno == errno
}
