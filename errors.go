package vramblk

import (
	"syscall"

	"github.com/ehrlich-b/vramblk/internal/errdefs"
)

// Error is the structured error produced by the frontends and the ublk
// control plane. It carries the failing operation and, when one is
// known, the kernel errno. See internal/errdefs for the definition.
type Error = errdefs.Error

// ErrorCode is a high-level failure category.
type ErrorCode = errdefs.ErrorCode

const (
	ErrCodeDeviceNotFound    = errdefs.ErrCodeDeviceNotFound
	ErrCodeDeviceBusy        = errdefs.ErrCodeDeviceBusy
	ErrCodeInvalidParameters = errdefs.ErrCodeInvalidParameters
	ErrCodeKernelUnsupported = errdefs.ErrCodeKernelUnsupported
	ErrCodePermissionDenied  = errdefs.ErrCodePermissionDenied
	ErrCodeOutOfMemory       = errdefs.ErrCodeOutOfMemory
	ErrCodeIOError           = errdefs.ErrCodeIOError
	ErrCodeProtocol          = errdefs.ErrCodeProtocol
)

// NewError builds a structured error for an operation.
func NewError(op string, code ErrorCode, msg string) *Error {
	return errdefs.NewError(op, code, msg)
}

// WrapError attaches operation context to an error, mapping syscall
// errnos to categories. Returns nil when inner is nil.
func WrapError(op string, inner error) *Error {
	return errdefs.WrapError(op, inner)
}

// IsCode reports whether err carries the given category.
func IsCode(err error, code ErrorCode) bool {
	return errdefs.IsCode(err, code)
}

// IsErrno reports whether err carries the given kernel errno.
func IsErrno(err error, errno syscall.Errno) bool {
	return errdefs.IsErrno(err, errno)
}
