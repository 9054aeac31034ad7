//go:build !linux || !cgo

package uring

// ioringOpUringCmd returns IORING_OP_URING_CMD. The value is 46 on
// every kernel since the opcode landed in 5.19; build with cgo on the
// target to read it from headers instead.
func ioringOpUringCmd() uint8 { return 46 }
