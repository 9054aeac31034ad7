//go:build linux && cgo

package uring

/*
#include <linux/io_uring.h>
static unsigned char uring_cmd_opcode() {
    return (unsigned char)IORING_OP_URING_CMD;
}
*/
import "C"

// ioringOpUringCmd reads IORING_OP_URING_CMD from the build host's
// kernel headers.
func ioringOpUringCmd() uint8 {
	return uint8(C.uring_cmd_opcode())
}
