// Package uapi mirrors the Linux ublk driver's userspace ABI: command
// numbers, struct layouts, and the ioctl encoding used on modern
// kernels.
package uapi

// Control commands issued through /dev/ublk-control
const (
	UBLK_CMD_GET_DEV_INFO = 0x02
	UBLK_CMD_ADD_DEV      = 0x04
	UBLK_CMD_DEL_DEV      = 0x05
	UBLK_CMD_START_DEV    = 0x06
	UBLK_CMD_STOP_DEV     = 0x07
	UBLK_CMD_SET_PARAMS   = 0x08
	UBLK_CMD_GET_PARAMS   = 0x09
)

// I/O commands issued through /dev/ublkcN
const (
	UBLK_IO_FETCH_REQ            = 0x20
	UBLK_IO_COMMIT_AND_FETCH_REQ = 0x21
)

// I/O result codes delivered in CQEs
const (
	UBLK_IO_RES_OK    = 0
	UBLK_IO_RES_ABORT = -19 // -ENODEV, device going away
)

// Feature flags (64-bit)
const (
	UBLK_F_SUPPORT_ZERO_COPY      = 1 << 0
	UBLK_F_URING_CMD_COMP_IN_TASK = 1 << 1
	UBLK_F_NEED_GET_DATA          = 1 << 2
	UBLK_F_USER_RECOVERY          = 1 << 3
	UBLK_F_UNPRIVILEGED_DEV       = 1 << 5
	UBLK_F_CMD_IOCTL_ENCODE       = 1 << 6
	UBLK_F_USER_COPY              = 1 << 7
)

// Device states
const (
	UBLK_S_DEV_DEAD     = 0
	UBLK_S_DEV_LIVE     = 1
	UBLK_S_DEV_QUIESCED = 2
)

// I/O operations carried in the descriptor op field
const (
	UBLK_IO_OP_READ         = 0
	UBLK_IO_OP_WRITE        = 1
	UBLK_IO_OP_FLUSH        = 2
	UBLK_IO_OP_DISCARD      = 3
	UBLK_IO_OP_WRITE_SAME   = 4
	UBLK_IO_OP_WRITE_ZEROES = 5
)

// Limits
const (
	UBLK_MAX_QUEUE_DEPTH = 4096
	UBLK_MAX_NR_QUEUES   = 4096

	// UBLKSRV_CMD_BUF_OFFSET is the mmap offset base of the descriptor
	// array; each queue's array sits at queue_id * max_cmd_buf_size.
	UBLKSRV_CMD_BUF_OFFSET = 0
)

// Parameter type flags
const (
	UBLK_PARAM_TYPE_BASIC   = 1 << 0
	UBLK_PARAM_TYPE_DISCARD = 1 << 1
	UBLK_PARAM_TYPE_DEVT    = 1 << 2
)

// Device attribute flags
const (
	UBLK_ATTR_READ_ONLY      = 1 << 0
	UBLK_ATTR_ROTATIONAL     = 1 << 1
	UBLK_ATTR_VOLATILE_CACHE = 1 << 2
	UBLK_ATTR_FUA            = 1 << 3
)

// ioctl encoding, as in <asm-generic/ioctl.h>
const (
	iocWrite     = 1
	iocRead      = 2
	iocNRBits    = 8
	iocTypeBits  = 8
	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocSizeBits  = 14
	iocDirShift  = iocSizeShift + iocSizeBits
)

// IoctlEncode builds an ioctl command number.
func IoctlEncode(dir, typ, nr, size uint32) uint32 {
	return dir<<iocDirShift | size<<iocSizeShift | typ<<iocTypeShift | nr<<iocNRShift
}

// UblkCtrlCmd encodes a control command number. The size is that of
// struct ublksrv_ctrl_cmd (48 bytes in the kernel's encoding).
func UblkCtrlCmd(cmd uint32) uint32 {
	return IoctlEncode(iocRead|iocWrite, 'u', cmd, 48)
}

// UblkIOCmd encodes a per-queue I/O command number over
// struct ublksrv_io_cmd (16 bytes).
func UblkIOCmd(cmd uint32) uint32 {
	return IoctlEncode(iocRead|iocWrite, 'u', cmd, 16)
}
