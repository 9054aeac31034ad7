package uapi

import (
	"fmt"
	"unsafe"
)

// CtrlCmd is struct ublksrv_ctrl_cmd. It is copied into the SQE's
// 32-byte cmd area for control URING_CMDs.
type CtrlCmd struct {
	DevID      uint32 // 0xFFFFFFFF asks the kernel to pick an ID
	QueueID    uint16 // 0xFFFF for control ops
	Len        uint16 // length of the buffer at Addr
	Addr       uint64 // userspace buffer address
	Data       uint64 // inline op-specific payload
	DevPathLen uint16 // unprivileged mode only
	Pad        uint16
	Reserved   uint32
}

var _ [32]byte = [unsafe.Sizeof(CtrlCmd{})]byte{}

// CtrlDevInfo is struct ublksrv_ctrl_dev_info (64 bytes, kernel 6.x).
type CtrlDevInfo struct {
	NrHwQueues    uint16
	QueueDepth    uint16
	State         uint16
	Pad0          uint16
	MaxIOBufBytes uint32
	DevID         uint32
	UblksrvPID    int32
	Pad1          uint32
	Flags         uint64
	UblksrvFlags  uint64 // server-private, invisible to the driver
	OwnerUID      uint32
	OwnerGID      uint32
	Reserved1     uint64
	Reserved2     uint64
}

var _ [64]byte = [unsafe.Sizeof(CtrlDevInfo{})]byte{}

// IODesc is struct ublksrv_io_desc, one per (queue, tag) in the shared
// descriptor area the kernel fills in before completing a FETCH.
type IODesc struct {
	OpFlags     uint32 // op in bits 0-7, flags above
	NrSectors   uint32
	StartSector uint64
	Addr        uint64
}

var _ [24]byte = [unsafe.Sizeof(IODesc{})]byte{}

// Op extracts the operation code.
func (d *IODesc) Op() uint8 {
	return uint8(d.OpFlags & 0xff)
}

// Flags extracts the flag bits.
func (d *IODesc) Flags() uint32 {
	return d.OpFlags >> 8
}

// IOCmd is struct ublksrv_io_cmd, sent to /dev/ublkcN with FETCH_REQ
// and COMMIT_AND_FETCH_REQ.
type IOCmd struct {
	QID    uint16
	Tag    uint16
	Result int32  // commit result, bytes transferred or -errno
	Addr   uint64 // per-tag data buffer address
}

var _ [16]byte = [unsafe.Sizeof(IOCmd{})]byte{}

// ParamBasic is struct ublk_param_basic.
type ParamBasic struct {
	Attrs            uint32
	LogicalBSShift   uint8
	PhysicalBSShift  uint8
	IOOptShift       uint8
	IOMinShift       uint8
	MaxSectors       uint32
	ChunkSectors     uint32
	DevSectors       uint64
	VirtBoundaryMask uint64
}

var _ [32]byte = [unsafe.Sizeof(ParamBasic{})]byte{}

// ParamDiscard is struct ublk_param_discard. Present in the ABI even
// though this server rejects discard; SET_PARAMS length accounting
// needs the layout.
type ParamDiscard struct {
	DiscardAlignment      uint32
	DiscardGranularity    uint32
	MaxDiscardSectors     uint32
	MaxWriteZeroesSectors uint32
	MaxDiscardSegments    uint16
	Reserved0             uint16
}

var _ [20]byte = [unsafe.Sizeof(ParamDiscard{})]byte{}

// ParamDevt is struct ublk_param_devt, filled in by the kernel on
// GET_PARAMS.
type ParamDevt struct {
	CharMajor uint32
	CharMinor uint32
	DiskMajor uint32
	DiskMinor uint32
}

// Params is struct ublk_params. Only the sections named in Types are
// valid on the wire.
type Params struct {
	Len     uint32
	Types   uint32
	Basic   ParamBasic
	Discard ParamDiscard
	Devt    ParamDevt
}

// HasBasic reports whether basic parameters are present.
func (p *Params) HasBasic() bool { return p.Types&UBLK_PARAM_TYPE_BASIC != 0 }

// HasDiscard reports whether discard parameters are present.
func (p *Params) HasDiscard() bool { return p.Types&UBLK_PARAM_TYPE_DISCARD != 0 }

// HasDevt reports whether device number parameters are present.
func (p *Params) HasDevt() bool { return p.Types&UBLK_PARAM_TYPE_DEVT != 0 }

// ControlDevPath is the ublk control device node.
const ControlDevPath = "/dev/ublk-control"

// CharDevPath returns the per-device command node.
func CharDevPath(devID uint32) string {
	return fmt.Sprintf("/dev/ublkc%d", devID)
}

// BlockDevPath returns the block device node exposed to the system.
func BlockDevPath(devID uint32) string {
	return fmt.Sprintf("/dev/ublkb%d", devID)
}
