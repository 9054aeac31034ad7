package uapi

import (
	"encoding/binary"
	"errors"
)

// The kernel consumes these structs in native byte order; ublk only
// exists on little-endian Linux targets in practice, and fixed offsets
// keep the layouts honest without unsafe casts.

var ErrShortBuffer = errors.New("buffer too short for struct")

const (
	CtrlCmdSize     = 32
	CtrlDevInfoSize = 64
	IODescSize      = 24
	IOCmdSize       = 16
	paramHeaderSize = 8
	paramBasicSize  = 32
	paramsSize      = paramHeaderSize + paramBasicSize
)

// Marshal encodes the command into the SQE cmd area layout.
func (c *CtrlCmd) Marshal() []byte {
	buf := make([]byte, CtrlCmdSize)
	binary.LittleEndian.PutUint32(buf[0:4], c.DevID)
	binary.LittleEndian.PutUint16(buf[4:6], c.QueueID)
	binary.LittleEndian.PutUint16(buf[6:8], c.Len)
	binary.LittleEndian.PutUint64(buf[8:16], c.Addr)
	binary.LittleEndian.PutUint64(buf[16:24], c.Data)
	binary.LittleEndian.PutUint16(buf[24:26], c.DevPathLen)
	binary.LittleEndian.PutUint16(buf[26:28], c.Pad)
	binary.LittleEndian.PutUint32(buf[28:32], c.Reserved)
	return buf
}

// Marshal encodes the I/O command for the SQE cmd area.
func (c *IOCmd) Marshal() []byte {
	buf := make([]byte, IOCmdSize)
	binary.LittleEndian.PutUint16(buf[0:2], c.QID)
	binary.LittleEndian.PutUint16(buf[2:4], c.Tag)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(c.Result))
	binary.LittleEndian.PutUint64(buf[8:16], c.Addr)
	return buf
}

// Marshal encodes device info for ADD_DEV.
func (i *CtrlDevInfo) Marshal() []byte {
	buf := make([]byte, CtrlDevInfoSize)
	binary.LittleEndian.PutUint16(buf[0:2], i.NrHwQueues)
	binary.LittleEndian.PutUint16(buf[2:4], i.QueueDepth)
	binary.LittleEndian.PutUint16(buf[4:6], i.State)
	binary.LittleEndian.PutUint16(buf[6:8], i.Pad0)
	binary.LittleEndian.PutUint32(buf[8:12], i.MaxIOBufBytes)
	binary.LittleEndian.PutUint32(buf[12:16], i.DevID)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(i.UblksrvPID))
	binary.LittleEndian.PutUint32(buf[20:24], i.Pad1)
	binary.LittleEndian.PutUint64(buf[24:32], i.Flags)
	binary.LittleEndian.PutUint64(buf[32:40], i.UblksrvFlags)
	binary.LittleEndian.PutUint32(buf[40:44], i.OwnerUID)
	binary.LittleEndian.PutUint32(buf[44:48], i.OwnerGID)
	binary.LittleEndian.PutUint64(buf[48:56], i.Reserved1)
	binary.LittleEndian.PutUint64(buf[56:64], i.Reserved2)
	return buf
}

// UnmarshalCtrlDevInfo decodes the kernel's reply buffer.
func UnmarshalCtrlDevInfo(data []byte, i *CtrlDevInfo) error {
	if len(data) < CtrlDevInfoSize {
		return ErrShortBuffer
	}
	i.NrHwQueues = binary.LittleEndian.Uint16(data[0:2])
	i.QueueDepth = binary.LittleEndian.Uint16(data[2:4])
	i.State = binary.LittleEndian.Uint16(data[4:6])
	i.Pad0 = binary.LittleEndian.Uint16(data[6:8])
	i.MaxIOBufBytes = binary.LittleEndian.Uint32(data[8:12])
	i.DevID = binary.LittleEndian.Uint32(data[12:16])
	i.UblksrvPID = int32(binary.LittleEndian.Uint32(data[16:20]))
	i.Pad1 = binary.LittleEndian.Uint32(data[20:24])
	i.Flags = binary.LittleEndian.Uint64(data[24:32])
	i.UblksrvFlags = binary.LittleEndian.Uint64(data[32:40])
	i.OwnerUID = binary.LittleEndian.Uint32(data[40:44])
	i.OwnerGID = binary.LittleEndian.Uint32(data[44:48])
	i.Reserved1 = binary.LittleEndian.Uint64(data[48:56])
	i.Reserved2 = binary.LittleEndian.Uint64(data[56:64])
	return nil
}

// Marshal encodes the parameter block for SET_PARAMS. Only the basic
// section is ever sent; Len covers header plus basic.
func (p *Params) Marshal() []byte {
	buf := make([]byte, paramsSize)
	binary.LittleEndian.PutUint32(buf[0:4], paramsSize)
	binary.LittleEndian.PutUint32(buf[4:8], p.Types)

	b := &p.Basic
	binary.LittleEndian.PutUint32(buf[8:12], b.Attrs)
	buf[12] = b.LogicalBSShift
	buf[13] = b.PhysicalBSShift
	buf[14] = b.IOOptShift
	buf[15] = b.IOMinShift
	binary.LittleEndian.PutUint32(buf[16:20], b.MaxSectors)
	binary.LittleEndian.PutUint32(buf[20:24], b.ChunkSectors)
	binary.LittleEndian.PutUint64(buf[24:32], b.DevSectors)
	binary.LittleEndian.PutUint64(buf[32:40], b.VirtBoundaryMask)
	return buf
}

// UnmarshalIODesc decodes one shared-memory descriptor slot.
func UnmarshalIODesc(data []byte, d *IODesc) error {
	if len(data) < IODescSize {
		return ErrShortBuffer
	}
	d.OpFlags = binary.LittleEndian.Uint32(data[0:4])
	d.NrSectors = binary.LittleEndian.Uint32(data[4:8])
	d.StartSector = binary.LittleEndian.Uint64(data[8:16])
	d.Addr = binary.LittleEndian.Uint64(data[16:24])
	return nil
}
