// Package ctrl drives the ublk control plane: device add, parameter
// setup, start, stop, and delete through /dev/ublk-control.
package ctrl

import (
	"fmt"
	"os"
	"runtime"
	"syscall"
	"unsafe"

	"github.com/ehrlich-b/vramblk/internal/errdefs"
	"github.com/ehrlich-b/vramblk/internal/logging"
	"github.com/ehrlich-b/vramblk/internal/ublk/uapi"
	"github.com/ehrlich-b/vramblk/internal/ublk/uring"
)

// Controller owns the control device fd and the io_uring used for
// control URING_CMDs. Not safe for concurrent use.
type Controller struct {
	controlFd int
	ring      uring.Ring
	logger    *logging.Logger
}

// NewController opens /dev/ublk-control and sets up its command ring.
func NewController(logger *logging.Logger) (*Controller, error) {
	if logger == nil {
		logger = logging.Default()
	}

	fd, err := syscall.Open(uapi.ControlDevPath, syscall.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w (is the ublk_drv module loaded?)", uapi.ControlDevPath, err)
	}

	ring, err := uring.NewRing(uring.Config{Entries: 32, FD: int32(fd)})
	if err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("control ring: %w", err)
	}

	return &Controller{
		controlFd: fd,
		ring:      ring,
		logger:    logger,
	}, nil
}

// Close releases the ring and control fd.
func (c *Controller) Close() error {
	if c.ring != nil {
		c.ring.Close()
		c.ring = nil
	}
	if c.controlFd >= 0 {
		err := syscall.Close(c.controlFd)
		c.controlFd = -1
		return err
	}
	return nil
}

// submit runs one control command and converts a negative CQE result
// into an error.
func (c *Controller) submit(name string, op uint32, cmd *uapi.CtrlCmd) (int32, error) {
	res, err := c.ring.SubmitCtrlCmd(uapi.UblkCtrlCmd(op), cmd, 0)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if res < 0 {
		return res, errdefs.WrapError(name, syscall.Errno(-res))
	}
	return res, nil
}

// AddDevice registers a new ublk device and returns the kernel-assigned
// device ID.
func (c *Controller) AddDevice(params *DeviceParams) (uint32, error) {
	if err := params.validate(); err != nil {
		return 0, err
	}

	devID := uint32(0xFFFFFFFF)
	if params.DeviceID >= 0 {
		devID = uint32(params.DeviceID)
	}

	devInfo := &uapi.CtrlDevInfo{
		NrHwQueues:    uint16(params.NumQueues),
		QueueDepth:    uint16(params.QueueDepth),
		MaxIOBufBytes: uint32(params.MaxIOBufBytes),
		DevID:         devID,
		UblksrvPID:    int32(os.Getpid()),
		Flags:         uapi.UBLK_F_URING_CMD_COMP_IN_TASK | uapi.UBLK_F_CMD_IOCTL_ENCODE,
		OwnerUID:      uint32(os.Getuid()),
		OwnerGID:      uint32(os.Getgid()),
	}

	infoBuf := devInfo.Marshal()
	cmd := &uapi.CtrlCmd{
		DevID:   devID,
		QueueID: 0xFFFF,
		Len:     uint16(len(infoBuf)),
		Addr:    uint64(uintptr(unsafe.Pointer(&infoBuf[0]))),
	}

	c.logger.Debug("submitting ADD_DEV",
		"queues", devInfo.NrHwQueues,
		"depth", devInfo.QueueDepth,
		"max_io", devInfo.MaxIOBufBytes)

	if _, err := c.submit("ADD_DEV", uapi.UBLK_CMD_ADD_DEV, cmd); err != nil {
		return 0, err
	}
	runtime.KeepAlive(cmd)

	// The kernel writes the assigned ID back into the info buffer.
	var assigned uapi.CtrlDevInfo
	if err := uapi.UnmarshalCtrlDevInfo(infoBuf, &assigned); err != nil {
		return 0, err
	}
	c.logger.Info("ublk device created", "device_id", assigned.DevID)
	return assigned.DevID, nil
}

// SetParams pushes the block-layer geometry for the device.
func (c *Controller) SetParams(devID uint32, params *DeviceParams) error {
	lbsShift := blockShift(params.LogicalBlockSize)

	ublkParams := &uapi.Params{
		Types: uapi.UBLK_PARAM_TYPE_BASIC,
		Basic: uapi.ParamBasic{
			LogicalBSShift:  lbsShift,
			PhysicalBSShift: physicalShift(lbsShift),
			IOOptShift:      lbsShift,
			IOMinShift:      lbsShift,
			MaxSectors:      uint32(params.MaxIOBufBytes >> 9),
			DevSectors:      uint64(params.SizeBytes >> 9),
		},
	}

	buf := ublkParams.Marshal()
	cmd := &uapi.CtrlCmd{
		DevID:   devID,
		QueueID: 0xFFFF,
		Len:     uint16(len(buf)),
		Addr:    uint64(uintptr(unsafe.Pointer(&buf[0]))),
	}

	c.logger.Debug("submitting SET_PARAMS",
		"device_id", devID,
		"dev_sectors", ublkParams.Basic.DevSectors,
		"lbs_shift", lbsShift)

	_, err := c.submit("SET_PARAMS", uapi.UBLK_CMD_SET_PARAMS, cmd)
	runtime.KeepAlive(buf)
	return err
}

// StartDevice makes the block device live. The queue runners must have
// their FETCH_REQs primed first or this blocks indefinitely.
func (c *Controller) StartDevice(devID uint32) error {
	cmd := &uapi.CtrlCmd{
		DevID:   devID,
		QueueID: 0xFFFF,
		Data:    uint64(os.Getpid()),
	}
	_, err := c.submit("START_DEV", uapi.UBLK_CMD_START_DEV, cmd)
	return err
}

// StopDevice quiesces the device; outstanding FETCH_REQs complete with
// UBLK_IO_RES_ABORT.
func (c *Controller) StopDevice(devID uint32) error {
	cmd := &uapi.CtrlCmd{
		DevID:   devID,
		QueueID: 0xFFFF,
	}
	_, err := c.submit("STOP_DEV", uapi.UBLK_CMD_STOP_DEV, cmd)
	return err
}

// DeleteDevice removes the device node.
func (c *Controller) DeleteDevice(devID uint32) error {
	cmd := &uapi.CtrlCmd{
		DevID:   devID,
		QueueID: 0xFFFF,
	}
	_, err := c.submit("DEL_DEV", uapi.UBLK_CMD_DEL_DEV, cmd)
	return err
}

// GetDeviceInfo queries the kernel's view of the device.
func (c *Controller) GetDeviceInfo(devID uint32) (*uapi.CtrlDevInfo, error) {
	buf := make([]byte, uapi.CtrlDevInfoSize)
	cmd := &uapi.CtrlCmd{
		DevID:   devID,
		QueueID: 0xFFFF,
		Len:     uint16(len(buf)),
		Addr:    uint64(uintptr(unsafe.Pointer(&buf[0]))),
	}
	if _, err := c.submit("GET_DEV_INFO", uapi.UBLK_CMD_GET_DEV_INFO, cmd); err != nil {
		return nil, err
	}
	runtime.KeepAlive(cmd)

	var info uapi.CtrlDevInfo
	if err := uapi.UnmarshalCtrlDevInfo(buf, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
