package ctrl

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/vramblk/internal/errdefs"
	"github.com/ehrlich-b/vramblk/internal/logging"
	"github.com/ehrlich-b/vramblk/internal/ublk/uapi"
	"github.com/ehrlich-b/vramblk/internal/ublk/uring"
)

// fakeRing answers every control command with a fixed CQE result.
type fakeRing struct {
	res    int32
	lastOp uint32
}

func (f *fakeRing) Close() error { return nil }

func (f *fakeRing) SubmitCtrlCmd(cmdOp uint32, cmd *uapi.CtrlCmd, userData uint64) (int32, error) {
	f.lastOp = cmdOp
	return f.res, nil
}

func (f *fakeRing) SubmitIOCmd(cmdOp uint32, cmd *uapi.IOCmd, userData uint64) error {
	return nil
}

func (f *fakeRing) WaitCompletions(out []uring.Completion) (int, error) {
	return 0, nil
}

func TestSubmitErrnoMapping(t *testing.T) {
	ring := &fakeRing{res: -int32(syscall.EPERM)}
	c := &Controller{controlFd: -1, ring: ring, logger: logging.Default()}

	err := c.StartDevice(3)
	require.Error(t, err)
	assert.True(t, errdefs.IsCode(err, errdefs.ErrCodePermissionDenied))
	assert.True(t, errdefs.IsErrno(err, syscall.EPERM))
	assert.True(t, errors.Is(err, syscall.EPERM))
	assert.Contains(t, err.Error(), "START_DEV")

	ring.res = -int32(syscall.ENOENT)
	err = c.DeleteDevice(3)
	require.Error(t, err)
	assert.True(t, errdefs.IsCode(err, errdefs.ErrCodeDeviceNotFound))
}

func TestSubmitSuccess(t *testing.T) {
	ring := &fakeRing{res: 0}
	c := &Controller{controlFd: -1, ring: ring, logger: logging.Default()}

	require.NoError(t, c.StopDevice(0))
	assert.Equal(t, uapi.UblkCtrlCmd(uapi.UBLK_CMD_STOP_DEV), ring.lastOp)
}
