package ublk

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ehrlich-b/vramblk/internal/constants"
)

func TestValidateLogicalBlockSize(t *testing.T) {
	for _, size := range []int{512, 1024, 4096, 65536} {
		assert.NoError(t, ValidateLogicalBlockSize(size))
	}
	for _, size := range []int{0, -512, 3, 5, 513, 1000} {
		assert.Error(t, ValidateLogicalBlockSize(size), "size %d", size)
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	assert.Equal(t, constants.AutoAssignDeviceID, cfg.DeviceID)
	assert.Equal(t, constants.DefaultLogicalBlockSize, cfg.LogicalBlockSize)
	assert.Equal(t, constants.DefaultQueueDepth, cfg.QueueDepth)
	assert.NotNil(t, cfg.Logger)

	want := runtime.NumCPU()
	if want > constants.MaxQueues {
		want = constants.MaxQueues
	}
	assert.Equal(t, want, cfg.NumQueues)
}

func TestConfigExplicitValuesKept(t *testing.T) {
	cfg := Config{
		DeviceID:         3,
		LogicalBlockSize: 4096,
		QueueDepth:       64,
		NumQueues:        2,
	}
	cfg.applyDefaults()

	assert.Equal(t, 3, cfg.DeviceID)
	assert.Equal(t, 4096, cfg.LogicalBlockSize)
	assert.Equal(t, 64, cfg.QueueDepth)
	assert.Equal(t, 2, cfg.NumQueues)
}
