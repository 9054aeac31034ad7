package vramblk

import (
	"context"

	"github.com/ehrlich-b/vramblk/internal/logging"
	"github.com/ehrlich-b/vramblk/internal/ublk"
)

// UblkConfig holds the kernel block device frontend settings. Zero
// values fall back to the package defaults.
type UblkConfig struct {
	// DeviceID requests a specific /dev/ublkbN number; zero or
	// AutoAssignDeviceID lets the kernel choose.
	DeviceID int

	// LogicalBlockSize in bytes, power of two.
	LogicalBlockSize int

	// QueueDepth per hardware queue.
	QueueDepth int

	// NumQueues is the hardware queue count; zero selects one per CPU
	// up to the package cap.
	NumQueues int

	// Logger for device lifecycle and queue events.
	Logger *logging.Logger
}

// ServeUblk creates a ublk device over b and serves kernel I/O until
// ctx is cancelled, then stops and deletes the device. Requires root
// and the ublk_drv module.
func ServeUblk(ctx context.Context, b Backend, cfg UblkConfig, m *Metrics) error {
	return ublk.Serve(ctx, b, ublk.Config{
		DeviceID:         cfg.DeviceID,
		LogicalBlockSize: cfg.LogicalBlockSize,
		QueueDepth:       cfg.QueueDepth,
		NumQueues:        cfg.NumQueues,
		Logger:           cfg.Logger,
	}, m)
}
