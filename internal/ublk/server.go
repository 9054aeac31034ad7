// Package ublk exposes a backend as a kernel block device via the
// ublk driver. Serve owns the whole device lifecycle: create, set
// parameters, start the queue runners, start the device, and tear it
// all down on context cancellation.
package ublk

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/ehrlich-b/vramblk/internal/constants"
	"github.com/ehrlich-b/vramblk/internal/interfaces"
	"github.com/ehrlich-b/vramblk/internal/logging"
	"github.com/ehrlich-b/vramblk/internal/metrics"
	"github.com/ehrlich-b/vramblk/internal/ublk/ctrl"
	"github.com/ehrlich-b/vramblk/internal/ublk/queue"
	"github.com/ehrlich-b/vramblk/internal/ublk/uapi"
)

// Config holds the ublk frontend settings.
type Config struct {
	// DeviceID requests a specific device number; the default of
	// AutoAssignDeviceID lets the kernel choose.
	DeviceID int

	// LogicalBlockSize in bytes, power of two. Defaults to 512.
	LogicalBlockSize int

	// QueueDepth per queue. Defaults to DefaultQueueDepth.
	QueueDepth int

	// NumQueues is the hardware queue count; 0 selects one per CPU,
	// capped at MaxQueues.
	NumQueues int

	// Logger for lifecycle and queue events.
	Logger *logging.Logger
}

func (c *Config) applyDefaults() {
	if c.DeviceID == 0 {
		c.DeviceID = constants.AutoAssignDeviceID
	}
	if c.LogicalBlockSize == 0 {
		c.LogicalBlockSize = constants.DefaultLogicalBlockSize
	}
	if c.QueueDepth == 0 {
		c.QueueDepth = constants.DefaultQueueDepth
	}
	if c.NumQueues == 0 {
		c.NumQueues = runtime.NumCPU()
		if c.NumQueues > constants.MaxQueues {
			c.NumQueues = constants.MaxQueues
		}
	}
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
}

// ValidateLogicalBlockSize rejects sizes the block layer cannot use.
func ValidateLogicalBlockSize(size int) error {
	if size <= 0 || size&(size-1) != 0 {
		return fmt.Errorf("logical block size %d is not a power of two", size)
	}
	return nil
}

// Serve creates a ublk device backed by b and blocks until ctx is
// cancelled, then stops and deletes the device. The backend size must
// be a multiple of the logical block size.
func Serve(ctx context.Context, b interfaces.Backend, cfg Config, m *metrics.Metrics) error {
	cfg.applyDefaults()
	log := cfg.Logger

	if err := ValidateLogicalBlockSize(cfg.LogicalBlockSize); err != nil {
		return err
	}

	controller, err := ctrl.NewController(log)
	if err != nil {
		return err
	}
	defer controller.Close()

	params := &ctrl.DeviceParams{
		DeviceID:         int32(cfg.DeviceID),
		NumQueues:        cfg.NumQueues,
		QueueDepth:       cfg.QueueDepth,
		MaxIOBufBytes:    constants.IOBufferSizePerTag,
		LogicalBlockSize: cfg.LogicalBlockSize,
		SizeBytes:        b.Size(),
	}

	devID, err := controller.AddDevice(params)
	if err != nil {
		return fmt.Errorf("add device: %w", err)
	}
	log = log.WithDevice(int(devID))

	// From here on the device node exists and must be cleaned up.
	cleanup := func() {
		if err := controller.DeleteDevice(devID); err != nil {
			log.Error("delete device failed", "error", err.Error())
		}
	}

	if err := controller.SetParams(devID, params); err != nil {
		cleanup()
		return fmt.Errorf("set params: %w", err)
	}

	runners := make([]*queue.Runner, 0, cfg.NumQueues)
	closeRunners := func() {
		for _, r := range runners {
			r.Close()
		}
	}

	for qid := 0; qid < cfg.NumQueues; qid++ {
		r, err := queue.NewRunner(ctx, queue.Config{
			DevID:   devID,
			QueueID: uint16(qid),
			Depth:   cfg.QueueDepth,
			Backend: b,
			Logger:  log,
			Metrics: m,
		})
		if err != nil {
			closeRunners()
			cleanup()
			return fmt.Errorf("queue %d: %w", qid, err)
		}
		runners = append(runners, r)
	}

	for qid, r := range runners {
		if err := r.Start(); err != nil {
			closeRunners()
			cleanup()
			return fmt.Errorf("start queue %d: %w", qid, err)
		}
	}

	// Give the kernel a moment to see the primed FETCH_REQs; START_DEV
	// blocks until every queue has its full complement.
	time.Sleep(constants.QueueInitDelay)

	if err := controller.StartDevice(devID); err != nil {
		closeRunners()
		cleanup()
		return fmt.Errorf("start device: %w", err)
	}

	log.Info("ublk device ready",
		"path", uapi.BlockDevPath(devID),
		"size", b.Size(),
		"queues", cfg.NumQueues,
		"depth", cfg.QueueDepth,
		"block_size", cfg.LogicalBlockSize)

	<-ctx.Done()

	log.Info("stopping ublk device")
	stopErr := controller.StopDevice(devID)
	if stopErr != nil {
		log.Error("stop device failed", "error", stopErr.Error())
	}
	closeRunners()
	cleanup()
	return stopErr
}
