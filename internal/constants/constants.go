package constants

import "time"

// Default configuration constants
const (
	// DefaultQueueDepth is the default I/O queue depth per ublk queue
	DefaultQueueDepth = 128

	// DefaultLogicalBlockSize is the default logical block size in bytes
	DefaultLogicalBlockSize = 512

	// MaxQueues caps the auto-selected ublk queue count to avoid
	// oversubscribing the machine
	MaxQueues = 8

	// DefaultListenAddr is the default NBD listen address
	DefaultListenAddr = "127.0.0.1:10809"

	// DefaultExportName is the export name advertised to NBD clients
	DefaultExportName = "vram"

	// DefaultMaxConns bounds concurrent NBD connections per listener
	DefaultMaxConns = 64

	// AutoAssignDeviceID indicates the kernel should auto-assign a device ID
	AutoAssignDeviceID = -1
)

// Timing constants for ublk device lifecycle
const (
	// DevicePollingInterval is the interval to check for device readiness
	DevicePollingInterval = 10 * time.Millisecond

	// QueueInitDelay is the time to wait after submitting FETCH_REQs
	// before issuing START_DEV
	QueueInitDelay = 100 * time.Millisecond
)

// Memory allocation constants
const (
	// IOBufferSizePerTag is the I/O buffer size allocated per queue tag
	// (64KB). Kernel requests larger than this are clamped, not split.
	IOBufferSizePerTag = 64 * 1024
)
