package vramblk

import "github.com/ehrlich-b/vramblk/internal/constants"

// Defaults applied by the frontends when a Config field is zero.
const (
	DefaultQueueDepth       = constants.DefaultQueueDepth
	DefaultLogicalBlockSize = constants.DefaultLogicalBlockSize
	DefaultListenAddr       = constants.DefaultListenAddr
	DefaultExportName       = constants.DefaultExportName
	DefaultMaxConns         = constants.DefaultMaxConns

	// AutoAssignDeviceID lets the kernel pick the ublk device number.
	AutoAssignDeviceID = constants.AutoAssignDeviceID

	// MaxIORequestBytes is the largest payload a single ublk request
	// carries; the kernel splits bigger block-layer requests.
	MaxIORequestBytes = constants.IOBufferSizePerTag
)
