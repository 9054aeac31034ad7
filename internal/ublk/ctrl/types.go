package ctrl

import (
	"fmt"
	"math/bits"
)

// DeviceParams describes the ublk device to create.
type DeviceParams struct {
	// DeviceID requests a specific ID; -1 lets the kernel assign one.
	DeviceID int32

	// NumQueues is the number of hardware queues.
	NumQueues int

	// QueueDepth is the per-queue depth.
	QueueDepth int

	// MaxIOBufBytes caps a single request's payload. The kernel splits
	// larger block-layer requests to fit.
	MaxIOBufBytes int

	// LogicalBlockSize in bytes; must be a power of two.
	LogicalBlockSize int

	// SizeBytes is the device capacity.
	SizeBytes int64
}

func (p *DeviceParams) validate() error {
	if p.NumQueues <= 0 {
		return fmt.Errorf("queue count must be positive")
	}
	if p.QueueDepth <= 0 {
		return fmt.Errorf("queue depth must be positive")
	}
	if p.LogicalBlockSize <= 0 || p.LogicalBlockSize&(p.LogicalBlockSize-1) != 0 {
		return fmt.Errorf("logical block size %d is not a power of two", p.LogicalBlockSize)
	}
	if p.SizeBytes <= 0 {
		return fmt.Errorf("device size must be positive")
	}
	if p.SizeBytes%int64(p.LogicalBlockSize) != 0 {
		return fmt.Errorf("device size %d is not a multiple of block size %d",
			p.SizeBytes, p.LogicalBlockSize)
	}
	return nil
}

// blockShift returns log2 of a power-of-two block size.
func blockShift(size int) uint8 {
	return uint8(bits.TrailingZeros(uint(size)))
}

// physicalShift reports the physical block size exponent: at least one
// 4KiB page, never smaller than the logical block.
func physicalShift(lbsShift uint8) uint8 {
	if lbsShift > 12 {
		return lbsShift
	}
	return 12
}
