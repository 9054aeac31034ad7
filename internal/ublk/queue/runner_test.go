package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingEntries(t *testing.T) {
	assert.Equal(t, uint32(1), ringEntries(1))
	assert.Equal(t, uint32(2), ringEntries(2))
	assert.Equal(t, uint32(4), ringEntries(3))
	assert.Equal(t, uint32(128), ringEntries(128))
	assert.Equal(t, uint32(256), ringEntries(129))
}

func TestUserDataEncoding(t *testing.T) {
	ud := udOpCommit | uint64(3)<<udQIDShift | uint64(42)
	assert.Equal(t, uint64(42), ud&udTagMask)
	assert.NotZero(t, ud&udOpCommit)

	fetch := uint64(3)<<udQIDShift | uint64(42)
	assert.Zero(t, fetch&udOpCommit)
	assert.Equal(t, uint64(42), fetch&udTagMask)
}
