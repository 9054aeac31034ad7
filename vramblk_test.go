package vramblk

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/vramblk/backend"
)

func TestSharedRoundTrip(t *testing.T) {
	mem := backend.NewMemory(1 << 20)
	defer mem.Close()
	s := NewShared(mem)

	assert.Equal(t, int64(1<<20), s.Size())

	data := []byte("frontends share one region")
	n, err := s.WriteAt(data, 4096)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	got := make([]byte, len(data))
	n, err = s.ReadAt(got, 4096)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	assert.Equal(t, data, got)
}

func TestSharedConcurrentAccess(t *testing.T) {
	mem := backend.NewMemory(1 << 20)
	defer mem.Close()
	s := NewShared(mem)

	const workers = 8
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			off := int64(w) * 4096
			buf := make([]byte, 512)
			for i := range buf {
				buf[i] = byte(w)
			}
			for iter := 0; iter < 100; iter++ {
				if _, err := s.WriteAt(buf, off); err != nil {
					t.Error(err)
					return
				}
				got := make([]byte, 512)
				if _, err := s.ReadAt(got, off); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	// Each worker's region holds its own byte value.
	for w := 0; w < workers; w++ {
		got := make([]byte, 512)
		_, err := s.ReadAt(got, int64(w)*4096)
		require.NoError(t, err)
		assert.Equal(t, byte(w), got[0])
		assert.Equal(t, byte(w), got[511])
	}
}
