package backend

import (
	"bytes"
	"sync"
	"testing"
)

func TestMemoryReadWrite(t *testing.T) {
	m := NewMemory(1024)

	if m.Size() != 1024 {
		t.Errorf("Size() = %d, want 1024", m.Size())
	}

	// Write then read back
	data := []byte("hello world")
	n, err := m.WriteAt(data, 100)
	if err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("WriteAt wrote %d bytes, want %d", n, len(data))
	}

	buf := make([]byte, len(data))
	n, err = m.ReadAt(buf, 100)
	if err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("ReadAt read %d bytes, want %d", n, len(data))
	}
	if !bytes.Equal(buf, data) {
		t.Errorf("ReadAt = %q, want %q", buf, data)
	}
}

func TestMemoryZeroFilled(t *testing.T) {
	m := NewMemory(256)
	buf := make([]byte, 256)
	for i := range buf {
		buf[i] = 0xff
	}
	if _, err := m.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want 0", i, b)
		}
	}
}

func TestMemoryBounds(t *testing.T) {
	m := NewMemory(1024)

	// Read at exactly size
	if _, err := m.ReadAt(make([]byte, 1), 1024); err == nil {
		t.Error("ReadAt at size should fail")
	}

	// Write at exactly size
	if _, err := m.WriteAt([]byte{1}, 1024); err == nil {
		t.Error("WriteAt at size should fail")
	}

	// Negative offset
	if _, err := m.ReadAt(make([]byte, 1), -1); err == nil {
		t.Error("ReadAt with negative offset should fail")
	}

	// Write extending past the end
	if _, err := m.WriteAt(make([]byte, 100), 1000); err == nil {
		t.Error("WriteAt past end should fail")
	}

	// Read extending past the end clamps
	n, err := m.ReadAt(make([]byte, 100), 1000)
	if err != nil {
		t.Fatalf("clamped ReadAt failed: %v", err)
	}
	if n != 24 {
		t.Errorf("clamped ReadAt read %d bytes, want 24", n)
	}
}

func TestMemoryClose(t *testing.T) {
	m := NewMemory(64)
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := m.ReadAt(make([]byte, 1), 0); err == nil {
		t.Error("ReadAt after Close should fail")
	}
	if _, err := m.WriteAt([]byte{1}, 0); err == nil {
		t.Error("WriteAt after Close should fail")
	}
}

func TestMemoryConcurrent(t *testing.T) {
	m := NewMemory(4096)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			off := int64(worker * 512)
			data := bytes.Repeat([]byte{byte(worker + 1)}, 512)
			for iter := 0; iter < 100; iter++ {
				if _, err := m.WriteAt(data, off); err != nil {
					t.Errorf("worker %d: WriteAt failed: %v", worker, err)
					return
				}
				buf := make([]byte, 512)
				if _, err := m.ReadAt(buf, off); err != nil {
					t.Errorf("worker %d: ReadAt failed: %v", worker, err)
					return
				}
				if !bytes.Equal(buf, data) {
					t.Errorf("worker %d: data mismatch", worker)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}
