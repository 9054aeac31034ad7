//go:build linux

package uring

import (
	"testing"

	"github.com/ehrlich-b/vramblk/internal/ublk/uapi"
)

func TestSyscallRingSetup(t *testing.T) {
	// io_uring may be unavailable or restricted in sandboxes.
	r, err := newSyscallRing(Config{Entries: 8, FD: -1})
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	defer r.Close()

	sr := r.(*syscallRing)
	if sr.sqMask != 7 {
		t.Errorf("sq mask = %d, want 7", sr.sqMask)
	}
	if sr.params.sqEntries != 8 {
		t.Errorf("sq entries = %d, want 8", sr.params.sqEntries)
	}
	if sr.params.cqEntries < 8 {
		t.Errorf("cq entries = %d, want >= 8", sr.params.cqEntries)
	}
}

func TestSyscallRingUseAfterClose(t *testing.T) {
	r, err := newSyscallRing(Config{Entries: 8, FD: -1})
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Once Close has unmapped the rings, every entry point must bail
	// out with an error instead of touching the dead mappings.
	var out [1]Completion
	if _, err := r.WaitCompletions(out[:]); err == nil {
		t.Error("WaitCompletions on closed ring returned nil")
	}
	cmd := &uapi.IOCmd{}
	if err := r.SubmitIOCmd(0, cmd, 0); err == nil {
		t.Error("SubmitIOCmd on closed ring returned nil")
	}
	if err := r.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestRingEntriesValidation(t *testing.T) {
	for _, entries := range []uint32{0, 3, 12} {
		if _, err := newSyscallRing(Config{Entries: entries, FD: -1}); err == nil {
			t.Errorf("newSyscallRing with %d entries should fail", entries)
		}
	}
}
