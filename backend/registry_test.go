package backend

import (
	"path/filepath"
	"testing"
)

func TestListProviders(t *testing.T) {
	ps := List()
	if len(ps) != 2 {
		t.Fatalf("List() returned %d providers, want 2", len(ps))
	}
	if ps[0].Name != "file" || ps[1].Name != "memory" {
		t.Errorf("List() order = %q, %q; want file, memory", ps[0].Name, ps[1].Name)
	}
	for _, p := range ps {
		if p.Description == "" {
			t.Errorf("provider %q has no description", p.Name)
		}
		if p.Open == nil {
			t.Errorf("provider %q has no open func", p.Name)
		}
	}
}

func TestOpenMemory(t *testing.T) {
	b, err := Open("memory", 1024, "")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if b.Size() != 1024 {
		t.Errorf("Size() = %d, want 1024", b.Size())
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	b, err := Open("file", 1024, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if b.Size() != 1024 {
		t.Errorf("Size() = %d, want 1024", b.Size())
	}

	if _, err := Open("file", 1024, ""); err == nil {
		t.Error("Open file backend without path should fail")
	}
}

func TestOpenUnknown(t *testing.T) {
	if _, err := Open("tape", 1024, ""); err == nil {
		t.Error("Open with unknown provider should fail")
	}
}
