package backend

import (
	"fmt"
	"sort"

	"github.com/ehrlich-b/vramblk/internal/interfaces"
)

// Provider describes a selectable storage backend.
type Provider struct {
	Name        string
	Description string
	Open        func(size int64, path string) (interfaces.Backend, error)
}

var providers = map[string]Provider{
	"memory": {
		Name:        "memory",
		Description: "host RAM, contents lost on exit",
		Open: func(size int64, _ string) (interfaces.Backend, error) {
			return NewMemory(size), nil
		},
	},
	"file": {
		Name:        "file",
		Description: "flat file on disk, persistent",
		Open: func(size int64, path string) (interfaces.Backend, error) {
			if path == "" {
				return nil, fmt.Errorf("file backend requires a path")
			}
			return NewFile(path, size)
		},
	},
}

// List returns the registered providers sorted by name.
func List() []Provider {
	out := make([]Provider, 0, len(providers))
	for _, p := range providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Open creates a backend by provider name.
func Open(name string, size int64, path string) (interfaces.Backend, error) {
	p, ok := providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", name)
	}
	return p.Open(size, path)
}
