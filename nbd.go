package vramblk

import (
	"context"

	"github.com/ehrlich-b/vramblk/internal/logging"
	"github.com/ehrlich-b/vramblk/internal/nbd"
)

// NBDConfig holds the network frontend settings. Zero values fall
// back to the package defaults.
type NBDConfig struct {
	// ListenAddr is the TCP address to serve on.
	ListenAddr string

	// ExportName is the single export advertised to clients.
	ExportName string

	// MaxConns bounds concurrent client connections.
	MaxConns int

	// Logger for connection and request events.
	Logger *logging.Logger
}

// ServeNBD serves b to NBD clients until ctx is cancelled. Cancellation
// closes the listener only; in-flight connections drain as their
// clients disconnect, and ServeNBD returns nil once they have.
func ServeNBD(ctx context.Context, b Backend, cfg NBDConfig, m *Metrics) error {
	return nbd.Serve(ctx, b, nbd.Config{
		ListenAddr: cfg.ListenAddr,
		ExportName: cfg.ExportName,
		MaxConns:   cfg.MaxConns,
		Logger:     cfg.Logger,
	}, m)
}
