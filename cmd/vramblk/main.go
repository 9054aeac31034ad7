// Command vramblk serves a fixed-size memory region as a block device
// over NBD and ublk simultaneously.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/vramblk"
	"github.com/ehrlich-b/vramblk/backend"
	"github.com/ehrlich-b/vramblk/internal/config"
	"github.com/ehrlich-b/vramblk/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "vramblk: %v\n", err)
		os.Exit(1)
	}

	var listDevices bool
	pflag.StringVarP(&cfg.Size, "size", "s", cfg.Size, "device capacity (e.g. 2048M, 4G; bare numbers are MiB)")
	pflag.StringVar(&cfg.Backend, "backend", cfg.Backend, "storage backend (memory or file)")
	pflag.StringVar(&cfg.Path, "file", cfg.Path, "backing file path for the file backend")
	pflag.StringVarP(&cfg.ListenAddr, "listen-addr", "l", cfg.ListenAddr, "NBD listen address")
	pflag.StringVarP(&cfg.ExportName, "export-name", "e", cfg.ExportName, "NBD export name")
	pflag.IntVar(&cfg.BlockSize, "block-size", cfg.BlockSize, "logical block size in bytes")
	pflag.IntVar(&cfg.QueueDepth, "queue-depth", cfg.QueueDepth, "ublk per-queue depth")
	pflag.IntVar(&cfg.MaxConns, "max-conns", cfg.MaxConns, "maximum concurrent NBD connections")
	pflag.BoolVar(&cfg.NBD, "nbd", cfg.NBD, "serve the NBD frontend")
	pflag.BoolVar(&cfg.Ublk, "ublk", cfg.Ublk, "serve the ublk frontend")
	pflag.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "debug logging")
	pflag.BoolVar(&listDevices, "list-devices", false, "list storage backends and exit")
	pflag.Parse()

	if listDevices {
		for _, p := range backend.List() {
			fmt.Printf("%-8s %s\n", p.Name, p.Description)
		}
		return
	}

	logConfig := logging.DefaultConfig()
	if cfg.Verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("exiting", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	size, err := config.ParseSize(cfg.Size)
	if err != nil {
		return err
	}

	// Pin the region; a swapped-out page defeats the point of a
	// memory-backed device. Not fatal without CAP_IPC_LOCK.
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		logger.Warn("mlockall failed, memory may be swapped", "error", err.Error())
	}

	store, err := backend.Open(cfg.Backend, size, cfg.Path)
	if err != nil {
		return err
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}

	shared := vramblk.NewShared(store)
	metrics := vramblk.NewMetrics()

	logger.Info("backend ready",
		"backend", cfg.Backend,
		"size", humanize.IBytes(uint64(size)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	if cfg.NBD {
		g.Go(func() error {
			return vramblk.ServeNBD(ctx, shared, vramblk.NBDConfig{
				ListenAddr: cfg.ListenAddr,
				ExportName: cfg.ExportName,
				MaxConns:   cfg.MaxConns,
				Logger:     logger,
			}, metrics)
		})
	}
	if cfg.Ublk {
		g.Go(func() error {
			return vramblk.ServeUblk(ctx, shared, vramblk.UblkConfig{
				LogicalBlockSize: cfg.BlockSize,
				QueueDepth:       cfg.QueueDepth,
				Logger:           logger,
			}, metrics)
		})
	}

	err = g.Wait()

	snap := metrics.Snapshot()
	logger.Info("totals",
		"reads", snap.Reads,
		"writes", snap.Writes,
		"flushes", snap.Flushes,
		"read_bytes", humanize.IBytes(snap.ReadBytes),
		"write_bytes", humanize.IBytes(snap.WriteBytes),
		"errors", snap.Errors,
		"uptime", snap.Uptime.String())

	return err
}
