// Package config loads runtime configuration from the environment and
// parses human-facing values like device sizes.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds every runtime knob. Values come from the environment via
// cleanenv; command-line flags override them afterwards.
type Config struct {
	// Size is the device capacity as a human string ("2048M", "4G").
	// A bare number means mebibytes.
	Size string `env:"VRAMBLK_SIZE" env-default:"2048M"`

	// Backend selects the storage provider ("memory" or "file").
	Backend string `env:"VRAMBLK_BACKEND" env-default:"memory"`

	// Path is the backing file path for the file backend.
	Path string `env:"VRAMBLK_PATH" env-default:""`

	// ListenAddr is the NBD listen address.
	ListenAddr string `env:"VRAMBLK_LISTEN" env-default:"127.0.0.1:10809"`

	// ExportName is the NBD export name advertised to clients.
	ExportName string `env:"VRAMBLK_EXPORT" env-default:"vram"`

	// BlockSize is the logical block size in bytes. Must be a power of two.
	BlockSize int `env:"VRAMBLK_BLOCKSIZE" env-default:"512"`

	// QueueDepth is the ublk per-queue depth.
	QueueDepth int `env:"VRAMBLK_QUEUEDEPTH" env-default:"128"`

	// MaxConns bounds concurrent NBD client connections.
	MaxConns int `env:"VRAMBLK_MAXCONNS" env-default:"64"`

	// NBD enables the NBD frontend.
	NBD bool `env:"VRAMBLK_NBD" env-default:"true"`

	// Ublk enables the ublk frontend.
	Ublk bool `env:"VRAMBLK_UBLK" env-default:"true"`

	// Verbose enables debug logging.
	Verbose bool `env:"VRAMBLK_VERBOSE" env-default:"false"`
}

// Load reads configuration from the environment, applying defaults for
// unset variables.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	return &cfg, nil
}

// ParseSize converts a size string to bytes. A bare number is taken as
// mebibytes; "M"/"MB" and "G"/"GB" suffixes (case-insensitive) select
// mebibytes and gibibytes. Any other suffix is an error.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	upper := strings.ToUpper(s)
	multiplier := int64(1 << 20)
	digits := upper

	switch {
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1 << 30
		digits = upper[:len(upper)-2]
	case strings.HasSuffix(upper, "G"):
		multiplier = 1 << 30
		digits = upper[:len(upper)-1]
	case strings.HasSuffix(upper, "MB"):
		digits = upper[:len(upper)-2]
	case strings.HasSuffix(upper, "M"):
		digits = upper[:len(upper)-1]
	}

	n, err := strconv.ParseUint(digits, 10, 63)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("size must be non-zero")
	}
	bytes := int64(n)
	if bytes > (1<<63-1)/multiplier {
		return 0, fmt.Errorf("size %q overflows", s)
	}
	return bytes * multiplier, nil
}

// Validate checks cross-field constraints that cleanenv cannot express.
func (c *Config) Validate() error {
	if _, err := ParseSize(c.Size); err != nil {
		return err
	}
	switch c.Backend {
	case "memory":
	case "file":
		if c.Path == "" {
			return fmt.Errorf("file backend requires a path")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.BlockSize <= 0 || c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("block size %d is not a power of two", c.BlockSize)
	}
	if c.QueueDepth <= 0 {
		return fmt.Errorf("queue depth must be positive")
	}
	if !c.NBD && !c.Ublk {
		return fmt.Errorf("at least one frontend must be enabled")
	}
	return nil
}
