package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"2048", 2 << 30},
		{"2048M", 2 << 30},
		{"2048MB", 2 << 30},
		{"2G", 2 << 30},
		{"2GB", 2 << 30},
		{"2g", 2 << 30},
		{"2gb", 2 << 30},
		{"1", 1 << 20},
		{"512m", 512 << 20},
		{" 4G ", 4 << 30},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSizeErrors(t *testing.T) {
	for _, in := range []string{"", "10x", "G", "abc", "-5M", "0", "1.5G"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseSize(in)
			assert.Error(t, err)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "2048M", cfg.Size)
	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, "127.0.0.1:10809", cfg.ListenAddr)
	assert.Equal(t, "vram", cfg.ExportName)
	assert.Equal(t, 512, cfg.BlockSize)
	assert.Equal(t, 128, cfg.QueueDepth)
	assert.True(t, cfg.NBD)
	assert.True(t, cfg.Ublk)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("VRAMBLK_SIZE", "4G")
	t.Setenv("VRAMBLK_BACKEND", "file")
	t.Setenv("VRAMBLK_PATH", "/tmp/disk.img")
	t.Setenv("VRAMBLK_VERBOSE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "4G", cfg.Size)
	assert.Equal(t, "file", cfg.Backend)
	assert.Equal(t, "/tmp/disk.img", cfg.Path)
	assert.True(t, cfg.Verbose)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Size:       "2048M",
			Backend:    "memory",
			ListenAddr: "127.0.0.1:10809",
			ExportName: "vram",
			BlockSize:  512,
			QueueDepth: 128,
			MaxConns:   64,
			NBD:        true,
			Ublk:       true,
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("bad size", func(t *testing.T) {
		cfg := base()
		cfg.Size = "10x"
		assert.Error(t, cfg.Validate())
	})

	t.Run("file backend without path", func(t *testing.T) {
		cfg := base()
		cfg.Backend = "file"
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := base()
		cfg.Backend = "tape"
		assert.Error(t, cfg.Validate())
	})

	t.Run("non power of two block size", func(t *testing.T) {
		cfg := base()
		cfg.BlockSize = 3
		assert.Error(t, cfg.Validate())
	})

	t.Run("both frontends disabled", func(t *testing.T) {
		cfg := base()
		cfg.NBD = false
		cfg.Ublk = false
		assert.Error(t, cfg.Validate())
	})
}
