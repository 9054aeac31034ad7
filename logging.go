package vramblk

import "github.com/ehrlich-b/vramblk/internal/logging"

// Logger is the structured logger threaded through both frontends.
type Logger = logging.Logger

// LogConfig controls logger output, format, and level.
type LogConfig = logging.Config

// LogLevel selects the minimum level emitted.
type LogLevel = logging.LogLevel

// Log levels, lowest to highest severity.
const (
	LevelDebug = logging.LevelDebug
	LevelInfo  = logging.LevelInfo
	LevelWarn  = logging.LevelWarn
	LevelError = logging.LevelError
)

// NewLogger builds a logger from config; nil selects the defaults.
func NewLogger(config *LogConfig) *Logger {
	if config == nil {
		config = logging.DefaultConfig()
	}
	return logging.NewLogger(config)
}

// DefaultLogConfig returns info-level JSON logging to stderr.
func DefaultLogConfig() *LogConfig {
	return logging.DefaultConfig()
}
