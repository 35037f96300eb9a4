// Package logging builds the zerolog loggers used across lockstep.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/odvcencio/lockstep/pkg/config"
)

// Category represents the subsystem generating the log
type Category string

const (
	CategorySession     Category = "session"
	CategoryProxy       Category = "proxy"
	CategoryWait        Category = "wait"
	CategoryTrace       Category = "trace"
	CategoryCoordinator Category = "coordinator"
	CategoryCLI         Category = "cli"
)

// Field names shared by every component.
const (
	FieldCategory = "category"
	FieldDeviceID = "device_id"
	FieldCommand  = "command"
	FieldFlowID   = "flow_id"
)

// New creates a logger writing to w using the configured level and format.
// A nil w writes to stderr.
func New(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	return zerolog.New(consoleWriter(cfg, w)).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
}

func consoleWriter(cfg config.LogConfig, w io.Writer) io.Writer {
	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		return zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return w
}

// Nop returns a disabled logger.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// For returns a child logger tagged with a category.
func For(logger zerolog.Logger, category Category) zerolog.Logger {
	return logger.With().Str(FieldCategory, string(category)).Logger()
}

// ParseLevel converts a string level into zerolog.Level with a safe default.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// RunLogger mirrors a run's events into <baseDir>/runs/<flowID>.jsonl in
// addition to the console logger.
type RunLogger struct {
	logger zerolog.Logger
	file   *os.File
	path   string
	mu     sync.Mutex
	closed bool
}

// NewRunLogger creates a logger that writes JSON lines for one flow next to
// the console output.
func NewRunLogger(baseDir, flowID string, cfg config.LogConfig, console io.Writer) (*RunLogger, error) {
	runsDir := filepath.Join(baseDir, "runs")
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create runs directory: %w", err)
	}

	path := filepath.Join(runsDir, flowID+".jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}

	multi := zerolog.MultiLevelWriter(consoleWriter(cfg, console), file)
	logger := zerolog.New(multi).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str(FieldFlowID, flowID).
		Logger()

	return &RunLogger{logger: logger, file: file, path: path}, nil
}

// Logger returns the combined logger.
func (r *RunLogger) Logger() zerolog.Logger {
	return r.logger
}

// Path returns the JSON lines file.
func (r *RunLogger) Path() string {
	return r.path
}

// Close closes the run log file.
func (r *RunLogger) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}
