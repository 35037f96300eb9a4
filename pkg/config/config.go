// Package config holds the explicit, caller-owned configuration for a lockstep run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	lserrors "github.com/odvcencio/lockstep/pkg/errors"
)

const (
	envBaseURL      = "LOCKSTEP_BASE_URL"
	envWaitTimeout  = "LOCKSTEP_WAIT_TIMEOUT"
	envWaitInterval = "LOCKSTEP_WAIT_INTERVAL"
	envTraceDir     = "LOCKSTEP_TRACE_DIR"
	envTraceBackend = "LOCKSTEP_TRACE_BACKEND"
	envLogLevel     = "LOCKSTEP_LOG_LEVEL"
	envDataDir      = "LOCKSTEP_DATA_DIR"
)

// Wait defaults applied by DefaultConfig.
const (
	DefaultWaitTimeout  = 60 * time.Second
	DefaultWaitInterval = 250 * time.Millisecond
)

// Trace store backends.
const (
	TraceBackendFile   = "file"
	TraceBackendSQLite = "sqlite"
)

// Config is the process-wide configuration for a lockstep run. It is passed
// explicitly to the coordinator; nothing in the module reads global state.
type Config struct {
	BaseURL      string            `yaml:"base_url"`
	AppFramework string            `yaml:"app_framework"`
	Wait         WaitConfig        `yaml:"wait"`
	Trace        TraceConfig       `yaml:"trace"`
	Log          LogConfig         `yaml:"log"`
	Coordinator  CoordinatorConfig `yaml:"coordinator"`
	Devices      Devices           `yaml:"devices"`
}

// WaitConfig holds the defaults used when a wait gets no explicit timeout or interval.
type WaitConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	Interval time.Duration `yaml:"interval"`
}

// TraceConfig selects where flows are persisted.
type TraceConfig struct {
	Backend    string `yaml:"backend"`
	Dir        string `yaml:"dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// LogConfig configures the zerolog logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CoordinatorConfig tunes broadcast fan-out.
type CoordinatorConfig struct {
	// MaxParallel caps concurrent device calls per broadcast. Zero means no cap.
	MaxParallel int `yaml:"max_parallel"`
}

// DefaultConfig returns the defaults.
func DefaultConfig() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Wait: WaitConfig{
			Timeout:  DefaultWaitTimeout,
			Interval: DefaultWaitInterval,
		},
		Trace: TraceConfig{
			Backend:    TraceBackendFile,
			Dir:        filepath.Join(dataDir, "flows"),
			SQLitePath: filepath.Join(dataDir, "flows.db"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Reset returns a fresh default configuration. It never mutates an existing
// instance, so tests can reset between cases without shared state.
func Reset() *Config {
	return DefaultConfig()
}

func defaultDataDir() string {
	if dir := strings.TrimSpace(os.Getenv(envDataDir)); dir != "" {
		return expandHomePath(dir)
	}
	if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
		return filepath.Join(home, ".lockstep")
	}
	return ".lockstep"
}

func expandHomePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/"))
	}
	return path
}

// Load returns the defaults merged with the YAML file at path (when non-empty)
// and then with environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) != "" {
		if err := loadAndMerge(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse merges YAML data into the defaults without consulting the environment.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := mergeYAML(cfg, data); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(expandHomePath(path))
	if err != nil {
		return lserrors.Wrap(err, lserrors.ErrCodeConfigLoad, "reading config").
			WithContext("path", path)
	}
	return mergeYAML(cfg, data)
}

func mergeYAML(cfg *Config, data []byte) error {
	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return lserrors.Wrap(err, lserrors.ErrCodeConfigParse, "parsing YAML")
	}
	mergeConfigs(cfg, &override)
	return nil
}

func mergeConfigs(base, override *Config) {
	if override.BaseURL != "" {
		base.BaseURL = override.BaseURL
	}
	if override.AppFramework != "" {
		base.AppFramework = override.AppFramework
	}
	if override.Wait.Timeout > 0 {
		base.Wait.Timeout = override.Wait.Timeout
	}
	if override.Wait.Interval > 0 {
		base.Wait.Interval = override.Wait.Interval
	}
	if override.Trace.Backend != "" {
		base.Trace.Backend = override.Trace.Backend
	}
	if override.Trace.Dir != "" {
		base.Trace.Dir = expandHomePath(override.Trace.Dir)
	}
	if override.Trace.SQLitePath != "" {
		base.Trace.SQLitePath = expandHomePath(override.Trace.SQLitePath)
	}
	if override.Log.Level != "" {
		base.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		base.Log.Format = override.Log.Format
	}
	if override.Coordinator.MaxParallel > 0 {
		base.Coordinator.MaxParallel = override.Coordinator.MaxParallel
	}
	if override.Devices.Len() > 0 {
		base.Devices = override.Devices
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(envBaseURL)); v != "" {
		cfg.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(envWaitTimeout)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return lserrors.Wrap(err, lserrors.ErrCodeConfigInvalid, "invalid "+envWaitTimeout)
		}
		cfg.Wait.Timeout = d
	}
	if v := strings.TrimSpace(os.Getenv(envWaitInterval)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return lserrors.Wrap(err, lserrors.ErrCodeConfigInvalid, "invalid "+envWaitInterval)
		}
		cfg.Wait.Interval = d
	}
	if v := strings.TrimSpace(os.Getenv(envTraceDir)); v != "" {
		cfg.Trace.Dir = expandHomePath(v)
	}
	if v := strings.TrimSpace(os.Getenv(envTraceBackend)); v != "" {
		cfg.Trace.Backend = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(envLogLevel)); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// Validate checks the configuration for values the run cannot work with.
func (c *Config) Validate() error {
	if c == nil {
		return lserrors.New(lserrors.ErrCodeConfigInvalid, "config is nil")
	}
	if c.Wait.Timeout <= 0 {
		return lserrors.New(lserrors.ErrCodeConfigInvalid, "wait.timeout must be positive")
	}
	if c.Wait.Interval <= 0 {
		return lserrors.New(lserrors.ErrCodeConfigInvalid, "wait.interval must be positive")
	}
	switch c.Trace.Backend {
	case TraceBackendFile:
		if strings.TrimSpace(c.Trace.Dir) == "" {
			return lserrors.New(lserrors.ErrCodeConfigInvalid, "trace.dir is required for the file backend")
		}
	case TraceBackendSQLite:
		if strings.TrimSpace(c.Trace.SQLitePath) == "" {
			return lserrors.New(lserrors.ErrCodeConfigInvalid, "trace.sqlite_path is required for the sqlite backend")
		}
	default:
		return lserrors.New(lserrors.ErrCodeConfigInvalid, fmt.Sprintf("unknown trace backend %q", c.Trace.Backend)).
			WithRemediation("use \"file\" or \"sqlite\"")
	}
	if c.Coordinator.MaxParallel < 0 {
		return lserrors.New(lserrors.ErrCodeConfigInvalid, "coordinator.max_parallel must not be negative")
	}
	for _, id := range c.Devices.IDs() {
		if strings.TrimSpace(id) == "" {
			return lserrors.New(lserrors.ErrCodeConfigInvalid, "device ids must not be empty")
		}
	}
	return nil
}

// YAML renders the configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
