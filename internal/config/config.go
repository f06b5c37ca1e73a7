// Package config loads the buildmon settings file: YAML with ${ENV}
// expansion, an optional .env bootstrap, defaults applied after
// unmarshal and structured validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	Project       ProjectConfig       `yaml:"project"`
	Build         BuildConfig         `yaml:"build"`
	Data          DataConfig          `yaml:"data"`
	Events        EventsConfig        `yaml:"events"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Daemon        DaemonConfig        `yaml:"daemon"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ProjectConfig locates the source tree being built.
type ProjectConfig struct {
	Root     string `yaml:"root"`
	BuildDir string `yaml:"build_dir,omitempty"` // relative to Root unless absolute
}

// BuildConfig tunes the toolchain invocation.
type BuildConfig struct {
	Jobs             int    `yaml:"jobs,omitempty"` // 0 = number of CPUs
	MakeCommand      string `yaml:"make_command,omitempty"`
	ConfigureCommand string `yaml:"configure_command,omitempty"`
	ConfigureTimeout string `yaml:"configure_timeout,omitempty"`
	TerminateGrace   string `yaml:"terminate_grace,omitempty"`
}

// DataConfig locates the persisted analytics documents.
type DataConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// EventsConfig controls the sqlite build event log.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"` // relative to Data.Dir unless absolute
}

// MetricsConfig controls the Prometheus recorder.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NotificationsConfig controls the NATS lifecycle publisher.
type NotificationsConfig struct {
	Enabled bool   `yaml:"enabled"`
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
	Stream  string `yaml:"stream,omitempty"`
}

// DaemonConfig tunes daemon mode.
type DaemonConfig struct {
	Listen                 string `yaml:"listen,omitempty"`
	Watch                  bool   `yaml:"watch"`
	WatchDebounce          string `yaml:"watch_debounce,omitempty"`
	CleanupInterval        string `yaml:"cleanup_interval,omitempty"`
	DependencyScanInterval string `yaml:"dependency_scan_interval,omitempty"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // text, json
}

// Load reads the configuration file, expands ${ENV} references,
// applies defaults and validates.
func Load(configPath string) (*Config, error) {
	loadEnvFile()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration usable without a settings file, with
// the project root set to the working directory.
func Default() *Config {
	cfg := &Config{}
	if wd, err := os.Getwd(); err == nil {
		cfg.Project.Root = wd
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Project.BuildDir == "" {
		c.Project.BuildDir = "build"
	}
	if c.Build.Jobs <= 0 {
		c.Build.Jobs = runtime.NumCPU()
	}
	if c.Build.MakeCommand == "" {
		c.Build.MakeCommand = "make"
	}
	if c.Build.ConfigureCommand == "" {
		c.Build.ConfigureCommand = "cmake"
	}
	if c.Build.ConfigureTimeout == "" {
		c.Build.ConfigureTimeout = "300s"
	}
	if c.Build.TerminateGrace == "" {
		c.Build.TerminateGrace = "1s"
	}
	if c.Data.Dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Data.Dir = filepath.Join(home, ".buildmon")
		} else {
			c.Data.Dir = ".buildmon"
		}
	}
	if c.Events.Path == "" {
		c.Events.Path = "events.db"
	}
	if c.Notifications.NATSURL == "" {
		c.Notifications.NATSURL = "nats://localhost:4222"
	}
	if c.Notifications.Subject == "" {
		c.Notifications.Subject = "buildmon.sessions"
	}
	if c.Notifications.Stream == "" {
		c.Notifications.Stream = "BUILDMON"
	}
	if c.Daemon.Listen == "" {
		c.Daemon.Listen = ":8860"
	}
	if c.Daemon.WatchDebounce == "" {
		c.Daemon.WatchDebounce = "2s"
	}
	if c.Daemon.CleanupInterval == "" {
		c.Daemon.CleanupInterval = "24h"
	}
	if c.Daemon.DependencyScanInterval == "" {
		c.Daemon.DependencyScanInterval = "1h"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// BuildDir resolves the build directory against the project root.
func (c *Config) BuildDir() string {
	if filepath.IsAbs(c.Project.BuildDir) {
		return c.Project.BuildDir
	}
	return filepath.Join(c.Project.Root, c.Project.BuildDir)
}

// EventsPath resolves the event database path against the data dir.
func (c *Config) EventsPath() string {
	if filepath.IsAbs(c.Events.Path) {
		return c.Events.Path
	}
	return filepath.Join(c.Data.Dir, c.Events.Path)
}

// DataPath resolves a store filename against the data dir.
func (c *Config) DataPath(name string) string {
	return filepath.Join(c.Data.Dir, name)
}

// ConfigureTimeout returns the parsed configure step timeout. Validate
// guarantees the value parses.
func (c *Config) ConfigureTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Build.ConfigureTimeout)
	return d
}

// TerminateGrace returns the parsed termination grace window.
func (c *Config) TerminateGrace() time.Duration {
	d, _ := time.ParseDuration(c.Build.TerminateGrace)
	return d
}

// WatchDebounce returns the parsed watch debounce window.
func (c *Config) WatchDebounce() time.Duration {
	d, _ := time.ParseDuration(c.Daemon.WatchDebounce)
	return d
}

// CleanupInterval returns the parsed history cleanup interval.
func (c *Config) CleanupInterval() time.Duration {
	d, _ := time.ParseDuration(c.Daemon.CleanupInterval)
	return d
}

// DependencyScanInterval returns the parsed dependency scan interval.
func (c *Config) DependencyScanInterval() time.Duration {
	d, _ := time.ParseDuration(c.Daemon.DependencyScanInterval)
	return d
}
