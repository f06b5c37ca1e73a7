package config

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Validate validates the complete configuration structure.
func (c *Config) Validate() error {
	validator := newConfigurationValidator(c)
	return validator.validate()
}

// configurationValidator coordinates validation across all configuration domains.
type configurationValidator struct {
	config *Config
}

func newConfigurationValidator(config *Config) *configurationValidator {
	return &configurationValidator{config: config}
}

// validate performs configuration validation using domain-specific methods.
func (cv *configurationValidator) validate() error {
	if err := cv.validateProject(); err != nil {
		return err
	}
	if err := cv.validateBuild(); err != nil {
		return err
	}
	if err := cv.validateNotifications(); err != nil {
		return err
	}
	if err := cv.validateDaemon(); err != nil {
		return err
	}
	if err := cv.validateLogging(); err != nil {
		return err
	}
	return nil
}

// validateProject validates the project tree settings.
func (cv *configurationValidator) validateProject() error {
	if cv.config.Project.Root == "" {
		return errors.New("project root cannot be empty")
	}
	info, err := os.Stat(cv.config.Project.Root)
	if err != nil {
		return fmt.Errorf("project root not accessible: %s: %w", cv.config.Project.Root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project root is not a directory: %s", cv.config.Project.Root)
	}
	return nil
}

// validateBuild validates the toolchain settings.
func (cv *configurationValidator) validateBuild() error {
	if cv.config.Build.Jobs < 1 {
		return fmt.Errorf("build jobs must be at least 1, got %d", cv.config.Build.Jobs)
	}
	if cv.config.Build.MakeCommand == "" {
		return errors.New("make_command cannot be empty")
	}
	if cv.config.Build.ConfigureCommand == "" {
		return errors.New("configure_command cannot be empty")
	}
	if err := cv.validateDuration("configure_timeout", cv.config.Build.ConfigureTimeout); err != nil {
		return err
	}
	if err := cv.validateDuration("terminate_grace", cv.config.Build.TerminateGrace); err != nil {
		return err
	}
	return nil
}

// validateNotifications validates the NATS publisher settings.
func (cv *configurationValidator) validateNotifications() error {
	if !cv.config.Notifications.Enabled {
		return nil
	}
	if cv.config.Notifications.NATSURL == "" {
		return errors.New("notifications enabled but nats_url is empty")
	}
	if cv.config.Notifications.Subject == "" {
		return errors.New("notifications enabled but subject is empty")
	}
	if cv.config.Notifications.Stream == "" {
		return errors.New("notifications enabled but stream is empty")
	}
	return nil
}

// validateDaemon validates daemon mode settings.
func (cv *configurationValidator) validateDaemon() error {
	if cv.config.Daemon.Listen == "" {
		return errors.New("daemon listen address cannot be empty")
	}
	if err := cv.validateDuration("watch_debounce", cv.config.Daemon.WatchDebounce); err != nil {
		return err
	}
	if err := cv.validateDuration("cleanup_interval", cv.config.Daemon.CleanupInterval); err != nil {
		return err
	}
	if err := cv.validateDuration("dependency_scan_interval", cv.config.Daemon.DependencyScanInterval); err != nil {
		return err
	}
	return nil
}

// validateLogging validates log handler settings.
func (cv *configurationValidator) validateLogging() error {
	switch cv.config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (allowed: debug|info|warn|error)", cv.config.Logging.Level)
	}
	switch cv.config.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (allowed: text|json)", cv.config.Logging.Format)
	}
	return nil
}

func (cv *configurationValidator) validateDuration(field, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %s: %w", field, value, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return nil
}
