package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	exampleConfig := Config{
		Project: ProjectConfig{
			Root:     "/path/to/project",
			BuildDir: "build",
		},
		Build: BuildConfig{
			Jobs:             0,
			ConfigureTimeout: "300s",
			TerminateGrace:   "1s",
		},
		Events: EventsConfig{
			Enabled: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
		Notifications: NotificationsConfig{
			Enabled: false,
			NATSURL: "nats://localhost:4222",
			Subject: "buildmon.sessions",
			Stream:  "BUILDMON",
		},
		Daemon: DaemonConfig{
			Listen:        ":8860",
			Watch:         true,
			WatchDebounce: "2s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}

	data, err := yaml.Marshal(&exampleConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
