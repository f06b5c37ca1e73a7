package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// loadEnvFile loads .env and .env.local from the working directory so
// ${VAR} references in the settings file resolve. Variables already
// present in the environment are never overridden.
func loadEnvFile() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			slog.Warn("Failed to load env file", "file", name, "error", err)
			continue
		}
		slog.Debug("Loaded environment file", "file", name)
	}
}
