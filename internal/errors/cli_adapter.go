package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// CLIErrorAdapter handles error presentation and exit code determination
// for the command line entrypoint.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
	}
}

// ExitCodeFor determines the appropriate exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	switch GetCategory(err) {
	case CategoryValidation:
		return 2 // Invalid usage
	case CategoryConflict:
		return 3 // Another build is running
	case CategoryNotFound:
		return 4 // Unknown session or resource
	case CategoryConfig:
		return 7 // Configuration error
	case CategoryProcess, CategoryBuild, CategoryTimeout:
		return 11 // Toolchain error
	case CategoryStorage, CategoryAnalytics:
		return 12 // Persistence error
	default:
		return 1 // General error
	}
}

// FormatError formats an error for user-friendly display.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	var bme *BuildMonError
	if !errors.As(err, &bme) {
		return fmt.Sprintf("Error: %v", err)
	}
	if a.verbose {
		return bme.Error()
	}
	switch bme.Category {
	case CategoryConfig, CategoryValidation:
		return bme.Message
	default:
		return fmt.Sprintf("%s: %s", bme.Category, bme.Message)
	}
}

// HandleError prints an error and exits the program with the mapped code.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}

	if a.shouldLog(err) {
		a.logError(err)
	}

	fmt.Fprintf(os.Stderr, "%s\n", a.FormatError(err))
	os.Exit(a.ExitCodeFor(err))
}

// shouldLog filters expected user-facing errors out of the log stream.
func (a *CLIErrorAdapter) shouldLog(err error) bool {
	if a.verbose {
		return true
	}
	var bme *BuildMonError
	if errors.As(err, &bme) {
		return bme.Category == CategoryInternal ||
			bme.Category == CategoryStorage ||
			bme.Severity == SeverityFatal
	}
	return true
}

func (a *CLIErrorAdapter) logError(err error) {
	var bme *BuildMonError
	if !errors.As(err, &bme) {
		a.logger.Error("Unclassified error", "error", err)
		return
	}

	attrs := []slog.Attr{
		slog.String("category", string(bme.Category)),
	}
	if bme.Retryable {
		attrs = append(attrs, slog.Bool("retryable", true))
	}
	a.logger.LogAttrs(context.Background(), levelForSeverity(bme.Severity), bme.Message, attrs...)
}

func levelForSeverity(severity ErrorSeverity) slog.Level {
	switch severity {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
