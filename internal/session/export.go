package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bmerrors "git.home.luguber.info/inful/buildmon/internal/errors"
)

const exportMaxAge = time.Hour

// SaveOutput writes a session's captured output to path, generating a
// timestamped file under the system temp directory when path is empty.
// Returns the path written. Stale exports from earlier runs are swept
// on every call.
func (m *Manager) SaveOutput(id, path string) (string, error) {
	s := m.get(id)
	if s == nil {
		return "", bmerrors.NotFound(fmt.Sprintf("unknown session: %s", id))
	}

	if path == "" {
		target := "full_build"
		if targets := s.Targets(); len(targets) > 0 {
			target = strings.ReplaceAll(targets[0], "/", "_")
		}
		path = filepath.Join(os.TempDir(),
			fmt.Sprintf("make_output_%s_%d.log", target, time.Now().Unix()))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Build output for: %s\n", strings.Join(s.Targets(), " "))
	fmt.Fprintf(&b, "# Build ID: %s\n", s.BuildID())
	fmt.Fprintf(&b, "# Status: %s\n", s.Status())
	fmt.Fprintf(&b, "# Generated: %s\n\n", time.Now().Format(time.RFC3339))
	for _, line := range s.allOutput() {
		b.WriteString(line)
		b.WriteString("\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", bmerrors.StorageError("write output export", err)
	}

	removed := CleanupExports(exportMaxAge)
	if removed > 0 {
		m.logger.Debug("Removed stale output exports", "count", removed)
	}
	return path, nil
}

// CleanupExports removes exported output files older than maxAge and
// returns how many were deleted.
func CleanupExports(maxAge time.Duration) int {
	pattern := filepath.Join(os.TempDir(), "make_output_*.log")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if os.Remove(path) == nil {
				removed++
			}
		}
	}
	return removed
}
