// Package gitinfo snapshots the project's git state at build start so
// build records can be correlated with the source revision they ran on.
package gitinfo

import (
	"log/slog"
	"os"
	"path/filepath"

	ggit "github.com/go-git/go-git/v5"
)

// Snapshot describes the repository state at one instant.
type Snapshot struct {
	Commit string `json:"commit"`
	Branch string `json:"branch,omitempty"`
	Dirty  bool   `json:"dirty"`
}

// Capture reads the HEAD commit, branch name and worktree cleanliness of
// the repository at projectRoot. Returns nil when projectRoot is not a
// git repository; builds outside version control are still valid.
func Capture(projectRoot string) *Snapshot {
	if _, err := os.Stat(filepath.Join(projectRoot, ".git")); err != nil {
		return nil
	}

	repo, err := ggit.PlainOpen(projectRoot)
	if err != nil {
		slog.Warn("Failed to open git repository", "path", projectRoot, "error", err)
		return nil
	}

	ref, err := repo.Head()
	if err != nil {
		slog.Warn("Failed to read HEAD", "path", projectRoot, "error", err)
		return nil
	}

	snapshot := &Snapshot{Commit: ref.Hash().String()}
	if ref.Name().IsBranch() {
		snapshot.Branch = ref.Name().Short()
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return snapshot
	}
	status, err := worktree.Status()
	if err != nil {
		return snapshot
	}
	snapshot.Dirty = !status.IsClean()
	return snapshot
}

// ShortCommit returns the abbreviated commit hash, or empty when no
// snapshot was captured.
func (s *Snapshot) ShortCommit() string {
	if s == nil || len(s.Commit) < 8 {
		return ""
	}
	return s.Commit[:8]
}
