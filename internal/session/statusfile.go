package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StatusFile is the cross-process progress channel for background
// builds: one small JSON document a detached poller can read without
// talking to the orchestrator.
type StatusFile struct {
	Progress   string   `json:"progress,omitempty"`
	Status     string   `json:"status"`
	ReturnCode *int     `json:"return_code,omitempty"`
	PID        int      `json:"pid"`
	Output     []string `json:"output,omitempty"`
	LastUpdate float64  `json:"last_update"`
}

const statusFileOutputLines = 50

func statusFilePath(pid int, now time.Time) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("make-progress-%d-%d.json", pid, now.Unix()))
}

func writeStatusFile(path string, sf StatusFile) error {
	sf.LastUpdate = float64(time.Now().UnixNano()) / float64(time.Second)

	data, err := json.Marshal(sf)
	if err != nil {
		return fmt.Errorf("failed to marshal status file: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write status file: %w", err)
	}
	return nil
}

// ReadStatusFile loads a background status document. Returns nil with
// no error when the file does not exist.
func ReadStatusFile(path string) (*StatusFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}

	var sf StatusFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to decode status file: %w", err)
	}
	return &sf, nil
}
