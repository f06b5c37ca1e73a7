package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/procfs"
)

// Process names that indicate an active compilation when their command
// line references a build tree.
var buildProcessNames = map[string]bool{
	"make": true, "gcc": true, "g++": true, "clang": true,
	"clang++": true, "ld": true, "ar": true, "ranlib": true,
	"cmake": true, "ninja": true, "cc": true, "c++": true,
	"collect2": true, "as": true,
}

const (
	ConflictDetected = "conflict_detected"
	ConflictClear    = "clear"

	conflictCmdlineCap = 100
	userHZ             = 100
)

// Conflict describes one process that would compete with a new build.
type Conflict struct {
	PID             int     `json:"pid"`
	Name            string  `json:"name"`
	Cmdline         string  `json:"cmdline"`
	DurationSeconds float64 `json:"duration_seconds"`
	Type            string  `json:"type"`
}

// ConflictReport is the result of a pre-start process scan.
type ConflictReport struct {
	Status    string     `json:"status"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// DetectConflicts scans /proc for running build processes and other
// monitor instances. Scan errors degrade to a clear report; refusing to
// build because /proc was unreadable would be worse than racing.
func DetectConflicts() *ConflictReport {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return &ConflictReport{Status: ConflictClear}
	}
	procs, err := fs.AllProcs()
	if err != nil {
		return &ConflictReport{Status: ConflictClear}
	}

	bootTime := uint64(0)
	if stat, err := fs.Stat(); err == nil {
		bootTime = stat.BootTime
	}

	self := os.Getpid()
	parent := os.Getppid()
	exeName := filepath.Base(os.Args[0])

	var conflicts []Conflict
	for _, p := range procs {
		if p.PID == self || p.PID == parent {
			continue
		}
		comm, err := p.Comm()
		if err != nil {
			continue
		}

		cmdline, _ := p.CmdLine()
		joined := strings.Join(cmdline, " ")

		var conflictType string
		switch {
		case buildProcessNames[comm]:
			lower := strings.ToLower(joined)
			if !strings.Contains(lower, "make") && !strings.Contains(lower, "cmake") &&
				!strings.Contains(lower, "build") {
				continue
			}
			conflictType = "build_process"
		case comm == exeName:
			conflictType = "monitor_instance"
		default:
			continue
		}

		var duration float64
		if bootTime > 0 {
			if ps, err := p.Stat(); err == nil {
				started := time.Unix(int64(bootTime+ps.Starttime/userHZ), 0)
				duration = time.Since(started).Seconds()
			}
		}

		if len(joined) > conflictCmdlineCap {
			joined = joined[:conflictCmdlineCap]
		}
		conflicts = append(conflicts, Conflict{
			PID:             p.PID,
			Name:            comm,
			Cmdline:         joined,
			DurationSeconds: duration,
			Type:            conflictType,
		})
	}

	if len(conflicts) == 0 {
		return &ConflictReport{Status: ConflictClear}
	}
	return &ConflictReport{
		Status:    ConflictDetected,
		Conflicts: conflicts,
		Message:   fmt.Sprintf("WARNING: %d conflicting build process(es) detected", len(conflicts)),
	}
}
