package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildmon/internal/changes"
	"git.home.luguber.info/inful/buildmon/internal/deps"
	bmerrors "git.home.luguber.info/inful/buildmon/internal/errors"
	"git.home.luguber.info/inful/buildmon/internal/fixes"
	"git.home.luguber.info/inful/buildmon/internal/health"
	"git.home.luguber.info/inful/buildmon/internal/history"
	"git.home.luguber.info/inful/buildmon/internal/sampler"
	"git.home.luguber.info/inful/buildmon/internal/state"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func newStore(t *testing.T, dir, name string) *state.JSONStore {
	t.Helper()
	store, err := state.NewJSONStore(filepath.Join(dir, name))
	require.NoError(t, err)
	return store
}

func clearConflicts() *ConflictReport {
	return &ConflictReport{Status: ConflictClear}
}

// newTestManager wires a Manager against temp-dir stores, a scripted
// toolchain and no resource sampler.
func newTestManager(t *testing.T, opts Options) (*Manager, string) {
	t.Helper()
	dataDir := t.TempDir()
	if opts.ProjectRoot == "" {
		opts.ProjectRoot = t.TempDir()
	}
	if opts.BuildDir == "" {
		opts.BuildDir = opts.ProjectRoot
	}
	if opts.DetectConflicts == nil {
		opts.DetectConflicts = clearConflicts
	}
	if opts.TerminateGrace == 0 {
		opts.TerminateGrace = 200 * time.Millisecond
	}

	d := Deps{
		Predictor:  history.NewPredictor(newStore(t, dataDir, "history.json")),
		Changes:    changes.NewTracker(opts.ProjectRoot, newStore(t, dataDir, "changes.json")),
		DepTracker: deps.NewTracker(opts.ProjectRoot, newStore(t, dataDir, "deps.json")),
		Health:     health.NewScorer(newStore(t, dataDir, "health.json")),
		Advisor:    fixes.NewAdvisor(newStore(t, dataDir, "fixes.json")),
		Snapshots:  newStore(t, dataDir, "sessions.json"),
		NewSampler: func() *sampler.Sampler { return nil },
	}
	return NewManager(opts, d), dataDir
}

func fg() *bool { b := false; return &b }
func bg() *bool { b := true; return &b }

func TestStartForegroundCompletes(t *testing.T) {
	scriptDir := t.TempDir()
	makeCmd := writeScript(t, scriptDir, "fakemake",
		`echo "[ 50%] Building CXX object app.o"
echo "[100%] Built target app"
exit 0`)

	m, _ := newTestManager(t, Options{MakeCommand: makeCmd})

	rep, err := m.Start(context.Background(), StartRequest{
		Targets:    []string{"app"},
		Background: fg(),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, rep.Status)
	require.NotNil(t, rep.ReturnCode)
	assert.Equal(t, 0, *rep.ReturnCode)
	assert.NotEmpty(t, rep.BuildID)
	assert.Len(t, rep.BuildID, 8)

	lines, total, err := m.Output(rep.BuildID, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Contains(t, lines, "[100%] Built target app")
}

func TestStartRecordsHistoryOnSuccess(t *testing.T) {
	scriptDir := t.TempDir()
	makeCmd := writeScript(t, scriptDir, "fakemake", `echo done; exit 0`)

	m, _ := newTestManager(t, Options{MakeCommand: makeCmd})

	_, err := m.Start(context.Background(), StartRequest{
		Targets:    []string{"app"},
		Background: fg(),
	})
	require.NoError(t, err)

	stats, ok := m.deps.Predictor.Statistics([]string{"app"})
	require.True(t, ok)
	assert.Equal(t, 1, stats.BuildCount)
}

func TestStartFailedBuild(t *testing.T) {
	scriptDir := t.TempDir()
	makeCmd := writeScript(t, scriptDir, "fakemake",
		`echo "main.c:10:5: error: 'x' undeclared (first use in this function)"
exit 2`)

	m, _ := newTestManager(t, Options{MakeCommand: makeCmd})

	rep, err := m.Start(context.Background(), StartRequest{
		Targets:    []string{"app"},
		Background: fg(),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, rep.Status)
	require.NotNil(t, rep.ReturnCode)
	assert.Equal(t, 2, *rep.ReturnCode)
	assert.GreaterOrEqual(t, rep.ErrorCount, 1)
	require.NotEmpty(t, rep.Errors)
	assert.Equal(t, "main.c", rep.Errors[0].File)

	// Failed builds never update the duration history.
	_, ok := m.deps.Predictor.Statistics([]string{"app"})
	assert.False(t, ok)
}

func TestStartSpawnFailureReturnsFailedSession(t *testing.T) {
	m, _ := newTestManager(t, Options{MakeCommand: "/nonexistent/toolchain"})

	rep, err := m.Start(context.Background(), StartRequest{
		Targets:    []string{"app"},
		Background: fg(),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rep.Status)
	assert.NotEmpty(t, rep.Message)
}

func TestStartInvalidTarget(t *testing.T) {
	m, _ := newTestManager(t, Options{MakeCommand: "true"})

	_, err := m.Start(context.Background(), StartRequest{
		Targets: []string{"app; rm -rf /tmp"},
	})
	require.Error(t, err)
	assert.True(t, bmerrors.IsCategory(err, bmerrors.CategoryValidation))
}

func TestStartBackgroundReturnsImmediately(t *testing.T) {
	scriptDir := t.TempDir()
	makeCmd := writeScript(t, scriptDir, "fakemake",
		`echo "[ 25%] Building"
sleep 0.3
echo "[100%] Built target all"
exit 0`)

	m, _ := newTestManager(t, Options{MakeCommand: makeCmd})

	started := time.Now()
	rep, err := m.Start(context.Background(), StartRequest{
		Targets:    []string{"all"},
		Background: bg(),
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 250*time.Millisecond)
	assert.Equal(t, StatusBackground, rep.Status)
	assert.True(t, rep.Background)
	assert.NotEmpty(t, rep.StatusFilePath)
	t.Cleanup(func() { _ = os.Remove(rep.StatusFilePath) })

	require.Eventually(t, func() bool {
		status, err := m.Status(rep.BuildID)
		return err == nil && status.Status == StatusCompleted
	}, 5*time.Second, 50*time.Millisecond)

	sf, err := ReadStatusFile(rep.StatusFilePath)
	require.NoError(t, err)
	require.NotNil(t, sf)
	assert.Equal(t, "completed", sf.Status)
	require.NotNil(t, sf.ReturnCode)
	assert.Equal(t, 0, *sf.ReturnCode)
	assert.NotEmpty(t, sf.Output)
}

func TestTerminateStubbornProcess(t *testing.T) {
	scriptDir := t.TempDir()
	makeCmd := writeScript(t, scriptDir, "fakemake",
		`trap '' TERM
echo building
sleep 30`)

	m, _ := newTestManager(t, Options{MakeCommand: makeCmd})

	rep, err := m.Start(context.Background(), StartRequest{
		Targets:    []string{"app"},
		Background: bg(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(rep.StatusFilePath) })

	// Let the shell install its trap before signalling.
	time.Sleep(200 * time.Millisecond)

	status, err := m.Terminate(context.Background(), rep.BuildID)
	require.NoError(t, err)
	assert.Equal(t, StatusTerminated, status)

	// A second terminate on the terminal session is a no-op.
	again, err := m.Terminate(context.Background(), rep.BuildID)
	require.NoError(t, err)
	assert.Equal(t, StatusTerminated, again)

	// Terminated sessions never pollute the duration history.
	_, ok := m.deps.Predictor.Statistics([]string{"app"})
	assert.False(t, ok)
}

func TestTerminateUnknownSession(t *testing.T) {
	m, _ := newTestManager(t, Options{MakeCommand: "true"})
	_, err := m.Terminate(context.Background(), "ffffffff")
	require.Error(t, err)
	assert.True(t, bmerrors.IsNotFound(err))
}

func TestConflictRefusal(t *testing.T) {
	scriptDir := t.TempDir()
	makeCmd := writeScript(t, scriptDir, "fakemake", `exit 0`)

	conflict := &ConflictReport{
		Status:  ConflictDetected,
		Message: "WARNING: 1 conflicting build process(es) detected",
		Conflicts: []Conflict{
			{PID: 4242, Name: "make", Cmdline: "make -j8 all", Type: "build_process"},
		},
	}
	m, _ := newTestManager(t, Options{
		MakeCommand:     makeCmd,
		DetectConflicts: func() *ConflictReport { return conflict },
	})

	rep, err := m.Start(context.Background(), StartRequest{
		Targets:    []string{"app"},
		Background: fg(),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConflict, rep.Status)
	require.NotNil(t, rep.ReturnCode)
	assert.Equal(t, 2, *rep.ReturnCode)
	assert.NotNil(t, rep.Conflicts)
	assert.Contains(t, rep.Message, "WARNING")

	// Force bypasses the scan entirely.
	rep, err = m.Start(context.Background(), StartRequest{
		Targets:    []string{"app"},
		Background: fg(),
		Force:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rep.Status)
}

func TestConfigureOnly(t *testing.T) {
	scriptDir := t.TempDir()
	marker := filepath.Join(scriptDir, "make-ran")
	cmake := writeScript(t, scriptDir, "fakecmake",
		`echo "-- Found OpenSSL: /usr/lib (found version 3.0)"
echo "-- Configuring done"
exit 0`)
	makeCmd := writeScript(t, scriptDir, "fakemake", `touch `+marker+`; exit 0`)

	m, _ := newTestManager(t, Options{MakeCommand: makeCmd, ConfigureCommand: cmake})

	rep, err := m.Start(context.Background(), StartRequest{
		Targets:       []string{"app"},
		Background:    fg(),
		ConfigureOnly: true,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rep.Status)
	assert.Equal(t, "cmake_complete", rep.Reason)

	_, statErr := os.Stat(marker)
	assert.True(t, os.IsNotExist(statErr), "build step must not run in configure-only mode")

	// Configure-only runs carry no build duration for the history.
	_, ok := m.deps.Predictor.Statistics([]string{"app"})
	assert.False(t, ok)
}

func TestConfigureFailureSkipsBuild(t *testing.T) {
	scriptDir := t.TempDir()
	marker := filepath.Join(scriptDir, "make-ran")
	cmake := writeScript(t, scriptDir, "fakecmake",
		`echo "CMake Error at CMakeLists.txt:12 (find_package): Could not find ZLIB"
exit 1`)
	makeCmd := writeScript(t, scriptDir, "fakemake", `touch `+marker+`; exit 0`)

	m, _ := newTestManager(t, Options{MakeCommand: makeCmd, ConfigureCommand: cmake})

	rep, err := m.Start(context.Background(), StartRequest{
		Targets:      []string{"app"},
		Background:   fg(),
		RunConfigure: true,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rep.Status)
	assert.Equal(t, "cmake_failed", rep.Reason)

	_, statErr := os.Stat(marker)
	assert.True(t, os.IsNotExist(statErr), "build step must not run after a failed configure")
}

func TestStatusUnknownSession(t *testing.T) {
	m, _ := newTestManager(t, Options{MakeCommand: "true"})
	_, err := m.Status("ffffffff")
	require.Error(t, err)
	assert.True(t, bmerrors.IsNotFound(err))
}

func TestOutputClampsRequestedLines(t *testing.T) {
	scriptDir := t.TempDir()
	makeCmd := writeScript(t, scriptDir, "fakemake",
		`i=0
while [ $i -lt 150 ]; do echo "line $i"; i=$((i+1)); done
exit 0`)

	m, _ := newTestManager(t, Options{MakeCommand: makeCmd})

	rep, err := m.Start(context.Background(), StartRequest{
		Targets:    []string{"app"},
		Background: fg(),
	})
	require.NoError(t, err)

	lines, total, err := m.Output(rep.BuildID, 500)
	require.NoError(t, err)
	assert.Equal(t, 150, total)
	assert.Len(t, lines, maxOutputQueryLines)
	assert.Equal(t, "line 149", lines[len(lines)-1])
}

func TestSnapshotsSurviveRestart(t *testing.T) {
	scriptDir := t.TempDir()
	makeCmd := writeScript(t, scriptDir, "fakemake", `exit 0`)

	opts := Options{MakeCommand: makeCmd, DetectConflicts: clearConflicts}
	opts.ProjectRoot = t.TempDir()
	opts.BuildDir = opts.ProjectRoot

	dataDir := t.TempDir()
	snapshots := newStore(t, dataDir, "sessions.json")

	m := NewManager(opts, Deps{
		Snapshots:  snapshots,
		NewSampler: func() *sampler.Sampler { return nil },
	})
	rep, err := m.Start(context.Background(), StartRequest{
		Targets:    []string{"app"},
		Background: fg(),
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, rep.Status)

	restarted := NewManager(opts, Deps{
		Snapshots:  snapshots,
		NewSampler: func() *sampler.Sampler { return nil },
	})
	status, err := restarted.Status(rep.BuildID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status.Status)
}

func TestListSessions(t *testing.T) {
	scriptDir := t.TempDir()
	makeCmd := writeScript(t, scriptDir, "fakemake", `exit 0`)

	m, _ := newTestManager(t, Options{MakeCommand: makeCmd})
	for range 3 {
		_, err := m.Start(context.Background(), StartRequest{
			Targets:    []string{"app"},
			Background: fg(),
		})
		require.NoError(t, err)
	}

	assert.Len(t, m.List(), 3)
}

func TestSaveOutputWritesHeaderAndLines(t *testing.T) {
	scriptDir := t.TempDir()
	makeCmd := writeScript(t, scriptDir, "fakemake", `echo "Built target app"; exit 0`)

	m, _ := newTestManager(t, Options{MakeCommand: makeCmd})
	rep, err := m.Start(context.Background(), StartRequest{
		Targets:    []string{"app"},
		Background: fg(),
	})
	require.NoError(t, err)

	exportPath := filepath.Join(t.TempDir(), "export.log")
	got, err := m.SaveOutput(rep.BuildID, exportPath)
	require.NoError(t, err)
	assert.Equal(t, exportPath, got)

	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Build ID: "+rep.BuildID)
	assert.Contains(t, string(data), "Built target app")
}
