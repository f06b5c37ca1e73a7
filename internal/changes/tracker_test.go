package changes

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildmon/internal/state"
)

func newTestTracker(t *testing.T) (*Tracker, string) {
	t.Helper()
	projectRoot := t.TempDir()
	store, err := state.NewJSONStore(filepath.Join(t.TempDir(), "build_tracker.json"))
	require.NoError(t, err)
	return NewTracker(projectRoot, store), projectRoot
}

func writeFile(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x\n"), 0644))
}

func touchFuture(t *testing.T, root, rel string) {
	t.Helper()
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(root, rel), future, future))
}

func TestDetectChanges_NoBaseline(t *testing.T) {
	tracker, root := newTestTracker(t)
	writeFile(t, root, "src/main.cpp")

	require.Nil(t, tracker.DetectChanges([]string{"core"}))
}

func TestDetectChanges_ConfigFileTriggersFullRebuild(t *testing.T) {
	tracker, root := newTestTracker(t)
	writeFile(t, root, "CMakeLists.txt")
	tracker.RecordSuccess(nil)

	touchFuture(t, root, "CMakeLists.txt")

	cs := tracker.DetectChanges(nil)
	require.NotNil(t, cs)
	require.Contains(t, cs.ConfigFilesChanged, "CMakeLists.txt")
	require.Equal(t, FullRebuild, Recommend(cs))
	require.Equal(t, ImpactHigh, Impact(cs))
}

func TestDetectChanges_IgnoredDirectoriesSkipped(t *testing.T) {
	tracker, root := newTestTracker(t)
	writeFile(t, root, "src/lib.cpp")
	tracker.RecordSuccess(nil)

	writeFile(t, root, "build/generated.cpp")
	writeFile(t, root, ".git/config.txt")
	touchFuture(t, root, "build/generated.cpp")

	require.Nil(t, tracker.DetectChanges(nil))
}

func TestDetectChanges_NothingChanged(t *testing.T) {
	tracker, root := newTestTracker(t)
	writeFile(t, root, "src/a.cpp")
	time.Sleep(10 * time.Millisecond)
	tracker.RecordSuccess(nil)

	require.Nil(t, tracker.DetectChanges(nil))
}

func TestRecommend_IncrementalForFewSourceChanges(t *testing.T) {
	cs := &ChangeSet{
		ChangedFiles: []string{"src/a.cpp", "src/b.cpp"},
		TotalChanges: 2,
	}
	require.Equal(t, IncrementalRebuild, Recommend(cs))
	require.Equal(t, ImpactLow, Impact(cs))
}

func TestRecommend_ManyChangesForceFullRebuild(t *testing.T) {
	var files []string
	for i := 0; i < 11; i++ {
		files = append(files, filepath.Join("src", string(rune('a'+i))+".cpp"))
	}
	// Spread across directories so clustering does not apply first.
	files[0] = "lib/x.cpp"
	files[1] = "app/y.cpp"
	files[2] = "util/z.cpp"
	files[3] = "net/w.cpp"

	cs := &ChangeSet{ChangedFiles: files, TotalChanges: len(files)}
	require.Equal(t, FullRebuild, Recommend(cs))
	require.Equal(t, ImpactHigh, Impact(cs))
}

func TestRecommend_HeaderChangesForceFullRebuild(t *testing.T) {
	cs := &ChangeSet{
		ChangedFiles: []string{"a/x.h", "b/y.h", "c/z.hpp", "d/w.hxx"},
		TotalChanges: 4,
	}
	require.Equal(t, FullRebuild, Recommend(cs))
}

func TestRecommend_ClusteredChangesAreTargeted(t *testing.T) {
	cs := &ChangeSet{
		ChangedFiles: []string{
			"src/net/a.cpp", "src/net/b.cpp", "src/net/c.cpp",
			"src/net/d.cpp", "src/crypto/e.cpp",
		},
		TotalChanges: 5,
	}
	require.Equal(t, TargetedRebuild, Recommend(cs))
	require.Equal(t, ImpactMedium, Impact(cs))
}

func TestRecommend_NilChangeSet(t *testing.T) {
	require.Equal(t, NoChanges, Recommend(nil))
	require.Equal(t, ImpactNone, Impact(nil))
}

func TestTrackerKey(t *testing.T) {
	require.Equal(t, "default_build", trackerKey(nil))
	require.Equal(t, trackerKey([]string{"b", "a"}), trackerKey([]string{"a", "b"}))
	require.Equal(t, "pkg_net_fast", trackerKey([]string{"package_net/fast"}))
}

func TestClear(t *testing.T) {
	tracker, root := newTestTracker(t)
	writeFile(t, root, "src/a.cpp")
	tracker.RecordSuccess([]string{"a"})
	tracker.RecordSuccess([]string{"b"})

	tracker.Clear([]string{"a"})
	require.Equal(t, []string{"b"}, tracker.Stats().TrackedTargets)

	tracker.Clear(nil)
	require.Empty(t, tracker.Stats().TrackedTargets)
	require.Zero(t, tracker.Stats().TotalMonitoredFiles)
}

func TestDetectChanges_ConcurrentWithRecordSuccess(t *testing.T) {
	tracker, root := newTestTracker(t)
	writeFile(t, root, "src/main.cpp")
	tracker.RecordSuccess([]string{"core"})
	touchFuture(t, root, "src/main.cpp")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			tracker.RecordSuccess([]string{"other"})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			tracker.DetectChanges([]string{"core"})
			tracker.Stats()
		}
	}()
	wg.Wait()

	stats := tracker.Stats()
	require.Equal(t, 21, stats.TotalSuccessfulBuilds)
}
