package eventstore

import (
	"fmt"
	"testing"
	"time"
)

func startedEvent(t *testing.T, buildID string, targets []string) Event {
	t.Helper()
	e, err := NewSessionStarted(buildID, targets, 0, "deadbeef", "", "")
	if err != nil {
		t.Fatalf("NewSessionStarted: %v", err)
	}
	return e
}

func finishedEvent(t *testing.T, buildID, status string, code, warnings int) Event {
	t.Helper()
	e, err := NewBuildFinished(buildID, []string{"all"}, status, code, time.Minute, warnings, 0, "")
	if err != nil {
		t.Fatalf("NewBuildFinished: %v", err)
	}
	return e
}

func TestSessionHistoryProjection_ApplyEvents(t *testing.T) {
	p := NewSessionHistoryProjection(nil, 10)

	p.Apply(startedEvent(t, "s1", []string{"package_core"}))

	summary, ok := p.GetSession("s1")
	if !ok {
		t.Fatal("expected session s1")
	}
	if summary.Status != "running" {
		t.Errorf("expected running, got %s", summary.Status)
	}
	if len(summary.Targets) != 1 || summary.Targets[0] != "package_core" {
		t.Errorf("unexpected targets: %v", summary.Targets)
	}
	if summary.Commit != "deadbeef" {
		t.Errorf("unexpected commit: %s", summary.Commit)
	}

	p.Apply(finishedEvent(t, "s1", "completed", 0, 3))

	summary, ok = p.GetSession("s1")
	if !ok {
		t.Fatal("expected session s1 after completion")
	}
	if summary.Status != "completed" {
		t.Errorf("expected completed, got %s", summary.Status)
	}
	if summary.WarningCount != 3 {
		t.Errorf("expected 3 warnings, got %d", summary.WarningCount)
	}
	if summary.FinishedAt == nil {
		t.Error("expected FinishedAt to be set")
	}
	if len(p.GetHistory()) != 1 {
		t.Errorf("expected 1 history entry, got %d", len(p.GetHistory()))
	}
}

func TestSessionHistoryProjection_FailedConfigure(t *testing.T) {
	p := NewSessionHistoryProjection(nil, 10)
	p.Apply(startedEvent(t, "s1", nil))

	e, err := NewConfigureFinished("s1", []string{"all"}, "failed", 1, 2*time.Second)
	if err != nil {
		t.Fatalf("NewConfigureFinished: %v", err)
	}
	p.Apply(e)

	summary, ok := p.GetSession("s1")
	if !ok {
		t.Fatal("expected session s1")
	}
	if summary.Status != "failed" {
		t.Errorf("expected failed, got %s", summary.Status)
	}
	if summary.ReturnCode != 1 {
		t.Errorf("expected return code 1, got %d", summary.ReturnCode)
	}
}

func TestSessionHistoryProjection_Terminated(t *testing.T) {
	p := NewSessionHistoryProjection(nil, 10)
	p.Apply(startedEvent(t, "s1", nil))

	e, err := NewSessionTerminated("s1", []string{"all"}, true)
	if err != nil {
		t.Fatalf("NewSessionTerminated: %v", err)
	}
	p.Apply(e)

	summary, _ := p.GetSession("s1")
	if summary.Status != "terminated" {
		t.Errorf("expected terminated, got %s", summary.Status)
	}
}

func TestSessionHistoryProjection_Rebuild(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	for _, e := range []Event{
		startedEvent(t, "s1", []string{"all"}),
		finishedEvent(t, "s1", "completed", 0, 0),
		startedEvent(t, "s2", []string{"package_net"}),
	} {
		if err := AppendEvent(ctx, store, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	p := NewSessionHistoryProjection(store, 10)
	if err := p.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	if _, ok := p.GetSession("s1"); !ok {
		t.Error("expected s1 after rebuild")
	}
	active := p.GetActiveSession()
	if active == nil || active.BuildID != "s2" {
		t.Errorf("expected s2 active, got %v", active)
	}
	last := p.GetLastFinishedSession()
	if last == nil || last.BuildID != "s1" {
		t.Errorf("expected s1 last finished, got %v", last)
	}
	if p.LastSyncTime().IsZero() {
		t.Error("expected LastSyncTime to be set")
	}
}

func TestSessionHistoryProjection_HistoryLimit(t *testing.T) {
	p := NewSessionHistoryProjection(nil, 3)

	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("s%d", i)
		p.Apply(startedEvent(t, id, nil))
		p.Apply(finishedEvent(t, id, "completed", 0, 0))
	}

	if got := len(p.GetHistory()); got != 3 {
		t.Errorf("expected history capped at 3, got %d", got)
	}
}
