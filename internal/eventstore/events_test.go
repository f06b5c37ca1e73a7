package eventstore

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSessionStartedFields(t *testing.T) {
	e, err := NewSessionStarted(testBuildID, []string{"package_core", "package_net"},
		42.5, "abc12345", "incremental_rebuild", "low")
	if err != nil {
		t.Fatalf("NewSessionStarted: %v", err)
	}

	if e.BuildID() != testBuildID {
		t.Errorf("expected build id %s, got %s", testBuildID, e.BuildID())
	}
	if e.Type() != TypeSessionStarted {
		t.Errorf("expected type %s, got %s", TypeSessionStarted, e.Type())
	}
	if e.TargetKey() != "pkg_core_pkg_net" {
		t.Errorf("unexpected target key: %s", e.TargetKey())
	}

	var payload SessionStarted
	if err := json.Unmarshal(e.Payload(), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if len(payload.Targets) != 2 || payload.Targets[0] != "package_core" {
		t.Errorf("unexpected targets: %v", payload.Targets)
	}
	if payload.PredictedDuration != 42.5 {
		t.Errorf("expected predicted duration 42.5, got %v", payload.PredictedDuration)
	}
	if payload.Commit != "abc12345" {
		t.Errorf("unexpected commit: %s", payload.Commit)
	}
}

func TestConfigureFinishedFields(t *testing.T) {
	e, err := NewConfigureFinished(testBuildID, []string{"all"}, "failed", 1, 3*time.Second)
	if err != nil {
		t.Fatalf("NewConfigureFinished: %v", err)
	}
	if e.Type() != TypeConfigureFinished {
		t.Errorf("expected type %s, got %s", TypeConfigureFinished, e.Type())
	}

	var payload ConfigureFinished
	if err := json.Unmarshal(e.Payload(), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Status != "failed" || payload.ReturnCode != 1 {
		t.Errorf("unexpected payload: %+v", payload)
	}
	if payload.Duration != 3 {
		t.Errorf("expected duration 3s, got %v", payload.Duration)
	}
}

func TestBuildFinishedFields(t *testing.T) {
	e, err := NewBuildFinished(testBuildID, []string{"all"}, "completed", 0, 90*time.Second, 4, 0, "45%/800m")
	if err != nil {
		t.Fatalf("NewBuildFinished: %v", err)
	}

	var payload BuildFinished
	if err := json.Unmarshal(e.Payload(), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Status != "completed" || payload.WarningCount != 4 {
		t.Errorf("unexpected payload: %+v", payload)
	}
	if payload.ResourceSummary != "45%/800m" {
		t.Errorf("unexpected resource summary: %s", payload.ResourceSummary)
	}
}

func TestSessionTerminatedFields(t *testing.T) {
	e, err := NewSessionTerminated(testBuildID, []string{"all"}, true)
	if err != nil {
		t.Fatalf("NewSessionTerminated: %v", err)
	}
	if e.Type() != TypeSessionTerminated {
		t.Errorf("expected type %s, got %s", TypeSessionTerminated, e.Type())
	}

	var payload SessionTerminated
	if err := json.Unmarshal(e.Payload(), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if !payload.Forced {
		t.Error("expected forced termination flag")
	}
}

func TestAppendTypedEvent(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	e, err := NewSessionStarted(testBuildID, []string{"all"}, 0, "", "", "")
	if err != nil {
		t.Fatalf("NewSessionStarted: %v", err)
	}
	if err := AppendEvent(t.Context(), store, e); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	events, err := store.GetByBuildID(t.Context(), testBuildID)
	if err != nil {
		t.Fatalf("GetByBuildID: %v", err)
	}
	if len(events) != 1 || events[0].Type() != TypeSessionStarted {
		t.Fatalf("unexpected events: %v", events)
	}
}
