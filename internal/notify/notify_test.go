package notify

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNoopPublisherDiscardsEvents(t *testing.T) {
	var p Publisher = NoopPublisher{}

	err := p.PublishSessionEvent(&SessionEvent{BuildID: "a1b2c3d4", Status: "completed"})
	if err != nil {
		t.Errorf("noop publish returned error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("noop close returned error: %v", err)
	}
}

func TestNewPublisherDisabledReturnsNoop(t *testing.T) {
	p, err := NewPublisher(false, "nats://localhost:4222", "buildmon.sessions", "BUILDMON")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(NoopPublisher); !ok {
		t.Errorf("expected NoopPublisher, got %T", p)
	}
}

func TestSessionEventJSON(t *testing.T) {
	event := SessionEvent{
		BuildID:         "a1b2c3d4",
		Status:          "failed",
		Targets:         []string{"package_core"},
		DurationSeconds: 42.5,
		ErrorCount:      3,
		Timestamp:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["build_id"] != "a1b2c3d4" {
		t.Errorf("unexpected build_id: %v", decoded["build_id"])
	}
	if decoded["status"] != "failed" {
		t.Errorf("unexpected status: %v", decoded["status"])
	}
	if _, present := decoded["warning_count"]; present {
		t.Error("zero warning_count should be omitted")
	}
}
