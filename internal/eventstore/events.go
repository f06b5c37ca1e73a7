package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/targetkey"
)

// Event type names as stored in the event_type column.
const (
	TypeSessionStarted    = "SessionStarted"
	TypeConfigureFinished = "ConfigureFinished"
	TypeBuildFinished     = "BuildFinished"
	TypeSessionTerminated = "SessionTerminated"
)

// SessionStarted is emitted when a build session is created.
type SessionStarted struct {
	BaseEvent
	Targets           []string `json:"targets"`
	PredictedDuration float64  `json:"predicted_duration,omitempty"`
	Commit            string   `json:"commit,omitempty"`
	Recommendation    string   `json:"recommendation,omitempty"`
	ChangeImpact      string   `json:"change_impact,omitempty"`
}

// NewSessionStarted creates a SessionStarted event.
func NewSessionStarted(buildID string, targets []string, predictedSeconds float64, commit, recommendation, impact string) (*SessionStarted, error) {
	e := &SessionStarted{
		Targets:           targets,
		PredictedDuration: predictedSeconds,
		Commit:            commit,
		Recommendation:    recommendation,
		ChangeImpact:      impact,
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Join(ErrMarshalPayloadFailed, err)
	}
	e.BaseEvent = newBaseEvent(buildID, targets, TypeSessionStarted, payload)
	return e, nil
}

// ConfigureFinished is emitted when the configure step ends, successfully or not.
type ConfigureFinished struct {
	BaseEvent
	Status     string  `json:"status"`
	ReturnCode int     `json:"return_code"`
	Duration   float64 `json:"duration"`
}

// NewConfigureFinished creates a ConfigureFinished event.
func NewConfigureFinished(buildID string, targets []string, status string, returnCode int, duration time.Duration) (*ConfigureFinished, error) {
	e := &ConfigureFinished{
		Status:     status,
		ReturnCode: returnCode,
		Duration:   duration.Seconds(),
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Join(ErrMarshalPayloadFailed, err)
	}
	e.BaseEvent = newBaseEvent(buildID, targets, TypeConfigureFinished, payload)
	return e, nil
}

// BuildFinished is emitted when the toolchain process exits.
type BuildFinished struct {
	BaseEvent
	Status          string  `json:"status"`
	ReturnCode      int     `json:"return_code"`
	Duration        float64 `json:"duration"`
	WarningCount    int     `json:"warning_count"`
	ErrorCount      int     `json:"error_count"`
	ResourceSummary string  `json:"resource_summary,omitempty"`
}

// NewBuildFinished creates a BuildFinished event.
func NewBuildFinished(buildID string, targets []string, status string, returnCode int, duration time.Duration, warningCount, errorCount int, resourceSummary string) (*BuildFinished, error) {
	e := &BuildFinished{
		Status:          status,
		ReturnCode:      returnCode,
		Duration:        duration.Seconds(),
		WarningCount:    warningCount,
		ErrorCount:      errorCount,
		ResourceSummary: resourceSummary,
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Join(ErrMarshalPayloadFailed, err)
	}
	e.BaseEvent = newBaseEvent(buildID, targets, TypeBuildFinished, payload)
	return e, nil
}

// SessionTerminated is emitted when a caller cancels a running session.
type SessionTerminated struct {
	BaseEvent
	Forced bool `json:"forced"`
}

// NewSessionTerminated creates a SessionTerminated event.
func NewSessionTerminated(buildID string, targets []string, forced bool) (*SessionTerminated, error) {
	e := &SessionTerminated{Forced: forced}
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Join(ErrMarshalPayloadFailed, err)
	}
	e.BaseEvent = newBaseEvent(buildID, targets, TypeSessionTerminated, payload)
	return e, nil
}

func newBaseEvent(buildID string, targets []string, eventType string, payload []byte) BaseEvent {
	return BaseEvent{
		EventBuildID:   buildID,
		EventTargetKey: targetkey.Joined(targets),
		EventType:      eventType,
		EventTimestamp: time.Now(),
		EventPayload:   payload,
	}
}

// AppendEvent stores a typed event through the Store interface.
func AppendEvent(ctx context.Context, store Store, event Event) error {
	return store.Append(ctx, event.BuildID(), event.TargetKey(), event.Type(), event.Payload())
}
