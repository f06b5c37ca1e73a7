package eventstore

import "time"

// Event represents a domain event in a build session's lifecycle.
type Event interface {
	// ID returns the unique identifier for this event.
	ID() int64
	// BuildID returns the build session identifier this event belongs to.
	BuildID() string
	// TargetKey returns the canonical key of the targets being built.
	TargetKey() string
	// Type returns the event type name.
	Type() string
	// Timestamp returns when the event occurred.
	Timestamp() time.Time
	// Payload returns the event data as bytes.
	Payload() []byte
}

// BaseEvent provides a default implementation of Event.
type BaseEvent struct {
	EventID        int64
	EventBuildID   string
	EventTargetKey string
	EventType      string
	EventTimestamp time.Time
	EventPayload   []byte
}

func (e *BaseEvent) ID() int64            { return e.EventID }
func (e *BaseEvent) BuildID() string      { return e.EventBuildID }
func (e *BaseEvent) TargetKey() string    { return e.EventTargetKey }
func (e *BaseEvent) Type() string         { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time { return e.EventTimestamp }
func (e *BaseEvent) Payload() []byte      { return e.EventPayload }
