package eventstore

import (
	"context"
	"time"
)

// Store defines the interface for persisting and retrieving build events.
type Store interface {
	// Append adds a new event to the store.
	Append(ctx context.Context, buildID, targetKey, eventType string, payload []byte) error

	// GetByBuildID retrieves all events for a specific build session.
	GetByBuildID(ctx context.Context, buildID string) ([]Event, error)

	// GetByTargetKey retrieves all events recorded for a target key.
	GetByTargetKey(ctx context.Context, targetKey string) ([]Event, error)

	// GetRange retrieves events within a time range.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	// Close closes the store and releases resources.
	Close() error
}
