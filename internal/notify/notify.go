// Package notify publishes build session lifecycle events to NATS JetStream.
//
// Publishing is optional. Callers construct either a NATSPublisher or the
// NoopPublisher depending on configuration, and the rest of the code talks
// to the Publisher interface without caring which one it got.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// SessionEvent is the payload published for every session state change.
type SessionEvent struct {
	BuildID         string    `json:"build_id"`
	Status          string    `json:"status"`
	Targets         []string  `json:"targets,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	WarningCount    int       `json:"warning_count,omitempty"`
	ErrorCount      int       `json:"error_count,omitempty"`
	Hostname        string    `json:"hostname,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Publisher delivers session lifecycle events to interested subscribers.
type Publisher interface {
	PublishSessionEvent(event *SessionEvent) error
	Close() error
}

// NoopPublisher discards all events. Used when notifications are disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishSessionEvent(*SessionEvent) error { return nil }
func (NoopPublisher) Close() error                            { return nil }

// NATSPublisher publishes session events to a JetStream subject.
type NATSPublisher struct {
	conn     *nats.Conn
	js       jetstream.JetStream
	subject  string
	stream   string
	hostname string
}

// NewNATSPublisher connects to NATS and ensures the target stream exists.
func NewNATSPublisher(url, subject, stream string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	hostname, _ := os.Hostname()

	p := &NATSPublisher{
		conn:     conn,
		js:       js,
		subject:  subject,
		stream:   stream,
		hostname: hostname,
	}

	if err := p.ensureStream(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	slog.Info("NATS publisher initialized for session notifications",
		"url", url,
		"subject", subject,
		"stream", stream)

	return p, nil
}

// ensureStream creates or updates the JetStream stream backing the subject.
func (p *NATSPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        p.stream,
		Description: "Build session lifecycle notifications",
		Subjects:    []string{p.subject},
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// PublishSessionEvent publishes a session lifecycle event.
func (p *NATSPublisher) PublishSessionEvent(event *SessionEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	event.Timestamp = time.Now()
	if event.Hostname == "" {
		event.Hostname = p.hostname
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = p.js.Publish(ctx, p.subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	slog.Debug("Published session event",
		"build_id", event.BuildID,
		"status", event.Status)

	return nil
}

// Close closes the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}

// NewPublisher returns a NATSPublisher when enabled, NoopPublisher otherwise.
func NewPublisher(enabled bool, url, subject, stream string) (Publisher, error) {
	if !enabled {
		return NoopPublisher{}, nil
	}
	return NewNATSPublisher(url, subject, stream)
}
