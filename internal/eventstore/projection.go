// Package eventstore provides event sourcing primitives for build session tracking.
package eventstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const (
	sessionStatusRunning    = "running"
	sessionStatusCompleted  = "completed"
	sessionStatusFailed     = "failed"
	sessionStatusTerminated = "terminated"
)

// SessionSummary is a read model summarizing one build session.
type SessionSummary struct {
	BuildID         string        `json:"build_id"`
	Targets         []string      `json:"targets,omitempty"`
	Status          string        `json:"status"` // "running", "completed", "failed", "terminated"
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
	Duration        time.Duration `json:"duration,omitempty"`
	ReturnCode      int           `json:"return_code"`
	WarningCount    int           `json:"warning_count"`
	ErrorCount      int           `json:"error_count"`
	Commit          string        `json:"commit,omitempty"`
	ResourceSummary string        `json:"resource_summary,omitempty"`
}

// SessionHistoryProjection maintains an in-memory view of recent build
// sessions, reconstructed from events stored in the event store.
type SessionHistoryProjection struct {
	mu       sync.RWMutex
	store    Store
	sessions map[string]*SessionSummary // buildID -> summary
	history  []*SessionSummary          // ordered by start time, newest first
	maxSize  int
	lastSync time.Time
}

// NewSessionHistoryProjection creates a new projection backed by the given store.
func NewSessionHistoryProjection(store Store, maxHistorySize int) *SessionHistoryProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = 100
	}
	return &SessionHistoryProjection{
		store:    store,
		sessions: make(map[string]*SessionSummary),
		history:  make([]*SessionSummary, 0, maxHistorySize),
		maxSize:  maxHistorySize,
	}
}

// Rebuild reconstructs the projection from all events in the store.
// This is typically called at startup.
func (p *SessionHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.sessions = make(map[string]*SessionSummary)
	p.history = make([]*SessionSummary, 0, p.maxSize)

	for _, event := range events {
		p.applyEventLocked(event)
	}

	p.sortHistoryLocked()
	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}
	p.pruneSessionsLocked()

	p.lastSync = time.Now()
	return nil
}

// Apply processes a single event and updates the projection.
// This is used for real-time updates when events are emitted.
func (p *SessionHistoryProjection) Apply(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyEventLocked(event)
}

func (p *SessionHistoryProjection) applyEventLocked(event Event) {
	buildID := event.BuildID()
	if buildID == "" {
		return
	}

	summary, exists := p.sessions[buildID]
	if !exists {
		summary = &SessionSummary{
			BuildID:   buildID,
			Status:    sessionStatusRunning,
			StartedAt: event.Timestamp(),
		}
		p.sessions[buildID] = summary
	}

	switch event.Type() {
	case TypeSessionStarted:
		summary.StartedAt = event.Timestamp()
		summary.Status = sessionStatusRunning
		var payload struct {
			Targets []string `json:"targets"`
			Commit  string   `json:"commit"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			summary.Targets = payload.Targets
			summary.Commit = payload.Commit
		}

	case TypeConfigureFinished:
		var payload struct {
			Status     string `json:"status"`
			ReturnCode int    `json:"return_code"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil && payload.Status == "failed" {
			now := event.Timestamp()
			summary.FinishedAt = &now
			summary.Duration = now.Sub(summary.StartedAt)
			summary.Status = sessionStatusFailed
			summary.ReturnCode = payload.ReturnCode
			p.addToHistoryLocked(summary)
		}

	case TypeBuildFinished:
		now := event.Timestamp()
		summary.FinishedAt = &now
		summary.Duration = now.Sub(summary.StartedAt)
		summary.Status = sessionStatusCompleted
		var payload struct {
			Status          string `json:"status"`
			ReturnCode      int    `json:"return_code"`
			WarningCount    int    `json:"warning_count"`
			ErrorCount      int    `json:"error_count"`
			ResourceSummary string `json:"resource_summary"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			if payload.Status != "" {
				summary.Status = payload.Status
			}
			summary.ReturnCode = payload.ReturnCode
			summary.WarningCount = payload.WarningCount
			summary.ErrorCount = payload.ErrorCount
			summary.ResourceSummary = payload.ResourceSummary
		}
		p.addToHistoryLocked(summary)

	case TypeSessionTerminated:
		now := event.Timestamp()
		summary.FinishedAt = &now
		summary.Duration = now.Sub(summary.StartedAt)
		summary.Status = sessionStatusTerminated
		p.addToHistoryLocked(summary)
	}
}

// addToHistoryLocked adds a finished session to history if not already present.
func (p *SessionHistoryProjection) addToHistoryLocked(summary *SessionSummary) {
	for _, h := range p.history {
		if h.BuildID == summary.BuildID {
			return
		}
	}

	p.history = append([]*SessionSummary{summary}, p.history...)
	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}
	p.pruneSessionsLocked()
}

// pruneSessionsLocked removes finished sessions not present in the bounded
// history. It keeps any sessions that are still marked as running.
// Caller must hold p.mu (write lock).
func (p *SessionHistoryProjection) pruneSessionsLocked() {
	keep := make(map[string]struct{}, len(p.history))
	for _, h := range p.history {
		if h != nil {
			keep[h.BuildID] = struct{}{}
		}
	}

	for id, summary := range p.sessions {
		if summary != nil && summary.Status == sessionStatusRunning {
			continue
		}
		if _, ok := keep[id]; !ok {
			delete(p.sessions, id)
		}
	}
}

// sortHistoryLocked sorts history by start time, newest first.
func (p *SessionHistoryProjection) sortHistoryLocked() {
	// Simple insertion sort (history is usually small)
	for i := 1; i < len(p.history); i++ {
		for j := i; j > 0 && p.history[j].StartedAt.After(p.history[j-1].StartedAt); j-- {
			p.history[j], p.history[j-1] = p.history[j-1], p.history[j]
		}
	}
}

// GetHistory returns the session history, newest first.
func (p *SessionHistoryProjection) GetHistory() []*SessionSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*SessionSummary, len(p.history))
	copy(result, p.history)
	return result
}

// GetSession returns the summary for a specific build session.
func (p *SessionHistoryProjection) GetSession(buildID string) (*SessionSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	summary, exists := p.sessions[buildID]
	if !exists {
		return nil, false
	}
	cp := *summary
	return &cp, true
}

// GetActiveSession returns a currently running session if any.
func (p *SessionHistoryProjection) GetActiveSession() *SessionSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, summary := range p.sessions {
		if summary.Status == sessionStatusRunning {
			cp := *summary
			return &cp
		}
	}
	return nil
}

// GetLastFinishedSession returns the most recently finished session.
func (p *SessionHistoryProjection) GetLastFinishedSession() *SessionSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.history) == 0 {
		return nil
	}
	cp := *p.history[0]
	return &cp
}

// LastSyncTime returns when the projection was last synchronized.
func (p *SessionHistoryProjection) LastSyncTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}
