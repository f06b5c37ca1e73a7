package daemon

import (
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/version"
)

// HealthStatus represents the overall health of the daemon.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a single health check result.
type HealthCheck struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// HealthResponse is the complete /healthz payload.
type HealthResponse struct {
	Status         HealthStatus  `json:"status"`
	Timestamp      time.Time     `json:"timestamp"`
	Uptime         string        `json:"uptime"`
	Version        string        `json:"version"`
	ActiveSessions int           `json:"active_sessions"`
	Checks         []HealthCheck `json:"checks"`
}

// PerformHealthChecks executes all health checks and aggregates the
// overall status.
func (d *Daemon) PerformHealthChecks() *HealthResponse {
	checks := []HealthCheck{
		d.checkProjectRoot(),
		d.checkScheduler(),
		d.checkSessions(),
	}

	overall := HealthStatusHealthy
	for _, check := range checks {
		switch check.Status {
		case HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if overall == HealthStatusHealthy {
				overall = HealthStatusDegraded
			}
		}
	}

	active := 0
	for _, rep := range d.deps.Manager.List() {
		if !rep.Status.Terminal() {
			active++
		}
	}

	return &HealthResponse{
		Status:         overall,
		Timestamp:      time.Now(),
		Uptime:         d.Uptime().Round(time.Second).String(),
		Version:        version.Version,
		ActiveSessions: active,
		Checks:         checks,
	}
}

// checkProjectRoot verifies the monitored tree is still readable and
// writable enough to run builds.
func (d *Daemon) checkProjectRoot() HealthCheck {
	check := HealthCheck{Name: "project_root", Status: HealthStatusHealthy}

	info, err := os.Stat(d.cfg.Project.Root)
	if err != nil || !info.IsDir() {
		check.Status = HealthStatusUnhealthy
		check.Message = "project root not accessible: " + d.cfg.Project.Root
		return check
	}

	probe := filepath.Join(d.cfg.Project.Root, ".buildmon-health")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		check.Status = HealthStatusDegraded
		check.Message = "project root not writable: " + err.Error()
		return check
	}
	_ = os.Remove(probe)
	return check
}

// checkScheduler reports whether the maintenance jobs are registered.
func (d *Daemon) checkScheduler() HealthCheck {
	check := HealthCheck{Name: "scheduler", Status: HealthStatusHealthy}
	if d.scheduler == nil || d.scheduler.Jobs() == 0 {
		check.Status = HealthStatusDegraded
		check.Message = "no maintenance jobs registered"
	}
	return check
}

// checkSessions flags sessions that appear wedged, non-terminal for
// over six hours.
func (d *Daemon) checkSessions() HealthCheck {
	check := HealthCheck{Name: "sessions", Status: HealthStatusHealthy}

	stale := 0
	for _, rep := range d.deps.Manager.List() {
		if !rep.Status.Terminal() && rep.ElapsedSeconds > 6*3600 {
			stale++
		}
	}
	if stale > 0 {
		check.Status = HealthStatusDegraded
		check.Message = "sessions running for over six hours"
	}
	return check
}
