// Package daemon runs buildmon as a long-lived service: an HTTP API
// over the session manager, periodic maintenance jobs and an optional
// project watcher that keeps the dependency baseline warm.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/config"
	"git.home.luguber.info/inful/buildmon/internal/deps"
	"git.home.luguber.info/inful/buildmon/internal/history"
	"git.home.luguber.info/inful/buildmon/internal/session"
)

// Deps carries the services the daemon exposes and maintains.
type Deps struct {
	Manager        *session.Manager
	Predictor      *history.Predictor
	DepTracker     *deps.Tracker
	MetricsHandler http.Handler // nil disables /metrics
}

// Daemon ties the HTTP server, scheduler and watcher together.
type Daemon struct {
	cfg       *config.Config
	deps      Deps
	scheduler *Scheduler
	watcher   *Watcher
	server    *HTTPServer
	startTime time.Time
}

// New assembles a daemon from a validated configuration.
func New(cfg *config.Config, d Deps) (*Daemon, error) {
	if d.Manager == nil {
		return nil, fmt.Errorf("daemon requires a session manager")
	}

	daemon := &Daemon{
		cfg:       cfg,
		deps:      d,
		startTime: time.Now(),
	}

	scheduler, err := NewScheduler()
	if err != nil {
		return nil, err
	}
	scheduler.ScheduleMaintenance(cfg.CleanupInterval(), daemon.runMaintenance)
	if d.DepTracker != nil {
		scheduler.ScheduleDependencyScan(cfg.DependencyScanInterval(), daemon.runDependencyScan)
	}
	daemon.scheduler = scheduler

	if cfg.Daemon.Watch && d.DepTracker != nil {
		watcher, err := NewWatcher(cfg.Project.Root, cfg.WatchDebounce(), daemon.runDependencyScan)
		if err != nil {
			return nil, err
		}
		daemon.watcher = watcher
	}

	daemon.server = NewHTTPServer(cfg.Daemon.Listen, daemon)
	return daemon, nil
}

// Run starts all components and blocks until the context is cancelled
// or a component fails.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("Starting daemon",
		slog.String("listen", d.cfg.Daemon.Listen),
		slog.Bool("watch", d.watcher != nil))

	d.scheduler.Start(ctx)
	if d.watcher != nil {
		if err := d.watcher.Start(ctx); err != nil {
			_ = d.scheduler.Stop(ctx)
			return err
		}
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- d.server.Serve()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-errChan:
		if err != nil {
			runErr = fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if err := d.scheduler.Stop(shutdownCtx); err != nil {
		slog.Error("Scheduler shutdown failed", "error", err)
	}

	slog.Info("Daemon stopped")
	return runErr
}

// runMaintenance prunes stale prediction records and expired log exports.
func (d *Daemon) runMaintenance() {
	slog.Info("Running maintenance")
	if d.deps.Predictor != nil {
		d.deps.Predictor.Cleanup()
	}
	removed := session.CleanupExports(time.Hour)
	if removed > 0 {
		slog.Info("Removed expired log exports", slog.Int("count", removed))
	}
}

// runDependencyScan refreshes the dependency baseline so the next build
// start sees an up-to-date change picture.
func (d *Daemon) runDependencyScan() {
	if d.deps.DepTracker == nil {
		return
	}
	events := d.deps.DepTracker.DetectChanges()
	if len(events) > 0 {
		slog.Info("Dependency changes detected", slog.Int("count", len(events)))
	}
}

// Uptime reports how long the daemon has been running.
func (d *Daemon) Uptime() time.Duration {
	return time.Since(d.startTime)
}
