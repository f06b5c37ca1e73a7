package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/buildmon/internal/changes"
	"git.home.luguber.info/inful/buildmon/internal/config"
	"git.home.luguber.info/inful/buildmon/internal/deps"
	"git.home.luguber.info/inful/buildmon/internal/eventstore"
	"git.home.luguber.info/inful/buildmon/internal/fixes"
	"git.home.luguber.info/inful/buildmon/internal/health"
	"git.home.luguber.info/inful/buildmon/internal/history"
	"git.home.luguber.info/inful/buildmon/internal/metrics"
	"git.home.luguber.info/inful/buildmon/internal/notify"
	"git.home.luguber.info/inful/buildmon/internal/session"
	"git.home.luguber.info/inful/buildmon/internal/state"
)

// services wires the analytics stores, event log, metrics and notifier
// into a session manager.
type services struct {
	cfg *config.Config

	manager    *session.Manager
	predictor  *history.Predictor
	changes    *changes.Tracker
	depTracker *deps.Tracker
	health     *health.Scorer
	advisor    *fixes.Advisor

	events     eventstore.Store
	projection *eventstore.SessionHistoryProjection
	publisher  notify.Publisher

	recorder       metrics.Recorder
	metricsHandler http.Handler
}

func newServices(cfg *config.Config) (*services, error) {
	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &services{cfg: cfg}

	stores := make(map[string]*state.JSONStore)
	for _, name := range []string{"history", "changes", "deps", "health", "fixes", "sessions"} {
		store, err := state.NewJSONStore(cfg.DataPath(name + ".json"))
		if err != nil {
			return nil, fmt.Errorf("failed to open %s store: %w", name, err)
		}
		stores[name] = store
	}

	s.predictor = history.NewPredictor(stores["history"])
	s.changes = changes.NewTracker(cfg.Project.Root, stores["changes"])
	s.depTracker = deps.NewTracker(cfg.Project.Root, stores["deps"])
	s.health = health.NewScorer(stores["health"])
	s.advisor = fixes.NewAdvisor(stores["fixes"])

	if cfg.Events.Enabled {
		events, err := eventstore.NewSQLiteStore(cfg.EventsPath())
		if err != nil {
			return nil, fmt.Errorf("failed to open event store: %w", err)
		}
		s.events = events
		s.projection = eventstore.NewSessionHistoryProjection(events, 50)
	}

	publisher, err := notify.NewPublisher(cfg.Notifications.Enabled,
		cfg.Notifications.NATSURL, cfg.Notifications.Subject, cfg.Notifications.Stream)
	if err != nil {
		return nil, fmt.Errorf("failed to create notifier: %w", err)
	}
	s.publisher = publisher

	s.recorder = metrics.NoopRecorder{}
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		s.recorder = metrics.NewPrometheusRecorder(registry)
		s.metricsHandler = metrics.HTTPHandler(registry)
	}

	s.manager = session.NewManager(session.Options{
		ProjectRoot:      cfg.Project.Root,
		BuildDir:         cfg.BuildDir(),
		Jobs:             cfg.Build.Jobs,
		ConfigureTimeout: cfg.ConfigureTimeout(),
		TerminateGrace:   cfg.TerminateGrace(),
		MakeCommand:      cfg.Build.MakeCommand,
		ConfigureCommand: cfg.Build.ConfigureCommand,
	}, session.Deps{
		Predictor:  s.predictor,
		Changes:    s.changes,
		DepTracker: s.depTracker,
		Health:     s.health,
		Advisor:    s.advisor,
		Events:     s.events,
		Recorder:   s.recorder,
		Publisher:  s.publisher,
		Snapshots:  stores["sessions"],
	})

	return s, nil
}

// Close releases the event store and notifier connections.
func (s *services) Close() {
	if s.events != nil {
		_ = s.events.Close()
	}
	if s.publisher != nil {
		_ = s.publisher.Close()
	}
}

// loadConfig reads the configuration file, falling back to defaults
// when the default path does not exist.
func loadConfig(path string, isDefault bool) (*config.Config, error) {
	if isDefault {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if abs, absErr := filepath.Abs(cfg.Project.Root); absErr == nil {
		cfg.Project.Root = abs
	}
	return cfg, nil
}
