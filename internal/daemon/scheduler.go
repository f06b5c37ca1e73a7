package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler wraps gocron for the daemon's periodic tasks.
type Scheduler struct {
	scheduler gocron.Scheduler
}

// NewScheduler creates a new scheduler instance.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s}, nil
}

// ScheduleMaintenance registers the periodic maintenance task.
func (s *Scheduler) ScheduleMaintenance(interval time.Duration, task func()) {
	s.schedule("maintenance", interval, task)
}

// ScheduleDependencyScan registers the periodic dependency rescan.
func (s *Scheduler) ScheduleDependencyScan(interval time.Duration, task func()) {
	s.schedule("dependency-scan", interval, task)
}

func (s *Scheduler) schedule(name string, interval time.Duration, task func()) {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithName(name),
	)
	if err != nil {
		slog.Error("Failed to schedule job", "job", name, "error", err)
		return
	}
	slog.Debug("Scheduled job", "job", name, "interval", interval.String())
}

// Jobs reports the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.scheduler.Jobs())
}

// Start begins the scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}
