package daemon

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler wraps a gocron scheduler for periodic deployments.
type Scheduler struct {
	scheduler gocron.Scheduler
	trigger   func()
}

// NewScheduler creates a scheduler that calls trigger on each tick.
func NewScheduler(trigger func()) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, trigger: trigger}, nil
}

// SchedulePeriodicDeploy registers a deployment every interval.
// Returns the job ID for later management.
func (s *Scheduler) SchedulePeriodicDeploy(interval time.Duration) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.tick),
		gocron.WithName("periodic-deploy"),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create periodic deploy job: %w", err)
	}
	return job.ID().String(), nil
}

func (s *Scheduler) tick() {
	slog.Info("Scheduled deployment triggered")
	s.trigger()
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}
