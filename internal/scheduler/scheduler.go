// Package scheduler runs fetch profiles periodically.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/altafino/attachment-fetcher/internal/types"
	"github.com/go-co-op/gocron"
)

// RunFunc executes one fetch run for a profile.
type RunFunc func(ctx context.Context, cfg *types.Config) error

type Scheduler struct {
	scheduler *gocron.Scheduler
	run       RunFunc
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	jobs   map[string]*gocron.Job
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a new scheduler instance
func NewScheduler(run RunFunc, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		run:       run,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		jobs:      make(map[string]*gocron.Job),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the scheduler. Runs receive a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.scheduler.StartAsync()
}

// Stop cancels running fetches and stops the scheduler
func (s *Scheduler) Stop() {
	s.mu.RLock()
	s.cancel()
	s.mu.RUnlock()
	s.scheduler.Stop()
}

// Sync schedules every given profile and removes jobs of profiles no
// longer present.
func (s *Scheduler) Sync(configs []*types.Config) error {
	keep := make(map[string]bool, len(configs))
	var firstErr error
	for _, cfg := range configs {
		keep[cfg.Meta.ID] = true
		if err := s.UpdateJob(cfg); err != nil {
			s.logger.Error("failed to schedule profile", "id", cfg.Meta.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	for _, id := range s.JobIDs() {
		if !keep[id] {
			s.RemoveJob(id)
		}
	}
	return firstErr
}

// UpdateJob updates or creates a job for a given configuration
func (s *Scheduler) UpdateJob(cfg *types.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Remove existing job if any
	s.removeLocked(cfg.Meta.ID)

	if !cfg.Meta.Enabled || !cfg.Scheduling.Enabled {
		s.logger.Info("scheduling disabled for configuration", "id", cfg.Meta.ID)
		return nil
	}

	var stopAt time.Time
	if cfg.Scheduling.StopAt != "" {
		t, err := time.Parse(time.RFC3339, cfg.Scheduling.StopAt)
		if err != nil {
			return fmt.Errorf("invalid stop time: %w", err)
		}
		if t.Before(s.now()) {
			s.logger.Warn("skipping job schedule - stop time is in the past",
				"id", cfg.Meta.ID,
				"name", cfg.Meta.Name,
				"stop_at", cfg.Scheduling.StopAt,
			)
			return nil
		}
		stopAt = t
	}

	id := cfg.Meta.ID
	jobFunc := func() {
		if !stopAt.IsZero() && s.now().After(stopAt) {
			s.logger.Info("stop time reached, removing scheduled job", "id", id)
			go s.RemoveJob(id)
			return
		}

		s.mu.RLock()
		ctx := s.ctx
		s.mu.RUnlock()

		s.logger.Info("executing scheduled job", "config_id", id)
		if err := s.run(ctx, cfg); err != nil {
			s.logger.Error("scheduled run failed",
				"error", err,
				"config_id", id,
			)
		}
	}

	job := s.scheduler.Every(cfg.Scheduling.FrequencyAmount).SingletonMode()

	switch {
	case cfg.Scheduling.StartNow:
		// first run happens as soon as the job is scheduled
	case cfg.Scheduling.StartAt != "":
		startTime, err := time.Parse(time.RFC3339, cfg.Scheduling.StartAt)
		if err != nil {
			return fmt.Errorf("invalid start time: %w", err)
		}
		job = job.StartAt(startTime)
	default:
		job = job.WaitForSchedule()
	}

	switch cfg.Scheduling.FrequencyEvery {
	case "minute":
		job = job.Minutes()
	case "hour":
		job = job.Hours()
	case "day":
		job = job.Days()
	case "week":
		job = job.Weeks()
	case "month":
		// same day of month as today, capped at the 28th
		job = job.Months(min(s.now().Day(), 28))
	default:
		return fmt.Errorf("invalid frequency: %s", cfg.Scheduling.FrequencyEvery)
	}

	scheduledJob, err := job.Do(jobFunc)
	if err != nil {
		return fmt.Errorf("failed to schedule job: %w", err)
	}
	s.jobs[id] = scheduledJob

	s.logger.Info("scheduled job updated",
		"id", id,
		"frequency", fmt.Sprintf("every %d %s", cfg.Scheduling.FrequencyAmount, cfg.Scheduling.FrequencyEvery),
		"start_now", cfg.Scheduling.StartNow,
		"start_at", cfg.Scheduling.StartAt,
		"stop_at", cfg.Scheduling.StopAt,
	)

	return nil
}

// RemoveJob removes a job for a given configuration ID
func (s *Scheduler) RemoveJob(configID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeLocked(configID) {
		s.logger.Info("removed scheduled job", "id", configID)
	}
}

func (s *Scheduler) removeLocked(configID string) bool {
	job, exists := s.jobs[configID]
	if !exists {
		return false
	}
	s.scheduler.RemoveByReference(job)
	delete(s.jobs, configID)
	return true
}

// JobIDs returns the ids of scheduled profiles in order
func (s *Scheduler) JobIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NextRun reports when the profile runs next.
func (s *Scheduler) NextRun(configID string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[configID]
	if !ok {
		return time.Time{}, false
	}
	return job.NextRun(), true
}
