package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/wonny/taxico2/internal/contracts"
	"github.com/wonny/taxico2/pkg/logger"
)

// Scheduler runs registered jobs on cron schedules. A failed run is recorded
// in history and waits for the next tick; runs are never retried and never
// overlap.
// ⭐ SSOT: scheduled execution is only managed here
type Scheduler struct {
	cron    *cron.Cron
	logger  *logger.Logger
	jobs    map[string]Job
	history map[string]*RunHistory
	mu      sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new scheduler. Schedules use the six-field cron format
// with a leading seconds field.
func New(log *logger.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger:  log,
		jobs:    make(map[string]Job),
		history: make(map[string]*RunHistory),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddJob adds a job to the scheduler
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobName := job.Name()

	if _, exists := s.jobs[jobName]; exists {
		return fmt.Errorf("job %s already exists", jobName)
	}

	_, err := s.cron.AddFunc(job.Schedule(), func() {
		_ = s.runJob(s.ctx, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", jobName, err)
	}

	s.jobs[jobName] = job
	s.history[jobName] = &RunHistory{}

	s.logger.WithFields(map[string]interface{}{
		"job":      jobName,
		"schedule": job.Schedule(),
	}).Info("Job added to scheduler")

	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// Next returns the next activation time of a job
func (s *Scheduler) Next(jobName string) (time.Time, error) {
	s.mu.RLock()
	job, exists := s.jobs[jobName]
	s.mu.RUnlock()
	if !exists {
		return time.Time{}, fmt.Errorf("job %s not found", jobName)
	}

	sched, err := cron.NewParser(
		cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	).Parse(job.Schedule())
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(time.Now()), nil
}

// RunJob runs a job immediately and synchronously, outside its schedule
func (s *Scheduler) RunJob(ctx context.Context, jobName string) error {
	s.mu.RLock()
	job, exists := s.jobs[jobName]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job %s not found", jobName)
	}

	return s.runJob(ctx, job)
}

// runJob executes a job once and records the run with its stage outcomes
func (s *Scheduler) runJob(ctx context.Context, job Job) error {
	jobName := job.Name()
	run := RunRecord{
		RunID:     uuid.NewString(),
		JobName:   jobName,
		StartTime: time.Now(),
	}
	log := s.logger.WithFields(map[string]interface{}{
		"job":    jobName,
		"run_id": run.RunID,
	})

	log.Info("Job started")

	stages, err := job.Run(ctx)

	run.EndTime = time.Now()
	run.Duration = run.EndTime.Sub(run.StartTime)
	run.Stages = stages
	if err != nil {
		run.Error = err.Error()
	}

	s.mu.Lock()
	if history, exists := s.history[jobName]; exists {
		history.Add(run)
	}
	s.mu.Unlock()

	if err == nil {
		log.WithFields(map[string]interface{}{
			"duration": run.Duration,
			"stages":   len(stages),
		}).Info("Job completed successfully")
	} else {
		fields := map[string]interface{}{
			"duration": run.Duration,
			"error":    err.Error(),
		}
		if stage, ok := run.FailedStage(); ok {
			fields["stage"] = stage
		}
		log.WithFields(fields).Error("Job failed; waiting for next schedule")
	}

	return err
}

// GetJobHistory returns the run history for a specific job
func (s *Scheduler) GetJobHistory(jobName string) (*RunHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, exists := s.history[jobName]
	if !exists {
		return nil, fmt.Errorf("job %s not found", jobName)
	}

	return history, nil
}

// GetJobStats returns statistics for all jobs
func (s *Scheduler) GetJobStats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats)

	for jobName, history := range s.history {
		latest := history.Latest(1)
		failed := history.Failures()

		var lastRun, lastSuccess, lastFailure *time.Time
		var lastRunID string
		if len(latest) > 0 {
			last := latest[0]
			lastRun = &last.StartTime
			lastRunID = last.RunID
			if last.Success() {
				lastSuccess = &last.StartTime
			} else {
				lastFailure = &last.StartTime
			}
		}

		stats[jobName] = JobStats{
			JobName:         jobName,
			Schedule:        s.jobs[jobName].Schedule(),
			TotalRuns:       len(history.Runs),
			SuccessCount:    len(history.Runs) - len(failed),
			FailureCount:    len(failed),
			SuccessRate:     history.SuccessRate(),
			FailuresByStage: history.FailuresByStage(),
			LastRunID:       lastRunID,
			LastRun:         lastRun,
			LastSuccess:     lastSuccess,
			LastFailure:     lastFailure,
		}
	}

	return stats
}

// JobStats represents statistics for a job
type JobStats struct {
	JobName         string                  `json:"job_name"`
	Schedule        string                  `json:"schedule"`
	TotalRuns       int                     `json:"total_runs"`
	SuccessCount    int                     `json:"success_count"`
	FailureCount    int                     `json:"failure_count"`
	SuccessRate     float64                 `json:"success_rate"`
	FailuresByStage map[contracts.Stage]int `json:"failures_by_stage"`
	LastRunID       string                  `json:"last_run_id,omitempty"`
	LastRun         *time.Time              `json:"last_run,omitempty"`
	LastSuccess     *time.Time              `json:"last_success,omitempty"`
	LastFailure     *time.Time              `json:"last_failure,omitempty"`
}
