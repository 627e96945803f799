package scheduler

import (
	"context"
	"time"

	"github.com/wonny/taxico2/internal/contracts"
)

// Job represents a scheduled job
// ⭐ SSOT: the scheduled job interface is only defined here
type Job interface {
	// Name returns the job name
	Name() string

	// Run executes the job once and returns the outcome of every stage it
	// attempted, including the failed one
	Run(ctx context.Context) ([]contracts.StageOutcome, error)

	// Schedule returns the cron expression, seconds first
	// Examples: "0 0 3 * * *" (every day at 03:00), "@daily"
	Schedule() string
}

// RunRecord is one execution of a job. RunID also tags the scheduler's log
// lines for the run.
type RunRecord struct {
	RunID     string                   `json:"run_id"`
	JobName   string                   `json:"job_name"`
	StartTime time.Time                `json:"start_time"`
	EndTime   time.Time                `json:"end_time"`
	Duration  time.Duration            `json:"duration"`
	Stages    []contracts.StageOutcome `json:"stages"`
	Error     string                   `json:"error,omitempty"`
}

// Success reports whether the run finished without error
func (r RunRecord) Success() bool {
	return r.Error == ""
}

// FailedStage returns the stage that stopped the run. A run that failed
// before any stage started reports false.
func (r RunRecord) FailedStage() (contracts.Stage, bool) {
	for _, o := range r.Stages {
		if o.Failed() {
			return o.Stage, true
		}
	}
	return "", false
}

// maxHistory bounds the runs kept per job
const maxHistory = 100

// RunHistory keeps the most recent runs of one job, oldest first
type RunHistory struct {
	Runs []RunRecord
}

// Add appends a run and drops the oldest beyond maxHistory
func (h *RunHistory) Add(run RunRecord) {
	h.Runs = append(h.Runs, run)
	if len(h.Runs) > maxHistory {
		h.Runs = h.Runs[len(h.Runs)-maxHistory:]
	}
}

// Latest returns the last n runs
func (h *RunHistory) Latest(n int) []RunRecord {
	if n > len(h.Runs) {
		n = len(h.Runs)
	}
	if n <= 0 {
		return []RunRecord{}
	}
	return h.Runs[len(h.Runs)-n:]
}

// Find returns the run with the given id
func (h *RunHistory) Find(runID string) (RunRecord, bool) {
	for i := len(h.Runs) - 1; i >= 0; i-- {
		if h.Runs[i].RunID == runID {
			return h.Runs[i], true
		}
	}
	return RunRecord{}, false
}

// Failures returns every failed run
func (h *RunHistory) Failures() []RunRecord {
	failed := make([]RunRecord, 0)
	for _, run := range h.Runs {
		if !run.Success() {
			failed = append(failed, run)
		}
	}
	return failed
}

// FailuresByStage counts failed runs per stage that stopped them
func (h *RunHistory) FailuresByStage() map[contracts.Stage]int {
	counts := make(map[contracts.Stage]int)
	for _, run := range h.Runs {
		if stage, ok := run.FailedStage(); ok {
			counts[stage]++
		}
	}
	return counts
}

// SuccessRate returns the share of successful runs (0.0 - 1.0)
func (h *RunHistory) SuccessRate() float64 {
	if len(h.Runs) == 0 {
		return 0.0
	}

	successCount := 0
	for _, run := range h.Runs {
		if run.Success() {
			successCount++
		}
	}
	return float64(successCount) / float64(len(h.Runs))
}
