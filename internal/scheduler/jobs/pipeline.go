package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/taxico2/internal/contracts"
	"github.com/wonny/taxico2/internal/pipeline"
	"github.com/wonny/taxico2/pkg/logger"
)

// PipelineRunner runs every stage in order
type PipelineRunner interface {
	RunAll(ctx context.Context) (*pipeline.Result, error)
}

// PipelineJob runs load → clean → transform → analyze on a schedule
// ⭐ SSOT: the scheduled pipeline is only defined here
type PipelineJob struct {
	runner   PipelineRunner
	schedule string
	logger   *logger.Logger
}

// NewPipelineJob creates a new pipeline job
func NewPipelineJob(runner PipelineRunner, schedule string, log *logger.Logger) *PipelineJob {
	return &PipelineJob{
		runner:   runner,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *PipelineJob) Name() string {
	return "pipeline"
}

// Schedule returns the cron schedule (with seconds)
func (j *PipelineJob) Schedule() string {
	return j.schedule
}

// Run executes one full pipeline pass and returns the outcome of every
// stage it reached
func (j *PipelineJob) Run(ctx context.Context) ([]contracts.StageOutcome, error) {
	j.logger.Info("Starting scheduled pipeline run")

	res, err := j.runner.RunAll(ctx)
	var stages []contracts.StageOutcome
	if res != nil {
		stages = res.Stages
	}
	if err != nil {
		return stages, fmt.Errorf("pipeline run: %w", err)
	}

	fields := map[string]interface{}{}
	if res.Load != nil {
		fields["months"] = res.Load.Months
	}
	if res.Analysis != nil {
		fields["charts"] = len(res.Analysis.Charts)
		if res.Analysis.ChartErr != nil {
			fields["chart_error"] = res.Analysis.ChartErr.Error()
		}
	}
	j.logger.WithFields(fields).Info("Scheduled pipeline run completed")

	return stages, nil
}
