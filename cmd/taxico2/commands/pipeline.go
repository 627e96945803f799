package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/taxico2/internal/contracts"
	"github.com/wonny/taxico2/internal/scheduler"
	"github.com/wonny/taxico2/internal/scheduler/jobs"
	"github.com/wonny/taxico2/pkg/logger"
)

var scheduleFlag string

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run load → clean → transform → analyze",
	Long: `Run every stage in order in one process. The first failing stage stops
the run.

With --schedule the run is registered as a cron job (seconds field first)
and the command blocks until interrupted. A failed scheduled run is
recorded and waits for the next tick.

Example:
  go run ./cmd/taxico2 pipeline
  go run ./cmd/taxico2 pipeline --schedule "0 0 3 2 * *"   # 03:00 on the 2nd`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		runner, err := newStageRunner(out, "Pipeline")
		if err != nil {
			return err
		}

		if scheduleFlag == "" {
			res, err := runner.RunAll(cmd.Context())
			if res != nil {
				if res.Load != nil {
					printLoadReport(out, res.Load)
				}
				for _, r := range res.Clean {
					printCleanReport(out, r)
				}
				for _, r := range res.Transform {
					printTransformReport(out, r)
				}
				if res.Analysis != nil {
					printAnalysis(out, res.Analysis)
				}
				printStageOutcomes(out, res.Stages)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			PrintSuccess(out, "Pipeline complete")
			return nil
		}

		log, err := logger.NewForComponent(runner.Config(), "scheduler")
		if err != nil {
			return err
		}
		defer log.Close()

		sched := scheduler.New(log)
		job := jobs.NewPipelineJob(runner, scheduleFlag, log)
		if err := sched.AddJob(job); err != nil {
			return err
		}
		next, err := sched.Next(job.Name())
		if err != nil {
			return err
		}

		sched.Start()
		PrintInfo(out, fmt.Sprintf("Scheduled %q, next run at %s", scheduleFlag, next.Format(timeLayout)))
		PrintInfo(out, "Press Ctrl+C to stop")

		<-cmd.Context().Done()
		sched.Stop()

		for name, st := range sched.GetJobStats() {
			PrintKeyValue(out, name, fmt.Sprintf("%d runs, %d failed", st.TotalRuns, st.FailureCount))
			for _, stage := range contracts.Stages {
				if n := st.FailuresByStage[stage]; n > 0 {
					PrintKeyValue(out, "  "+stage.String()+" failures", n)
				}
			}
			if st.LastRunID != "" {
				PrintKeyValue(out, "  last run", st.LastRunID)
			}
		}
		PrintSuccess(out, "Scheduler stopped")
		return nil
	},
}

func init() {
	pipelineCmd.Flags().StringVar(&scheduleFlag, "schedule", "", `cron spec with seconds, e.g. "0 0 3 * * *"`)
	rootCmd.AddCommand(pipelineCmd)
}
