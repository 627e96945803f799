package commands

import (
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Report CO2 aggregates from the transformed tables",
	Long: `Open the database read-only and report, per cab type:
  - the largest CO2 trip
  - the heaviest and lightest hour, weekday, week and month
  - the monthly CO2 series, plotted to CHART_DIR

When REPORT_XLSX is set the same results are written to a workbook.
Chart or workbook failures are printed but do not fail the command.

Example:
  go run ./cmd/taxico2 analyze
  REPORT_XLSX=report.xlsx go run ./cmd/taxico2 analyze --scope decade`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		runner, err := newStageRunner(out, "Analyze")
		if err != nil {
			return err
		}

		analysis, err := runner.Analyze(cmd.Context())
		if err != nil {
			return err
		}
		printAnalysis(out, analysis)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
