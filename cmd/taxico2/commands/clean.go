package commands

import (
	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove duplicate and invalid trips in place",
	Long: `Deduplicate both raw trip tables, then apply the ordered filter rules
and recount the anomalies that should no longer exist.

Rules (strict):
  passenger_count = 0
  trip_distance <= 0
  trip_distance > 100
  duration <= 0s or > 86400s
  pickup outside the scope window

--ruleset legacy keeps distance < 0 and duration <= 0 rows.

Example:
  go run ./cmd/taxico2 clean
  go run ./cmd/taxico2 clean --ruleset legacy`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		runner, err := newStageRunner(out, "Clean")
		if err != nil {
			return err
		}

		reports, err := runner.Clean(cmd.Context())
		for _, r := range reports {
			printCleanReport(out, r)
		}
		if err != nil {
			return err
		}
		PrintSuccess(out, "Cleaning complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}
