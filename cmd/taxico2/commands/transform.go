package commands

import (
	"github.com/spf13/cobra"
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Derive CO2, speed and calendar buckets",
	Long: `Create {cab}_trips_{suffix}_transformed from each cleaned table:
trip_co2_kgs from the emissions lookup, avg_mph, and the hour, weekday,
ISO week and month buckets. Existing output tables are replaced.

Example:
  go run ./cmd/taxico2 transform`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		runner, err := newStageRunner(out, "Transform")
		if err != nil {
			return err
		}

		reports, err := runner.Transform(cmd.Context())
		for _, r := range reports {
			printTransformReport(out, r)
		}
		if err != nil {
			return err
		}
		PrintSuccess(out, "Transform complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(transformCmd)
}
