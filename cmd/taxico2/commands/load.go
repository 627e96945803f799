package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Fetch monthly trip extracts into DuckDB",
	Long: `Fetch every monthly yellow and green extract of the scope and load them
into {cab}_trips_{suffix}, replacing any previous table, then load the
vehicle emissions lookup.

A failed month aborts the run; the cab table is left partially loaded.

Example:
  go run ./cmd/taxico2 load
  go run ./cmd/taxico2 load --scope decade`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		runner, err := newStageRunner(out, "Load")
		if err != nil {
			return err
		}

		report, err := runner.Load(cmd.Context())
		if err != nil {
			return err
		}
		printLoadReport(out, report)
		fmt.Fprintln(out)
		PrintSuccess(out, "Load complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
}
