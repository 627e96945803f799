package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/taxico2/internal/contracts"
	"github.com/wonny/taxico2/pkg/database"
)

var testDBCmd = &cobra.Command{
	Use:   "test-db",
	Short: "Check the DuckDB file and table row counts",
	Long: `Open the database read-only, ping it and print the row count of every
table the scope uses.

Example:
  go run ./cmd/taxico2 test-db`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		runner, err := newStageRunner(out, "Database Check")
		if err != nil {
			return err
		}
		cfg := runner.Config()
		scope := runner.Scope()

		fmt.Fprintln(out, "1. Opening DuckDB...")
		db, err := database.NewReadOnly(cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		PrintSuccess(out, "Database opened")

		fmt.Fprintln(out, "\n2. Checking tables...")
		tables := []string{contracts.EmissionsTable}
		for _, cab := range contracts.CabTypes {
			tables = append(tables, scope.RawTable(cab), scope.TransformedTable(cab))
		}
		status, err := db.HealthCheck(cmd.Context(), tables...)
		if err != nil {
			return fmt.Errorf("health check: %w", err)
		}
		PrintSuccess(out, fmt.Sprintf("Ping OK (%s)", status.ResponseTime))

		fmt.Fprintln(out)
		widths := []int{32, 14}
		PrintTableHeader(out, []string{"Table", "Rows"}, widths)
		for _, t := range status.Tables {
			rows := "missing"
			if t.Exists {
				rows = FormatCount(t.Rows)
			}
			PrintTableRow(out, []string{t.Name, rows}, widths)
		}

		fmt.Fprintln(out)
		PrintSuccess(out, "Database check complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(testDBCmd)
}
