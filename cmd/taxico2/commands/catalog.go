package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/taxico2/internal/contracts"
	"github.com/wonny/taxico2/internal/loader"
	"github.com/wonny/taxico2/pkg/httputil"
	"github.com/wonny/taxico2/pkg/logger"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List published trip extracts for the scope",
	Long: `Scrape the TLC trip record page for yellow and green parquet links and
report which months of the scope are not published yet.

Example:
  go run ./cmd/taxico2 catalog
  go run ./cmd/taxico2 catalog --scope decade`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		runner, err := newStageRunner(out, "Catalog")
		if err != nil {
			return err
		}
		cfg := runner.Config()
		scope := runner.Scope()

		client := httputil.New(cfg, logger.New(cfg))
		entries, err := loader.FetchCatalog(cmd.Context(), client, cfg.Source.CatalogURL)
		if err != nil {
			return err
		}

		inScope := 0
		widths := []int{8, 10, 60}
		PrintTableHeader(out, []string{"Cab", "Month", "URL"}, widths)
		for _, e := range entries {
			if e.Year < scope.StartYear || e.Year > scope.EndYear {
				continue
			}
			inScope++
			PrintTableRow(out, []string{string(e.CabType), fmt.Sprintf("%04d-%02d", e.Year, e.Month), e.URL}, widths)
		}
		PrintSeparator(out)
		PrintKeyValue(out, "Published", fmt.Sprintf("%d of %d", inScope, len(contracts.CabTypes)*len(scope.Months())))

		missing := loader.MissingExtracts(scope, entries)
		if len(missing) == 0 {
			PrintSuccess(out, "Every extract of the scope is published")
			return nil
		}
		PrintWarning(out, fmt.Sprintf("%d extracts not published:", len(missing)))
		for _, name := range missing {
			fmt.Fprintf(out, "  - %s\n", name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}
