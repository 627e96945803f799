package commands

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/taxico2/internal/pipeline"
	"github.com/wonny/taxico2/pkg/config"
)

var (
	// Global flags, overriding the environment when set
	scopeFlag   string
	rulesetFlag string
	dbPathFlag  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "taxico2",
	Short: "NYC taxi CO2 pipeline",
	Long: `taxico2 - NYC yellow/green taxi CO2 emissions pipeline

Loads monthly TLC trip extracts into a local DuckDB file, cleans them,
derives per-trip CO2 and calendar buckets, and reports aggregates.

  load → clean → transform → analyze

Every stage is a separate command sharing only the DuckDB file.

Usage:
  go run ./cmd/taxico2 [command]

Examples:
  go run ./cmd/taxico2 load
  go run ./cmd/taxico2 clean --scope decade
  go run ./cmd/taxico2 analyze
  go run ./cmd/taxico2 pipeline --schedule "0 0 3 1 * *"
  go run ./cmd/taxico2 serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// The command context is cancelled on SIGINT or SIGTERM.
func Execute() error {
	ctx, cancel := signalContext()
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&scopeFlag, "scope", "", "scope profile: 2024 | decade (default from SCOPE)")
	rootCmd.PersistentFlags().StringVar(&rulesetFlag, "ruleset", "", "cleaning rule set: strict | legacy (default from CLEAN_RULESET)")
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "DuckDB file path (default from DB_PATH)")
}

// loadConfig reads the environment and applies global flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if scopeFlag != "" {
		cfg.Scope = scopeFlag
	}
	if rulesetFlag != "" {
		cfg.CleanRuleset = rulesetFlag
	}
	if dbPathFlag != "" {
		cfg.Database.Path = dbPathFlag
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newStageRunner builds the pipeline runner and prints the stage header
func newStageRunner(w io.Writer, title string) (*pipeline.Runner, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	runner, err := pipeline.NewRunner(cfg)
	if err != nil {
		return nil, err
	}

	PrintStageHeader(w, StageHeader{
		Title:   title,
		Scope:   runner.Scope().Label(),
		DBPath:  cfg.Database.Path,
		Ruleset: string(runner.Scope().Ruleset),
	})
	return runner, nil
}
