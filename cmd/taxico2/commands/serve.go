package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/taxico2/internal/analyzer"
	"github.com/wonny/taxico2/internal/api"
	"github.com/wonny/taxico2/internal/api/handlers"
	"github.com/wonny/taxico2/internal/contracts"
	"github.com/wonny/taxico2/internal/pipeline"
	"github.com/wonny/taxico2/pkg/config"
	"github.com/wonny/taxico2/pkg/database"
	"github.com/wonny/taxico2/pkg/logger"
	"github.com/wonny/taxico2/pkg/redis"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve analysis results as read-only JSON",
	Long: `Open the database read-only and serve the analyzer queries over HTTP.

Routes:
  GET /health
  GET /api/largest/{cab}
  GET /api/buckets/{cab}/{dimension}?agg=sum|mean
  GET /api/monthly

Every request opens the database read-only and closes it before replying,
so pipeline stages can write between requests. Responses are cached in
Redis when REDIS_ENABLED=true; every analyze run flushes the scope's
entries. /api routes are limited to API_RATE_LIMIT requests per second.

Example:
  go run ./cmd/taxico2 serve
  PORT=9000 go run ./cmd/taxico2 serve --scope decade`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		runner, err := pipeline.NewRunner(cfg)
		if err != nil {
			return err
		}
		scope := runner.Scope()

		log, err := logger.NewForComponent(cfg, "api")
		if err != nil {
			return err
		}
		defer log.Close()

		if err := checkServeTables(cmd.Context(), cfg, scope, log); err != nil {
			return fmt.Errorf("serve: %w", err)
		}

		cacheClient, err := redis.New(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		defer cacheClient.Close()

		session := api.NewSessionAnalyzer(cfg, scope, log)
		var queries handlers.Analyzer = session
		if cacheClient.Enabled() {
			queries = api.NewCachedAnalyzer(session, cacheClient, cfg.Redis.CacheTTL)
			log.WithField("ttl", cfg.Redis.CacheTTL).Info("Response cache enabled")
		}
		h := handlers.NewAnalysisHandler(queries, session, log)
		limiter := api.NewLimiter(cfg.APIRateLimit, cfg.APIRateBurst)

		PrintInfo(cmd.OutOrStdout(), fmt.Sprintf("Serving %s scope on :%s", scope.Label(), cfg.Port))
		return api.New(cfg, log, api.NewRouter(h, limiter, log)).Run(cmd.Context())
	},
}

// checkServeTables fails fast when the transformed tables are missing. The
// handle is closed before serving starts.
func checkServeTables(ctx context.Context, cfg *config.Config, scope contracts.Scope, log *logger.Logger) error {
	db, err := database.NewReadOnly(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return analyzer.New(db, scope, log).CheckTables(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
