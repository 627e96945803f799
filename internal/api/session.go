package api

import (
	"context"
	"time"

	"github.com/wonny/taxico2/internal/analyzer"
	"github.com/wonny/taxico2/internal/contracts"
	"github.com/wonny/taxico2/pkg/config"
	"github.com/wonny/taxico2/pkg/database"
	"github.com/wonny/taxico2/pkg/logger"
)

// SessionAnalyzer answers each query on its own read-only handle and closes
// it before returning, so the database file is only locked while a request
// is being served. Requests that arrive while a write stage holds the file
// fail and are answered from the response cache when one is configured.
type SessionAnalyzer struct {
	cfg    *config.Config
	scope  contracts.Scope
	logger *logger.Logger
}

// NewSessionAnalyzer creates a per-request analyzer for scope
func NewSessionAnalyzer(cfg *config.Config, scope contracts.Scope, log *logger.Logger) *SessionAnalyzer {
	return &SessionAnalyzer{
		cfg:    cfg,
		scope:  scope,
		logger: log.WithField("module", "session"),
	}
}

func (s *SessionAnalyzer) Scope() contracts.Scope {
	return s.scope
}

func (s *SessionAnalyzer) LargestTrip(ctx context.Context, table string) (*contracts.LargestTrip, error) {
	return withSession(s, func(a *analyzer.Analyzer) (*contracts.LargestTrip, error) {
		return a.LargestTrip(ctx, table)
	})
}

func (s *SessionAnalyzer) BucketExtremes(ctx context.Context, table string, dim contracts.Dimension, agg contracts.Aggregate) (*contracts.BucketExtremes, error) {
	return withSession(s, func(a *analyzer.Analyzer) (*contracts.BucketExtremes, error) {
		return a.BucketExtremes(ctx, table, dim, agg)
	})
}

func (s *SessionAnalyzer) MonthlySeries(ctx context.Context, yellow, green string, scope contracts.Scope) ([]contracts.MonthPoint, error) {
	return withSession(s, func(a *analyzer.Analyzer) ([]contracts.MonthPoint, error) {
		return a.MonthlySeries(ctx, yellow, green, scope)
	})
}

// HealthCheck opens a short-lived handle; a file held by a writer reports
// unhealthy rather than blocking.
func (s *SessionAnalyzer) HealthCheck(ctx context.Context, tables ...string) (*database.HealthStatus, error) {
	db, err := database.NewReadOnly(s.cfg)
	if err != nil {
		return &database.HealthStatus{
			Timestamp: time.Now(),
			Path:      s.cfg.Database.Path,
			ReadOnly:  true,
			Error:     err.Error(),
		}, err
	}
	defer db.Close()

	return db.HealthCheck(ctx, tables...)
}

func withSession[T any](s *SessionAnalyzer, query func(a *analyzer.Analyzer) (T, error)) (T, error) {
	var zero T

	db, err := database.NewReadOnly(s.cfg)
	if err != nil {
		s.logger.WithError(err).Warn("Database unavailable")
		return zero, err
	}
	defer db.Close()

	return query(analyzer.New(db, s.scope, s.logger))
}
