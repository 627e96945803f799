package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/taxico2/internal/analyzer"
	"github.com/wonny/taxico2/internal/cleaner"
	"github.com/wonny/taxico2/internal/contracts"
	"github.com/wonny/taxico2/internal/loader"
	"github.com/wonny/taxico2/internal/transformer"
	"github.com/wonny/taxico2/pkg/config"
	"github.com/wonny/taxico2/pkg/database"
	"github.com/wonny/taxico2/pkg/httputil"
	"github.com/wonny/taxico2/pkg/logger"
	"github.com/wonny/taxico2/pkg/redis"
)

// Runner executes pipeline stages. Every stage opens its own store
// connection and component log file and closes both before returning.
// ⭐ SSOT: stage wiring lives here; commands and the scheduler only call it
type Runner struct {
	cfg   *config.Config
	scope contracts.Scope
}

// NewRunner resolves the configured scope
func NewRunner(cfg *config.Config) (*Runner, error) {
	scope, err := contracts.ResolveScope(cfg.Scope, cfg.CleanRuleset)
	if err != nil {
		return nil, err
	}
	return &Runner{cfg: cfg, scope: scope}, nil
}

// Scope returns the resolved scope profile
func (r *Runner) Scope() contracts.Scope {
	return r.scope
}

// Config returns the runner configuration
func (r *Runner) Config() *config.Config {
	return r.cfg
}

// Analysis is the analyzer output plus the isolated rendering outcomes
type Analysis struct {
	Report      *contracts.AnalysisReport
	Charts      []string
	ChartErr    error
	Workbook    string
	WorkbookErr error
}

// Result collects the reports of a full pipeline run
type Result struct {
	Load      *contracts.LoadReport
	Clean     []*contracts.CleanReport
	Transform []*contracts.TransformReport
	Analysis  *Analysis
	Stages    []contracts.StageOutcome
}

// FailedStage returns the stage that stopped the run, if any
func (r *Result) FailedStage() (contracts.Stage, bool) {
	for _, o := range r.Stages {
		if o.Failed() {
			return o.Stage, true
		}
	}
	return "", false
}

// stage opens the component logger and a store connection for fn
func (r *Runner) stage(stage contracts.Stage, readOnly bool, fn func(db *database.DB, log *logger.Logger) error) error {
	log, err := logger.NewForComponent(r.cfg, stage.String())
	if err != nil {
		return err
	}
	defer log.Close()

	log = log.WithFields(map[string]interface{}{
		"scope":   r.scope.Name,
		"db_path": r.cfg.Database.Path,
	})

	var db *database.DB
	if readOnly {
		db, err = database.NewReadOnly(r.cfg)
	} else {
		db, err = database.New(r.cfg)
	}
	if err != nil {
		log.WithError(err).Error("Failed to connect to DuckDB")
		return fmt.Errorf("%s: %w", stage, err)
	}
	defer db.Close()
	log.Info("Connected to DuckDB")

	if err := fn(db, log); err != nil {
		log.WithError(err).Error("Stage failed")
		return fmt.Errorf("%s: %w", stage, err)
	}
	return nil
}

// Load fetches every month of the scope and the emissions lookup
func (r *Runner) Load(ctx context.Context) (*contracts.LoadReport, error) {
	var report *contracts.LoadReport
	err := r.stage(contracts.StageLoad, false, func(db *database.DB, log *logger.Logger) error {
		l := loader.New(db, httputil.New(r.cfg, log), r.scope, loader.Config{
			BaseURL:       r.cfg.Source.BaseURL,
			CacheDir:      r.cfg.Source.CacheDir,
			KeepDownloads: r.cfg.Source.KeepDownloads,
			EmissionsCSV:  r.cfg.EmissionsCSV,
			Pause:         r.cfg.Source.FetchDelay,
		}, log)

		var err error
		report, err = l.Load(ctx)
		return err
	})
	return report, err
}

// Clean runs the cleaning rules on both raw tables
func (r *Runner) Clean(ctx context.Context) ([]*contracts.CleanReport, error) {
	var reports []*contracts.CleanReport
	err := r.stage(contracts.StageClean, false, func(db *database.DB, log *logger.Logger) error {
		c := cleaner.New(db, r.scope, log)
		for _, cab := range contracts.CabTypes {
			report, err := c.Clean(ctx, r.scope.RawTable(cab))
			if report != nil {
				reports = append(reports, report)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	return reports, err
}

// Transform derives the transformed table of both cleaned tables
func (r *Runner) Transform(ctx context.Context) ([]*contracts.TransformReport, error) {
	var reports []*contracts.TransformReport
	err := r.stage(contracts.StageTransform, false, func(db *database.DB, log *logger.Logger) error {
		t := transformer.New(db, r.scope, log)
		for _, cab := range contracts.CabTypes {
			report, err := t.Transform(ctx, r.scope.RawTable(cab))
			if report != nil {
				reports = append(reports, report)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	return reports, err
}

// Analyze runs the aggregate battery read-only, then renders charts and the
// optional workbook. Rendering failures are recorded, not returned.
func (r *Runner) Analyze(ctx context.Context) (*Analysis, error) {
	out := &Analysis{}
	err := r.stage(contracts.StageAnalyze, true, func(db *database.DB, log *logger.Logger) error {
		report, err := analyzer.New(db, r.scope, log).Run(ctx)
		if err != nil {
			return err
		}
		out.Report = report

		out.Charts, out.ChartErr = analyzer.RenderCharts(r.cfg.ChartDir, r.scope, report.Monthly)
		if out.ChartErr != nil {
			log.WithError(out.ChartErr).Error("Plotting failed")
		} else {
			log.WithField("charts", out.Charts).Info("Saved charts")
		}
		report.Charts = out.Charts

		if r.cfg.ReportXLSX != "" {
			out.Workbook = r.cfg.ReportXLSX
			out.WorkbookErr = analyzer.ExportWorkbook(r.cfg.ReportXLSX, report)
			if out.WorkbookErr != nil {
				log.WithError(out.WorkbookErr).Error("Workbook export failed")
			} else {
				log.WithField("path", r.cfg.ReportXLSX).Info("Saved workbook")
			}
		}

		r.flushResponseCache(ctx, log)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// flushResponseCache drops cached API responses of the scope so the
// server picks up the fresh tables. Failures are logged only.
func (r *Runner) flushResponseCache(ctx context.Context, log *logger.Logger) {
	client, err := redis.New(ctx, r.cfg)
	if err != nil {
		log.WithError(err).Warn("Response cache unavailable")
		return
	}
	defer client.Close()

	n, err := redis.NewCache(client, redis.ScopePrefix(r.scope.Name)).Flush(ctx)
	if err != nil {
		log.WithError(err).Warn("Response cache flush failed")
		return
	}
	if client.Enabled() {
		log.WithField("keys", n).Info("Flushed response cache")
	}
}

// RunAll runs load, clean, transform and analyze in order. The first stage
// error stops the sequence; reports of completed stages are returned along
// with one outcome per attempted stage.
func (r *Runner) RunAll(ctx context.Context) (*Result, error) {
	res := &Result{}

	steps := []struct {
		stage contracts.Stage
		run   func() error
	}{
		{contracts.StageLoad, func() (err error) { res.Load, err = r.Load(ctx); return }},
		{contracts.StageClean, func() (err error) { res.Clean, err = r.Clean(ctx); return }},
		{contracts.StageTransform, func() (err error) { res.Transform, err = r.Transform(ctx); return }},
		{contracts.StageAnalyze, func() (err error) { res.Analysis, err = r.Analyze(ctx); return }},
	}

	for _, step := range steps {
		outcome := contracts.StageOutcome{Stage: step.stage, StartTime: time.Now()}
		err := step.run()
		outcome.Duration = time.Since(outcome.StartTime)
		if err != nil {
			outcome.Error = err.Error()
		}
		res.Stages = append(res.Stages, outcome)
		if err != nil {
			return res, err
		}
	}
	return res, nil
}
