package cleaner

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wonny/taxico2/internal/contracts"
	"github.com/wonny/taxico2/pkg/database"
	"github.com/wonny/taxico2/pkg/logger"
)

// Cleaner applies the ordered filter rules to raw trip tables in place
// ⭐ SSOT: rows are only ever deleted here
type Cleaner struct {
	db     *database.DB
	scope  contracts.Scope
	logger *logger.Logger
}

// New creates a new Cleaner instance
func New(db *database.DB, scope contracts.Scope, log *logger.Logger) *Cleaner {
	return &Cleaner{
		db:     db,
		scope:  scope,
		logger: log.WithField("module", "cleaner"),
	}
}

// Clean deduplicates the table, applies every rule of the scope's ruleset
// and verifies the result. A failing step aborts; earlier steps stay applied.
func (c *Cleaner) Clean(ctx context.Context, table string) (*contracts.CleanReport, error) {
	if err := c.db.RequireTables(ctx, table); err != nil {
		return nil, err
	}

	report := &contracts.CleanReport{
		Table:   table,
		Ruleset: c.scope.Ruleset,
	}

	log := c.logger.WithField("table", table)
	log.WithField("ruleset", c.scope.Ruleset).Info("Starting cleaning")

	// 1. full-row deduplication
	step, err := c.dedup(ctx, table)
	if err != nil {
		return report, fmt.Errorf("%s %s: %w", table, DedupStep, err)
	}
	report.Steps = append(report.Steps, *step)
	c.logStep(log, *step)

	// 2. row filters
	for _, rule := range Rules(c.scope.Ruleset) {
		step, err := c.apply(ctx, table, rule)
		if err != nil {
			return report, fmt.Errorf("%s %s: %w", table, rule.Name, err)
		}
		report.Steps = append(report.Steps, *step)
		c.logStep(log, *step)
	}

	// 3. verification
	v, err := c.Verify(ctx, table)
	if err != nil {
		return report, err
	}
	report.Verification = *v

	log.WithField("removed", report.TotalRemoved()).Info("Cleaning complete")
	return report, nil
}

// dedup rewrites the table keeping only distinct full rows
func (c *Cleaner) dedup(ctx context.Context, table string) (*contracts.StepResult, error) {
	before, err := c.db.RowCount(ctx, table)
	if err != nil {
		return nil, err
	}

	tmp := database.QuoteIdent(table + "_dedup")
	name := database.QuoteIdent(table)

	tx, err := c.db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tmp),
		fmt.Sprintf(`CREATE TABLE %s AS SELECT DISTINCT * FROM %s`, tmp, name),
		fmt.Sprintf(`DROP TABLE %s`, name),
		fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, tmp, name),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	after, err := c.db.RowCount(ctx, table)
	if err != nil {
		return nil, err
	}

	return &contracts.StepResult{Rule: DedupStep, Before: before, After: after, Removed: before - after}, nil
}

// apply deletes the rows matching one rule
func (c *Cleaner) apply(ctx context.Context, table string, rule Rule) (*contracts.StepResult, error) {
	before, err := c.db.RowCount(ctx, table)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf(`DELETE FROM %s WHERE %s`, database.QuoteIdent(table), rule.Where(c.scope))
	if _, err := c.db.Conn.ExecContext(ctx, stmt); err != nil {
		return nil, err
	}

	after, err := c.db.RowCount(ctx, table)
	if err != nil {
		return nil, err
	}

	return &contracts.StepResult{Rule: rule.Name, Before: before, After: after, Removed: before - after}, nil
}

func (c *Cleaner) logStep(log *logger.Logger, step contracts.StepResult) {
	log.WithFields(map[string]interface{}{
		"rule":    step.Rule,
		"before":  step.Before,
		"after":   step.After,
		"removed": step.Removed,
	}).Info("Applied cleaning step")
}

// Verify recounts every anomaly class on a table. Counts are always taken
// with the strict definitions, so a legacy-cleaned table can report
// non-zero duration or distance anomalies.
func (c *Cleaner) Verify(ctx context.Context, table string) (*contracts.Verification, error) {
	query := fmt.Sprintf(`
		SELECT
			COUNT(*) - COUNT(DISTINCT hash(
				cab_type, vendor_id, pickup_datetime, dropoff_datetime, passenger_count, trip_distance
			)),
			COUNT(*) FILTER (WHERE passenger_count = 0),
			COUNT(*) FILTER (WHERE trip_distance = 0),
			COUNT(*) FILTER (WHERE trip_distance > %d),
			COUNT(*) FILTER (WHERE %s <= 0 OR %s > %d),
			MIN(pickup_datetime),
			MAX(pickup_datetime)
		FROM %s`,
		MaxTripMiles, durationSQL, durationSQL, MaxTripSeconds, database.QuoteIdent(table))

	var v contracts.Verification
	var minPickup, maxPickup sql.NullTime
	err := c.db.Conn.QueryRowContext(ctx, query).Scan(
		&v.Duplicates,
		&v.ZeroPassengers,
		&v.ZeroDistance,
		&v.OverMaxDistance,
		&v.InvalidDuration,
		&minPickup,
		&maxPickup,
	)
	if err != nil {
		return nil, fmt.Errorf("verify %s: %w", table, err)
	}
	if minPickup.Valid {
		v.MinPickup = &minPickup.Time
	}
	if maxPickup.Valid {
		v.MaxPickup = &maxPickup.Time
	}

	log := c.logger.WithFields(map[string]interface{}{
		"table":             table,
		"duplicates":        v.Duplicates,
		"zero_passengers":   v.ZeroPassengers,
		"zero_distance":     v.ZeroDistance,
		"over_max_distance": v.OverMaxDistance,
		"invalid_duration":  v.InvalidDuration,
	})
	if v.Clean() {
		log.Info("Verification passed")
	} else {
		log.Warn("Verification found remaining anomalies")
	}

	return &v, nil
}
