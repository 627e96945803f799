package analyzer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/taxico2/internal/contracts"
	"github.com/wonny/taxico2/pkg/database"
	"github.com/wonny/taxico2/pkg/logger"
)

// Analyzer runs the read-only aggregate battery over transformed tables
type Analyzer struct {
	db     *database.DB
	scope  contracts.Scope
	logger *logger.Logger
}

// New creates a new Analyzer instance
func New(db *database.DB, scope contracts.Scope, log *logger.Logger) *Analyzer {
	return &Analyzer{
		db:     db,
		scope:  scope,
		logger: log.WithField("module", "analyzer"),
	}
}

// Scope returns the scope the analyzer reads
func (a *Analyzer) Scope() contracts.Scope {
	return a.scope
}

// CheckTables verifies both transformed tables exist
func (a *Analyzer) CheckTables(ctx context.Context) error {
	for _, cab := range contracts.CabTypes {
		if err := a.db.RequireTables(ctx, a.scope.TransformedTable(cab)); err != nil {
			a.logger.WithError(err).Error("Precondition failed")
			return err
		}
	}
	return nil
}

// Run computes every result for both cab types. Charts are rendered by the
// caller since their failure must not fail the analysis.
func (a *Analyzer) Run(ctx context.Context) (*contracts.AnalysisReport, error) {
	if err := a.CheckTables(ctx); err != nil {
		return nil, err
	}

	report := &contracts.AnalysisReport{
		Scope:   a.scope,
		Largest: make(map[contracts.CabType]*contracts.LargestTrip),
		Buckets: make(map[contracts.CabType][]contracts.BucketExtremes),
	}

	for _, cab := range contracts.CabTypes {
		table := a.scope.TransformedTable(cab)

		largest, err := a.LargestTrip(ctx, table)
		if err != nil {
			return nil, err
		}
		report.Largest[cab] = largest

		for _, dim := range contracts.Dimensions {
			ext, err := a.BucketExtremes(ctx, table, dim, a.scope.Aggregate)
			if err != nil {
				return nil, err
			}
			if ext == nil {
				continue
			}
			ext.CabType = cab
			report.Buckets[cab] = append(report.Buckets[cab], *ext)
		}
	}

	monthly, err := a.MonthlySeries(ctx,
		a.scope.TransformedTable(contracts.CabYellow),
		a.scope.TransformedTable(contracts.CabGreen),
		a.scope,
	)
	if err != nil {
		return nil, err
	}
	report.Monthly = monthly

	a.logger.WithField("months", len(monthly)).Info("Analysis complete")
	return report, nil
}

// LargestTrip returns the trip with maximum CO2, or nil when every row
// has a null CO2
func (a *Analyzer) LargestTrip(ctx context.Context, table string) (*contracts.LargestTrip, error) {
	query := fmt.Sprintf(`
		SELECT cab_type, trip_co2_kgs, trip_distance, pickup_datetime, dropoff_datetime
		FROM %s
		WHERE trip_co2_kgs IS NOT NULL
		ORDER BY trip_co2_kgs DESC
		LIMIT 1`, database.QuoteIdent(table))

	var lt contracts.LargestTrip
	var cab string
	err := a.db.Conn.QueryRowContext(ctx, query).Scan(
		&cab, &lt.TripCO2Kgs, &lt.TripDistance, &lt.PickupDatetime, &lt.DropoffDatetime,
	)
	if errors.Is(err, sql.ErrNoRows) {
		a.logger.WithField("table", table).Warn("No trips with CO2")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("largest trip in %s: %w", table, err)
	}
	lt.CabType = contracts.CabType(cab)

	a.logger.WithFields(map[string]interface{}{
		"table":        table,
		"trip_co2_kgs": lt.TripCO2Kgs,
	}).Info("Largest trip")

	return &lt, nil
}

// BucketExtremes returns the heaviest and lightest bucket of one dimension.
// Rows with null CO2 are excluded; ties go to the smaller bucket key.
// It returns nil when the table has no scored rows.
func (a *Analyzer) BucketExtremes(ctx context.Context, table string, dim contracts.Dimension, agg contracts.Aggregate) (*contracts.BucketExtremes, error) {
	if _, ok := contracts.ParseDimension(string(dim)); !ok {
		return nil, fmt.Errorf("unknown dimension %q", dim)
	}

	fn := "SUM"
	if agg == contracts.AggregateMean {
		fn = "AVG"
	}

	query := fmt.Sprintf(`
		WITH agg AS (
			SELECT %[1]s AS bucket, %[2]s(trip_co2_kgs) AS value, COUNT(*) AS trips
			FROM %[3]s
			WHERE trip_co2_kgs IS NOT NULL
			GROUP BY %[1]s
		)
		SELECT h.bucket, h.value, h.trips, l.bucket, l.value, l.trips
		FROM (SELECT * FROM agg ORDER BY value DESC, bucket ASC LIMIT 1) h,
		     (SELECT * FROM agg ORDER BY value ASC, bucket ASC LIMIT 1) l`,
		database.QuoteIdent(string(dim)), fn, database.QuoteIdent(table))

	ext := contracts.BucketExtremes{Dimension: dim, Aggregate: agg}
	err := a.db.Conn.QueryRowContext(ctx, query).Scan(
		&ext.Heavy.Key, &ext.Heavy.Value, &ext.Heavy.Trips,
		&ext.Light.Key, &ext.Light.Value, &ext.Light.Trips,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s extremes in %s: %w", dim, table, err)
	}
	ext.Heavy.Label = dim.BucketLabel(ext.Heavy.Key)
	ext.Light.Label = dim.BucketLabel(ext.Light.Key)

	return &ext, nil
}

// MonthlySeries returns total CO2 per calendar month of the scope for both
// tables, with zeros for months that have no rows
func (a *Analyzer) MonthlySeries(ctx context.Context, yellow, green string, scope contracts.Scope) ([]contracts.MonthPoint, error) {
	last := scope.WindowEnd().AddDate(0, -1, 0)

	query := fmt.Sprintf(`
		WITH months AS (
			SELECT unnest(generate_series(TIMESTAMP '%[1]s', TIMESTAMP '%[2]s', INTERVAL 1 MONTH)) AS month
		),
		y AS (
			SELECT CAST(date_trunc('month', pickup_datetime) AS TIMESTAMP) AS month, SUM(trip_co2_kgs) AS total
			FROM %[3]s
			GROUP BY 1
		),
		g AS (
			SELECT CAST(date_trunc('month', pickup_datetime) AS TIMESTAMP) AS month, SUM(trip_co2_kgs) AS total
			FROM %[4]s
			GROUP BY 1
		)
		SELECT
			m.month,
			COALESCE(y.total, 0) AS yellow_total_co2,
			COALESCE(g.total, 0) AS green_total_co2
		FROM months m
		LEFT JOIN y ON y.month = m.month
		LEFT JOIN g ON g.month = m.month
		ORDER BY m.month`,
		scope.WindowStart().Format("2006-01-02"),
		last.Format("2006-01-02"),
		database.QuoteIdent(yellow),
		database.QuoteIdent(green),
	)

	rows, err := a.db.Conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("monthly series: %w", err)
	}
	defer rows.Close()

	var series []contracts.MonthPoint
	for rows.Next() {
		var p contracts.MonthPoint
		if err := rows.Scan(&p.Month, &p.Yellow, &p.Green); err != nil {
			return nil, fmt.Errorf("scan monthly point: %w", err)
		}
		p.Month = time.Date(p.Month.Year(), p.Month.Month(), 1, 0, 0, 0, 0, time.UTC)
		series = append(series, p)
	}
	return series, rows.Err()
}
