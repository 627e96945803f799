package transformer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/wonny/taxico2/internal/contracts"
	"github.com/wonny/taxico2/pkg/database"
	"github.com/wonny/taxico2/pkg/logger"
)

// SampleSize is the number of output rows captured for inspection
const SampleSize = 5

// Transformer derives the emissions and calendar columns of cleaned tables
// ⭐ SSOT: *_transformed tables are only created here
type Transformer struct {
	db     *database.DB
	scope  contracts.Scope
	logger *logger.Logger
}

// New creates a new Transformer instance
func New(db *database.DB, scope contracts.Scope, log *logger.Logger) *Transformer {
	return &Transformer{
		db:     db,
		scope:  scope,
		logger: log.WithField("module", "transformer"),
	}
}

// vehicleKeySQL maps cab_type to its lookup key; other values join nothing
func vehicleKeySQL() string {
	var b strings.Builder
	b.WriteString("CASE")
	for _, cab := range contracts.CabTypes {
		fmt.Fprintf(&b, " WHEN t.cab_type = %s THEN %s",
			database.QuoteLiteral(string(cab)), database.QuoteLiteral(cab.VehicleKey()))
	}
	b.WriteString(" ELSE NULL END")
	return b.String()
}

// transformSQL builds the CREATE OR REPLACE statement for one table
func transformSQL(source, dest string, hourBase int) string {
	return fmt.Sprintf(`
		CREATE OR REPLACE TABLE %[2]s AS
		WITH joined AS (
			SELECT
				t.cab_type,
				t.vendor_id,
				t.pickup_datetime,
				t.dropoff_datetime,
				t.passenger_count,
				t.trip_distance,
				ve.co2_grams_per_mile,
				date_diff('second', t.pickup_datetime, t.dropoff_datetime) AS duration_seconds
			FROM %[1]s t
			LEFT JOIN %[3]s ve
			  ON ve.vehicle_type = %[4]s
		)
		SELECT
			cab_type,
			vendor_id,
			pickup_datetime,
			dropoff_datetime,
			passenger_count,
			trip_distance,
			(trip_distance * co2_grams_per_mile) / 1000.0 AS trip_co2_kgs,
			CASE
				WHEN duration_seconds > 0 THEN trip_distance / (duration_seconds / 3600.0)
				ELSE NULL
			END AS avg_mph,
			CAST(date_part('hour', pickup_datetime) + %[5]d AS INTEGER) AS hour_of_day,
			CAST(date_part('dow', pickup_datetime) AS INTEGER) AS day_of_week,
			CAST(date_part('week', pickup_datetime) AS INTEGER) AS week_of_year,
			CAST(date_part('month', pickup_datetime) AS INTEGER) AS month_of_year
		FROM joined`,
		database.QuoteIdent(source),
		database.QuoteIdent(dest),
		database.QuoteIdent(contracts.EmissionsTable),
		vehicleKeySQL(),
		hourBase,
	)
}

// Transform replaces {table}_transformed with the derived dataset and
// reports row parity, lookup coverage, schema and a sample. Parity loss is
// logged, not returned as an error.
func (t *Transformer) Transform(ctx context.Context, table string) (*contracts.TransformReport, error) {
	if err := t.db.RequireTables(ctx, table, contracts.EmissionsTable); err != nil {
		return nil, err
	}

	dest := contracts.TransformedName(table)
	log := t.logger.WithFields(map[string]interface{}{
		"source":      table,
		"destination": dest,
	})
	log.Info("Starting transform")

	report := &contracts.TransformReport{Source: table, Destination: dest}

	keys, err := t.LookupKeys(ctx)
	if err != nil {
		return nil, err
	}
	report.LookupKeys = keys

	if _, err := t.db.Conn.ExecContext(ctx, transformSQL(table, dest, t.scope.HourBase)); err != nil {
		return report, fmt.Errorf("create %s: %w", dest, err)
	}
	log.Info("Created transformed table")

	if report.SourceRows, err = t.db.RowCount(ctx, table); err != nil {
		return report, err
	}
	if report.DestinationRows, err = t.db.RowCount(ctx, dest); err != nil {
		return report, err
	}

	nullQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE trip_co2_kgs IS NULL`, database.QuoteIdent(dest))
	if err := t.db.Conn.QueryRowContext(ctx, nullQuery).Scan(&report.NullCO2Rows); err != nil {
		return report, fmt.Errorf("count null co2 in %s: %w", dest, err)
	}

	if report.Schema, err = t.Describe(ctx, dest); err != nil {
		return report, err
	}
	if report.Sample, err = t.Sample(ctx, dest, SampleSize); err != nil {
		return report, err
	}

	log = log.WithFields(map[string]interface{}{
		"src_rows": report.SourceRows,
		"dst_rows": report.DestinationRows,
		"null_co2": report.NullCO2Rows,
	})
	switch {
	case !report.Parity():
		log.Error("Row count changed during transform")
	case report.NullCO2Rows > 0:
		log.Warn("Rows without an emissions factor")
	default:
		log.Info("Transform complete")
	}

	return report, nil
}

// LookupKeys counts the emissions rows present for each cab vehicle key
func (t *Transformer) LookupKeys(ctx context.Context) (map[string]int64, error) {
	keys := make(map[string]int64, len(contracts.CabTypes))
	for _, cab := range contracts.CabTypes {
		keys[cab.VehicleKey()] = 0
	}

	query := fmt.Sprintf(`
		SELECT vehicle_type, COUNT(*)
		FROM %s
		WHERE vehicle_type IN (%s, %s)
		GROUP BY vehicle_type`,
		database.QuoteIdent(contracts.EmissionsTable),
		database.QuoteLiteral(contracts.CabYellow.VehicleKey()),
		database.QuoteLiteral(contracts.CabGreen.VehicleKey()),
	)
	rows, err := t.db.Conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query lookup keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scan lookup key: %w", err)
		}
		keys[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for key, n := range keys {
		if n == 0 {
			t.logger.WithField("vehicle_type", key).Warn("Emissions lookup has no row for vehicle key")
		}
	}
	t.logger.WithField("keys", keys).Info("Emissions lookup keys present")

	return keys, nil
}

// Describe returns the column names and types of a table
func (t *Transformer) Describe(ctx context.Context, table string) ([]contracts.Column, error) {
	rows, err := t.db.Conn.QueryContext(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_name = ?
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}
	defer rows.Close()

	var cols []contracts.Column
	for rows.Next() {
		var c contracts.Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// Sample returns up to n rows of a transformed table
func (t *Transformer) Sample(ctx context.Context, table string, n int) ([]contracts.TransformedTrip, error) {
	query := fmt.Sprintf(`
		SELECT cab_type, vendor_id, pickup_datetime, dropoff_datetime, passenger_count, trip_distance,
		       trip_co2_kgs, avg_mph, hour_of_day, day_of_week, week_of_year, month_of_year
		FROM %s
		LIMIT ?`, database.QuoteIdent(table))

	rows, err := t.db.Conn.QueryContext(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", table, err)
	}
	defer rows.Close()

	var sample []contracts.TransformedTrip
	for rows.Next() {
		var (
			tt         contracts.TransformedTrip
			cab        string
			vendor     sql.NullInt64
			passengers sql.NullFloat64
			co2, mph   sql.NullFloat64
		)
		err := rows.Scan(&cab, &vendor, &tt.PickupDatetime, &tt.DropoffDatetime, &passengers, &tt.TripDistance,
			&co2, &mph, &tt.HourOfDay, &tt.DayOfWeek, &tt.WeekOfYear, &tt.MonthOfYear)
		if err != nil {
			return nil, fmt.Errorf("scan sample of %s: %w", table, err)
		}
		tt.CabType = contracts.CabType(cab)
		if vendor.Valid {
			tt.VendorID = &vendor.Int64
		}
		if passengers.Valid {
			tt.PassengerCount = &passengers.Float64
		}
		if co2.Valid {
			tt.TripCO2Kgs = &co2.Float64
		}
		if mph.Valid {
			tt.AvgMPH = &mph.Float64
		}
		sample = append(sample, tt)
	}
	return sample, rows.Err()
}
