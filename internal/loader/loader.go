package loader

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wonny/taxico2/internal/contracts"
	"github.com/wonny/taxico2/pkg/database"
	"github.com/wonny/taxico2/pkg/logger"
)

// Fetcher downloads one remote extract to a local path
type Fetcher interface {
	Download(ctx context.Context, url, destPath string) (int64, error)
}

// Config holds loader settings
type Config struct {
	BaseURL       string
	CacheDir      string
	KeepDownloads bool
	EmissionsCSV  string
	Pause         time.Duration // blocking pause between month fetches
}

// Loader fetches monthly trip extracts and the emissions lookup into DuckDB
// ⭐ SSOT: raw tables are only created here
type Loader struct {
	db      *database.DB
	fetcher Fetcher
	scope   contracts.Scope
	config  Config
	logger  *logger.Logger

	fetched bool // a month was already fetched in this run
}

// New creates a new Loader instance
func New(db *database.DB, fetcher Fetcher, scope contracts.Scope, cfg Config, log *logger.Logger) *Loader {
	return &Loader{
		db:      db,
		fetcher: fetcher,
		scope:   scope,
		config:  cfg,
		logger:  log.WithField("module", "loader"),
	}
}

// timestampPrefix is the source column prefix per cab type
var timestampPrefix = map[contracts.CabType]string{
	contracts.CabYellow: "tpep",
	contracts.CabGreen:  "lpep",
}

// ExtractName is the remote file name of one monthly extract
func ExtractName(cab contracts.CabType, year, month int) string {
	return fmt.Sprintf("%s_tripdata_%04d-%02d.parquet", cab, year, month)
}

// ExtractURL builds the URL of one monthly extract
func ExtractURL(baseURL string, cab contracts.CabType, year, month int) string {
	return strings.TrimRight(baseURL, "/") + "/" + ExtractName(cab, year, month)
}

// Load replaces both raw tables with every month of the scope, loads the
// emissions lookup and returns a summary. The first failing month aborts
// the run; months already inserted stay committed.
func (l *Loader) Load(ctx context.Context) (*contracts.LoadReport, error) {
	report := &contracts.LoadReport{}

	for _, cab := range contracts.CabTypes {
		months, bytes, err := l.LoadCab(ctx, cab)
		report.Months += months
		report.Bytes += bytes
		if err != nil {
			return report, err
		}
	}

	if err := l.LoadEmissions(ctx); err != nil {
		return report, err
	}

	for _, cab := range contracts.CabTypes {
		summary, err := l.Summarize(ctx, l.scope.RawTable(cab))
		if err != nil {
			return report, err
		}
		report.Tables = append(report.Tables, *summary)
	}

	count, err := l.db.RowCount(ctx, contracts.EmissionsTable)
	if err != nil {
		return report, err
	}
	report.EmissionsRows = count

	preview, err := l.PreviewEmissions(ctx, 5)
	if err != nil {
		return report, err
	}
	report.Preview = preview

	l.logger.WithFields(map[string]interface{}{
		"months":         report.Months,
		"bytes":          report.Bytes,
		"emissions_rows": report.EmissionsRows,
	}).Info("Load complete")

	return report, nil
}

// LoadCab drops and rebuilds the raw table of one cab type, month by month
// in chronological order. It returns the number of months and bytes loaded.
func (l *Loader) LoadCab(ctx context.Context, cab contracts.CabType) (int, int64, error) {
	table := l.scope.RawTable(cab)

	if _, err := l.db.Conn.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, database.QuoteIdent(table))); err != nil {
		return 0, 0, fmt.Errorf("drop %s: %w", table, err)
	}

	var loaded int
	var total int64
	for i, month := range l.scope.Months() {
		year, mon := month.Year(), int(month.Month())

		n, err := l.loadMonth(ctx, cab, table, year, mon, i == 0)
		if err != nil {
			return loaded, total, fmt.Errorf("load %s %04d-%02d: %w", cab, year, mon, err)
		}
		loaded++
		total += n

		l.logger.WithFields(map[string]interface{}{
			"table": table,
			"year":  year,
			"month": mon,
			"bytes": n,
		}).Info("Loaded month")
	}

	l.logger.WithFields(map[string]interface{}{
		"table":  table,
		"months": loaded,
	}).Info("Loaded all months")

	return loaded, total, nil
}

// loadMonth downloads one extract and creates or appends to the raw table
func (l *Loader) loadMonth(ctx context.Context, cab contracts.CabType, table string, year, month int, first bool) (int64, error) {
	url := ExtractURL(l.config.BaseURL, cab, year, month)
	dest := filepath.Join(l.config.CacheDir, ExtractName(cab, year, month))

	if l.fetched {
		if err := l.pause(ctx); err != nil {
			return 0, err
		}
	}
	l.fetched = true

	n, err := l.fetcher.Download(ctx, url, dest)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", url, err)
	}
	if !l.config.KeepDownloads {
		defer os.Remove(dest)
	}

	projection := projectionSQL(cab, dest)

	var stmt string
	if first {
		stmt = fmt.Sprintf(`CREATE TABLE %s AS %s`, database.QuoteIdent(table), projection)
	} else {
		stmt = fmt.Sprintf(`INSERT INTO %s %s`, database.QuoteIdent(table), projection)
	}

	if _, err := l.db.Conn.ExecContext(ctx, stmt); err != nil {
		return n, fmt.Errorf("insert into %s: %w", table, err)
	}

	return n, nil
}

// pause blocks for the full configured delay. It starts after the previous
// month finished loading, so slow downloads never shorten it.
func (l *Loader) pause(ctx context.Context) error {
	if l.config.Pause <= 0 {
		return nil
	}

	l.logger.WithField("pause", l.config.Pause).Debug("Pausing before next fetch")

	timer := time.NewTimer(l.config.Pause)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("pause before fetch: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// projectionSQL selects the fixed column subset from one local extract.
// Types are pinned so that later months with drifted source types append
// cleanly to the table the first month created.
func projectionSQL(cab contracts.CabType, path string) string {
	prefix := timestampPrefix[cab]
	return fmt.Sprintf(`
		SELECT
			%s AS cab_type,
			CAST(VendorID AS BIGINT) AS vendor_id,
			CAST(%s_pickup_datetime AS TIMESTAMP) AS pickup_datetime,
			CAST(%s_dropoff_datetime AS TIMESTAMP) AS dropoff_datetime,
			CAST(passenger_count AS DOUBLE) AS passenger_count,
			CAST(trip_distance AS DOUBLE) AS trip_distance
		FROM read_parquet(%s)`,
		database.QuoteLiteral(string(cab)),
		prefix, prefix,
		database.QuoteLiteral(path),
	)
}

// LoadEmissions replaces the emissions lookup with the reference CSV
func (l *Loader) LoadEmissions(ctx context.Context) error {
	path := l.config.EmissionsCSV
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("emissions reference file: %w", err)
	}

	table := database.QuoteIdent(contracts.EmissionsTable)
	if _, err := l.db.Conn.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
		return fmt.Errorf("drop %s: %w", contracts.EmissionsTable, err)
	}

	stmt := fmt.Sprintf(`CREATE TABLE %s AS SELECT * FROM read_csv_auto(%s, header=true)`,
		table, database.QuoteLiteral(path))
	if _, err := l.db.Conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	l.logger.WithField("path", path).Info("Loaded emissions lookup")
	return nil
}

// Summarize returns the row count and pickup range of a table
func (l *Loader) Summarize(ctx context.Context, table string) (*contracts.TableSummary, error) {
	query := fmt.Sprintf(`SELECT COUNT(*), MIN(pickup_datetime), MAX(pickup_datetime) FROM %s`,
		database.QuoteIdent(table))

	var rows int64
	var minPickup, maxPickup sql.NullTime
	if err := l.db.Conn.QueryRowContext(ctx, query).Scan(&rows, &minPickup, &maxPickup); err != nil {
		return nil, fmt.Errorf("summarize %s: %w", table, err)
	}

	summary := &contracts.TableSummary{Table: table, Rows: rows}
	if minPickup.Valid {
		summary.MinPickup = &minPickup.Time
	}
	if maxPickup.Valid {
		summary.MaxPickup = &maxPickup.Time
	}

	l.logger.WithFields(map[string]interface{}{
		"table": table,
		"rows":  rows,
	}).Info("Table summary")

	return summary, nil
}

// PreviewEmissions returns the first n lookup rows
func (l *Loader) PreviewEmissions(ctx context.Context, n int) ([]contracts.EmissionFactor, error) {
	rows, err := l.db.Conn.QueryContext(ctx,
		fmt.Sprintf(`SELECT vehicle_type, co2_grams_per_mile FROM %s LIMIT ?`, database.QuoteIdent(contracts.EmissionsTable)),
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("preview %s: %w", contracts.EmissionsTable, err)
	}
	defer rows.Close()

	var preview []contracts.EmissionFactor
	for rows.Next() {
		var f contracts.EmissionFactor
		if err := rows.Scan(&f.VehicleType, &f.CO2GramsPerMile); err != nil {
			return nil, fmt.Errorf("scan emissions row: %w", err)
		}
		preview = append(preview, f)
	}
	return preview, rows.Err()
}
