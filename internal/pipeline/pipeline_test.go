package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/taxico2/internal/contracts"
	"github.com/wonny/taxico2/pkg/config"
	"github.com/wonny/taxico2/pkg/database"
)

// writeExtract writes a monthly extract with two valid trips and one
// zero-passenger trip
func writeExtract(t *testing.T, path, prefix string, miles float64) {
	t.Helper()
	db, err := database.Open("", database.Options{})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Conn.Exec(fmt.Sprintf(`
		COPY (
			SELECT
				1::INTEGER AS VendorID,
				TIMESTAMP '2024-03-04 08:00:00' + INTERVAL (i) HOUR AS %[1]s_pickup_datetime,
				TIMESTAMP '2024-03-04 08:30:00' + INTERVAL (i) HOUR AS %[1]s_dropoff_datetime,
				CASE WHEN i = 2 THEN 0.0 ELSE 1.0 END AS passenger_count,
				%[2]f AS trip_distance
			FROM range(3) t(i)
		) TO %[3]s (FORMAT PARQUET)`, prefix, miles, database.QuoteLiteral(path)))
	require.NoError(t, err)
}

func testConfig(t *testing.T) (*config.Config, *[]string) {
	t.Helper()
	src := t.TempDir()
	yellow := filepath.Join(src, "yellow.parquet")
	green := filepath.Join(src, "green.parquet")
	writeExtract(t, yellow, "tpep", 10)
	writeExtract(t, green, "lpep", 5)

	csv := filepath.Join(src, "vehicle_emissions.csv")
	require.NoError(t, os.WriteFile(csv, []byte("vehicle_type,co2_grams_per_mile\nyellow_taxi,400\ngreen_taxi,350\n"), 0o644))

	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.Path)
		if strings.Contains(r.URL.Path, "yellow_") {
			http.ServeFile(w, r, yellow)
			return
		}
		http.ServeFile(w, r, green)
	}))
	t.Cleanup(server.Close)

	out := t.TempDir()
	return &config.Config{
		Env:      "test",
		Database: config.DatabaseConfig{Path: filepath.Join(out, "emissions.duckdb")},
		Scope:    "2024",
		Source: config.SourceConfig{
			BaseURL:      server.URL,
			FetchDelay:   time.Millisecond,
			FetchTimeout: 10 * time.Second,
			CacheDir:     filepath.Join(out, "cache"),
		},
		EmissionsCSV: csv,
		ChartDir:     filepath.Join(out, "charts"),
		ReportXLSX:   filepath.Join(out, "report.xlsx"),
		LogLevel:     "error",
		LogFormat:    "json",
		LogDir:       filepath.Join(out, "logs"),
	}, &requests
}

func TestRunAll(t *testing.T) {
	cfg, requests := testConfig(t)
	runner, err := NewRunner(cfg)
	require.NoError(t, err)

	res, err := runner.RunAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, *requests, 24)

	// every month serves the same three rows, so dedup collapses them
	require.Len(t, res.Clean, 2)
	for _, report := range res.Clean {
		assert.Equal(t, int64(36), report.Steps[0].Before)
		assert.Equal(t, int64(3), report.Steps[0].After)
		assert.Equal(t, int64(34), report.TotalRemoved())
		assert.True(t, report.Verification.Clean())
	}

	require.Len(t, res.Transform, 2)
	for _, report := range res.Transform {
		assert.True(t, report.Parity())
		assert.Equal(t, int64(2), report.DestinationRows)
		assert.Zero(t, report.NullCO2Rows)
	}

	require.NotNil(t, res.Analysis)
	report := res.Analysis.Report
	assert.InDelta(t, 4.0, report.Largest[contracts.CabYellow].TripCO2Kgs, 1e-9)
	assert.InDelta(t, 1.75, report.Largest[contracts.CabGreen].TripCO2Kgs, 1e-9)
	require.Len(t, report.Monthly, 12)
	assert.InDelta(t, 8.0, report.Monthly[2].Yellow, 1e-9)
	assert.InDelta(t, 3.5, report.Monthly[2].Green, 1e-9)

	assert.NoError(t, res.Analysis.ChartErr)
	assert.Equal(t, []string{filepath.Join(cfg.ChartDir, "monthly_co2_dual_axis.png")}, res.Analysis.Charts)
	assert.NoError(t, res.Analysis.WorkbookErr)
	assert.FileExists(t, cfg.ReportXLSX)

	for _, stage := range contracts.Stages {
		assert.FileExists(t, filepath.Join(cfg.LogDir, stage.String()+".log"))
	}

	require.Len(t, res.Stages, len(contracts.Stages))
	for i, o := range res.Stages {
		assert.Equal(t, contracts.Stages[i], o.Stage)
		assert.False(t, o.Failed())
		assert.False(t, o.StartTime.IsZero())
	}
	_, failed := res.FailedStage()
	assert.False(t, failed)
}

func TestAnalyzeIsolatesChartFailure(t *testing.T) {
	cfg, _ := testConfig(t)

	// a regular file where the chart directory should be
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg.ChartDir = blocker

	runner, err := NewRunner(cfg)
	require.NoError(t, err)

	res, err := runner.RunAll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Analysis)
	require.NotNil(t, res.Analysis.Report)
	assert.Error(t, res.Analysis.ChartErr)
	assert.Empty(t, res.Analysis.Charts)
	assert.InDelta(t, 4.0, res.Analysis.Report.Largest[contracts.CabYellow].TripCO2Kgs, 1e-9)

	// the workbook is still written
	assert.NoError(t, res.Analysis.WorkbookErr)
	assert.FileExists(t, cfg.ReportXLSX)

	require.Len(t, res.Stages, len(contracts.Stages))
	assert.False(t, res.Stages[len(res.Stages)-1].Failed())
}

func TestRunAllStopsAtFailedStage(t *testing.T) {
	cfg, _ := testConfig(t)
	missing := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(missing.Close)
	cfg.Source.BaseURL = missing.URL

	runner, err := NewRunner(cfg)
	require.NoError(t, err)

	res, err := runner.RunAll(context.Background())
	require.Error(t, err)
	require.Len(t, res.Stages, 1)
	assert.True(t, res.Stages[0].Failed())

	stage, failed := res.FailedStage()
	assert.True(t, failed)
	assert.Equal(t, contracts.StageLoad, stage)
	assert.Nil(t, res.Clean)
	assert.Nil(t, res.Analysis)
}

func TestAnalyzeMissingDatabase(t *testing.T) {
	cfg, _ := testConfig(t)
	runner, err := NewRunner(cfg)
	require.NoError(t, err)

	_, err = runner.Analyze(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, database.ErrDatabaseNotFound))
}

func TestCleanBeforeLoad(t *testing.T) {
	cfg, _ := testConfig(t)
	runner, err := NewRunner(cfg)
	require.NoError(t, err)

	_, err = runner.Clean(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, database.ErrTableMissing))
	assert.Contains(t, err.Error(), "yellow_trips_2024")
}

func TestNewRunnerRejectsUnknownScope(t *testing.T) {
	_, err := NewRunner(&config.Config{Scope: "2019"})
	assert.Error(t, err)
}
