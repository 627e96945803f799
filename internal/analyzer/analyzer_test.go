package analyzer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/wonny/taxico2/internal/contracts"
	"github.com/wonny/taxico2/pkg/database"
	"github.com/wonny/taxico2/pkg/logger"
)

// row is one transformed record; co2 nil means the lookup join failed
type row struct {
	pickup time.Time
	miles  float64
	co2    *float64
	hour   int
	dow    int
	week   int
	month  int
}

func kg(v float64) *float64 { return &v }

func at(month time.Month, day, hour int) time.Time {
	return time.Date(2024, month, day, hour, 0, 0, 0, time.UTC)
}

func seed(t *testing.T, tables map[string][]row) *database.DB {
	t.Helper()
	db, err := database.Open("", database.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for table, rows := range tables {
		cab := "yellow"
		if table[:5] == "green" {
			cab = "green"
		}
		_, err := db.Conn.Exec(`CREATE TABLE ` + database.QuoteIdent(table) + ` (
			cab_type VARCHAR, vendor_id BIGINT, pickup_datetime TIMESTAMP, dropoff_datetime TIMESTAMP,
			passenger_count DOUBLE, trip_distance DOUBLE, trip_co2_kgs DOUBLE, avg_mph DOUBLE,
			hour_of_day INTEGER, day_of_week INTEGER, week_of_year INTEGER, month_of_year INTEGER)`)
		require.NoError(t, err)

		for _, r := range rows {
			var co2 any
			if r.co2 != nil {
				co2 = *r.co2
			}
			_, err := db.Conn.Exec(`INSERT INTO `+database.QuoteIdent(table)+
				` VALUES (?, 1, ?, ?, 1.0, ?, ?, 12.0, ?, ?, ?, ?)`,
				cab, r.pickup, r.pickup.Add(10*time.Minute), r.miles, co2, r.hour, r.dow, r.week, r.month)
			require.NoError(t, err)
		}
	}
	return db
}

func newAnalyzer(t *testing.T, db *database.DB, scopeName string) *Analyzer {
	t.Helper()
	scope, err := contracts.ResolveScope(scopeName, "")
	require.NoError(t, err)
	return New(db, scope, logger.Nop())
}

func TestBucketExtremes(t *testing.T) {
	db := seed(t, map[string][]row{
		"yellow_trips_2024_transformed": {
			{pickup: at(1, 2, 3), miles: 100, co2: kg(60), hour: 3},
			{pickup: at(1, 3, 3), miles: 80, co2: kg(40), hour: 3},
			{pickup: at(1, 4, 7), miles: 10, co2: kg(5), hour: 7},
			{pickup: at(1, 5, 9), miles: 10, co2: nil, hour: 9}, // unscored
		},
	})
	a := newAnalyzer(t, db, "2024")
	ctx := context.Background()

	ext, err := a.BucketExtremes(ctx, "yellow_trips_2024_transformed", contracts.HourOfDay, contracts.AggregateSum)
	require.NoError(t, err)
	require.NotNil(t, ext)
	assert.Equal(t, contracts.Bucket{Key: 3, Label: "3", Value: 100, Trips: 2}, ext.Heavy)
	assert.Equal(t, contracts.Bucket{Key: 7, Label: "7", Value: 5, Trips: 1}, ext.Light)

	mean, err := a.BucketExtremes(ctx, "yellow_trips_2024_transformed", contracts.HourOfDay, contracts.AggregateMean)
	require.NoError(t, err)
	assert.Equal(t, 3, mean.Heavy.Key)
	assert.InDelta(t, 50.0, mean.Heavy.Value, 1e-9)
	assert.Equal(t, contracts.AggregateMean, mean.Aggregate)

	_, err = a.BucketExtremes(ctx, "yellow_trips_2024_transformed", contracts.Dimension("minute"), contracts.AggregateSum)
	assert.Error(t, err)
}

func TestBucketExtremesTieGoesToSmallerKey(t *testing.T) {
	db := seed(t, map[string][]row{
		"green_trips_2024_transformed": {
			{pickup: at(1, 7, 1), co2: kg(5), dow: 0},
			{pickup: at(1, 9, 1), co2: kg(5), dow: 2},
			{pickup: at(1, 11, 1), co2: kg(5), dow: 4},
		},
	})

	ext, err := newAnalyzer(t, db, "2024").BucketExtremes(context.Background(),
		"green_trips_2024_transformed", contracts.DayOfWeek, contracts.AggregateSum)
	require.NoError(t, err)
	assert.Equal(t, 0, ext.Heavy.Key)
	assert.Equal(t, "Sun", ext.Heavy.Label)
	assert.Equal(t, 0, ext.Light.Key)
}

func TestBucketExtremesEmpty(t *testing.T) {
	db := seed(t, map[string][]row{
		"green_trips_2024_transformed": {{pickup: at(2, 1, 1), co2: nil}},
	})

	ext, err := newAnalyzer(t, db, "2024").BucketExtremes(context.Background(),
		"green_trips_2024_transformed", contracts.MonthOfYear, contracts.AggregateSum)
	require.NoError(t, err)
	assert.Nil(t, ext)
}

func TestLargestTrip(t *testing.T) {
	db := seed(t, map[string][]row{
		"yellow_trips_2024_transformed": {
			{pickup: at(3, 1, 9), miles: 10, co2: kg(4.0)},
		},
		"green_trips_2024_transformed": {
			{pickup: at(4, 1, 9), miles: 5, co2: kg(1.75)},
			{pickup: at(4, 2, 9), miles: 99, co2: nil},
		},
	})
	a := newAnalyzer(t, db, "2024")
	ctx := context.Background()

	yellow, err := a.LargestTrip(ctx, "yellow_trips_2024_transformed")
	require.NoError(t, err)
	require.NotNil(t, yellow)
	assert.Equal(t, contracts.CabYellow, yellow.CabType)
	assert.InDelta(t, 4.0, yellow.TripCO2Kgs, 1e-9)
	assert.Equal(t, 10.0, yellow.TripDistance)

	green, err := a.LargestTrip(ctx, "green_trips_2024_transformed")
	require.NoError(t, err)
	require.NotNil(t, green)
	assert.InDelta(t, 1.75, green.TripCO2Kgs, 1e-9)
	assert.Equal(t, at(4, 1, 9), green.PickupDatetime.UTC())
}

func TestLargestTripNoScoredRows(t *testing.T) {
	db := seed(t, map[string][]row{
		"green_trips_2024_transformed": {{pickup: at(4, 2, 9), miles: 3, co2: nil}},
	})

	lt, err := newAnalyzer(t, db, "2024").LargestTrip(context.Background(), "green_trips_2024_transformed")
	require.NoError(t, err)
	assert.Nil(t, lt)
}

func TestMonthlySeriesSpine(t *testing.T) {
	db := seed(t, map[string][]row{
		"yellow_trips_2024_transformed": {
			{pickup: at(1, 5, 8), co2: kg(2)},
			{pickup: at(1, 20, 8), co2: kg(3)},
			{pickup: at(6, 1, 8), co2: kg(7)},
		},
		"green_trips_2024_transformed": {
			{pickup: at(6, 15, 8), co2: kg(1.5)},
			{pickup: at(6, 16, 8), co2: nil},
		},
	})
	a := newAnalyzer(t, db, "2024")

	series, err := a.MonthlySeries(context.Background(),
		"yellow_trips_2024_transformed", "green_trips_2024_transformed", a.Scope())
	require.NoError(t, err)

	require.Len(t, series, 12)
	for i, p := range series {
		assert.Equal(t, time.Date(2024, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC), p.Month)
	}
	assert.InDelta(t, 5.0, series[0].Yellow, 1e-9)
	assert.Zero(t, series[0].Green)
	assert.Zero(t, series[1].Yellow)
	assert.InDelta(t, 7.0, series[5].Yellow, 1e-9)
	assert.InDelta(t, 1.5, series[5].Green, 1e-9)
	assert.Zero(t, series[11].Yellow)
}

func TestMonthlySeriesDecade(t *testing.T) {
	db := seed(t, map[string][]row{
		"yellow_trips_all_transformed": {
			{pickup: time.Date(2015, 1, 3, 0, 0, 0, 0, time.UTC), co2: kg(1)},
			{pickup: time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC), co2: kg(2)},
		},
		"green_trips_all_transformed": nil,
	})
	a := newAnalyzer(t, db, "decade")

	series, err := a.MonthlySeries(context.Background(),
		"yellow_trips_all_transformed", "green_trips_all_transformed", a.Scope())
	require.NoError(t, err)
	require.Len(t, series, 120)
	assert.InDelta(t, 1.0, series[0].Yellow, 1e-9)
	assert.InDelta(t, 2.0, series[119].Yellow, 1e-9)
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), series[119].Month)
}

func TestRunMissingTable(t *testing.T) {
	db := seed(t, map[string][]row{"yellow_trips_2024_transformed": nil})

	_, err := newAnalyzer(t, db, "2024").Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, database.ErrTableMissing))
}

func TestRunChartsAndWorkbook(t *testing.T) {
	db := seed(t, map[string][]row{
		"yellow_trips_2024_transformed": {
			{pickup: at(2, 5, 8), miles: 10, co2: kg(4), hour: 8, dow: 1, week: 6, month: 2},
		},
		"green_trips_2024_transformed": {
			{pickup: at(3, 5, 8), miles: 5, co2: kg(1.75), hour: 8, dow: 2, week: 10, month: 3},
		},
	})
	a := newAnalyzer(t, db, "2024")

	report, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Buckets[contracts.CabYellow], 4)
	assert.Len(t, report.Monthly, 12)

	dir := t.TempDir()
	paths, err := RenderCharts(dir, report.Scope, report.Monthly)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, DualAxisChart)}, paths)
	info, err := os.Stat(paths[0])
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	xlsx := filepath.Join(dir, "report.xlsx")
	require.NoError(t, ExportWorkbook(xlsx, report))

	f, err := excelize.OpenFile(xlsx)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SheetLargest, SheetBuckets, SheetMonthly}, f.GetSheetList())

	rows, err := f.GetRows(SheetMonthly)
	require.NoError(t, err)
	assert.Len(t, rows, 13)
	assert.Equal(t, "2024-02", rows[2][0])
}

func TestRenderChartsDecade(t *testing.T) {
	scope, err := contracts.ResolveScope("decade", "")
	require.NoError(t, err)

	series := make([]contracts.MonthPoint, 0, 120)
	for _, m := range scope.Months() {
		series = append(series, contracts.MonthPoint{Month: m, Yellow: float64(m.Month()), Green: 1})
	}

	dir := t.TempDir()
	paths, err := RenderCharts(dir, scope, series)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "monthly_co2_yellow.png"),
		filepath.Join(dir, "monthly_co2_green.png"),
	}, paths)

	_, err = RenderCharts(dir, scope, nil)
	assert.Error(t, err)
}
