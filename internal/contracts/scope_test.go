package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveScope(t *testing.T) {
	single, err := ResolveScope("2024", "")
	require.NoError(t, err)
	assert.Equal(t, "yellow_trips_2024", single.RawTable(CabYellow))
	assert.Equal(t, "green_trips_2024_transformed", single.TransformedTable(CabGreen))
	assert.Equal(t, AggregateSum, single.Aggregate)
	assert.Equal(t, 0, single.HourBase)
	assert.Equal(t, RulesetStrict, single.Ruleset)
	assert.Equal(t, "2024", single.Label())

	decade, err := ResolveScope("decade", "legacy")
	require.NoError(t, err)
	assert.Equal(t, "yellow_trips_all", decade.RawTable(CabYellow))
	assert.Equal(t, AggregateMean, decade.Aggregate)
	assert.Equal(t, 1, decade.HourBase)
	assert.Equal(t, RulesetLegacy, decade.Ruleset)
	assert.Equal(t, "2015–2024", decade.Label())

	_, err = ResolveScope("2019", "")
	assert.Error(t, err)
	_, err = ResolveScope("2024", "loose")
	assert.Error(t, err)
}

func TestScopeWindow(t *testing.T) {
	scope, err := ResolveScope("2024", "")
	require.NoError(t, err)

	assert.True(t, scope.Contains(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, scope.Contains(time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)))
	assert.False(t, scope.Contains(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, scope.Contains(time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC)))
}

func TestScopeMonths(t *testing.T) {
	single, _ := ResolveScope("2024", "")
	months := single.Months()
	require.Len(t, months, 12)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), months[0])
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), months[11])

	decade, _ := ResolveScope("decade", "")
	assert.Len(t, decade.Months(), 120)
}

func TestCabType(t *testing.T) {
	assert.Equal(t, "yellow_taxi", CabYellow.VehicleKey())
	assert.Equal(t, "green_taxi", CabGreen.VehicleKey())
	assert.Equal(t, "", CabType("fhv").VehicleKey())
	assert.Equal(t, "Yellow", CabYellow.Label())

	cab, ok := ParseCabType("GREEN")
	assert.True(t, ok)
	assert.Equal(t, CabGreen, cab)
	_, ok = ParseCabType("blue")
	assert.False(t, ok)
}

func TestTripDurationSeconds(t *testing.T) {
	pickup := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	trip := Trip{PickupDatetime: pickup, DropoffDatetime: pickup.Add(90 * time.Second)}
	assert.Equal(t, int64(90), trip.DurationSeconds())

	trip.DropoffDatetime = pickup.Add(-time.Minute)
	assert.Equal(t, int64(-60), trip.DurationSeconds())

	// second boundaries, not elapsed time
	trip = Trip{
		PickupDatetime:  pickup.Add(900 * time.Millisecond),
		DropoffDatetime: pickup.Add(1100 * time.Millisecond),
	}
	assert.Equal(t, int64(1), trip.DurationSeconds())

	trip.DropoffDatetime = pickup.Add(1900 * time.Millisecond)
	trip.PickupDatetime = pickup.Add(1100 * time.Millisecond)
	assert.Equal(t, int64(0), trip.DurationSeconds())
}

func TestDimensionLabels(t *testing.T) {
	assert.Equal(t, "Sun", DayOfWeek.BucketLabel(0))
	assert.Equal(t, "Sat", DayOfWeek.BucketLabel(6))
	assert.Equal(t, "9", DayOfWeek.BucketLabel(9))
	assert.Equal(t, "Dec", MonthOfYear.BucketLabel(12))
	assert.Equal(t, "17", HourOfDay.BucketLabel(17))
	assert.Equal(t, "Hour of Day (1–24)", HourOfDay.Title(1))

	dim, ok := ParseDimension("dow")
	assert.True(t, ok)
	assert.Equal(t, DayOfWeek, dim)
	_, ok = ParseDimension("minute")
	assert.False(t, ok)
}

func TestVerificationClean(t *testing.T) {
	assert.True(t, Verification{}.Clean())
	assert.False(t, Verification{InvalidDuration: 1}.Clean())

	report := CleanReport{Steps: []StepResult{{Removed: 2}, {Removed: 3}}}
	assert.Equal(t, int64(5), report.TotalRemoved())

	assert.False(t, TransformReport{SourceRows: 3, DestinationRows: 2}.Parity())
}
