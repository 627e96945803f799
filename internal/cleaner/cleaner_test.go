package cleaner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/taxico2/internal/contracts"
	"github.com/wonny/taxico2/pkg/database"
	"github.com/wonny/taxico2/pkg/logger"
)

const rawTable = "yellow_trips_2024"

func ptr[T any](v T) *T { return &v }

func trip(pickup time.Time, seconds int, passengers *float64, miles float64) contracts.Trip {
	return contracts.Trip{
		CabType:         contracts.CabYellow,
		VendorID:        ptr(int64(2)),
		PickupDatetime:  pickup,
		DropoffDatetime: pickup.Add(time.Duration(seconds) * time.Second),
		PassengerCount:  passengers,
		TripDistance:    miles,
	}
}

// between builds a valid trip with exact pickup and dropoff instants
func between(pickup, dropoff time.Time) contracts.Trip {
	tr := trip(pickup, 0, ptr(1.0), 1.0)
	tr.DropoffDatetime = dropoff
	return tr
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func seed(t *testing.T, trips []contracts.Trip) *database.DB {
	t.Helper()
	db, err := database.Open("", database.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Conn.Exec(`CREATE TABLE yellow_trips_2024 (
		cab_type VARCHAR,
		vendor_id BIGINT,
		pickup_datetime TIMESTAMP,
		dropoff_datetime TIMESTAMP,
		passenger_count DOUBLE,
		trip_distance DOUBLE
	)`)
	require.NoError(t, err)

	for _, tr := range trips {
		_, err := db.Conn.Exec(`INSERT INTO yellow_trips_2024 VALUES (?, ?, ?, ?, ?, ?)`,
			string(tr.CabType), nullable(tr.VendorID), tr.PickupDatetime, tr.DropoffDatetime,
			nullable(tr.PassengerCount), tr.TripDistance)
		require.NoError(t, err)
	}
	return db
}

func scope(t *testing.T, ruleset string) contracts.Scope {
	t.Helper()
	s, err := contracts.ResolveScope("2024", ruleset)
	require.NoError(t, err)
	return s
}

var base = time.Date(2024, 6, 3, 8, 30, 0, 0, time.UTC)

func validTrips() []contracts.Trip {
	return []contracts.Trip{
		trip(base, 600, ptr(1.0), 2.4),
		trip(base.Add(time.Hour), 1200, ptr(2.0), 5.1),
		trip(base.Add(2*time.Hour), 300, nil, 0.8), // unknown passenger count is kept
	}
}

func TestCleanRemovesExactlyTheViolatingRows(t *testing.T) {
	trips := append(validTrips(),
		trip(base, 600, ptr(0.0), 2.0),                                         // zero passengers
		trip(base, 600, ptr(1.0), 150),                                         // over max distance
		trip(base, -120, ptr(1.0), 3.0),                                        // dropoff before pickup
		trip(time.Date(2023, 12, 31, 23, 50, 0, 0, time.UTC), 900, ptr(1.0), 1.0), // outside window
	)
	db := seed(t, trips)
	c := New(db, scope(t, ""), logger.Nop())
	ctx := context.Background()

	report, err := c.Clean(ctx, rawTable)
	require.NoError(t, err)

	assert.Equal(t, int64(4), report.TotalRemoved())
	require.Len(t, report.Steps, 6)
	assert.Equal(t, DedupStep, report.Steps[0].Rule)

	removed := map[string]int64{}
	for _, s := range report.Steps {
		removed[s.Rule] = s.Removed
		assert.Equal(t, s.Before-s.After, s.Removed)
	}
	assert.Equal(t, map[string]int64{
		DedupStep:               0,
		"zero_passengers":       1,
		"non_positive_distance": 0,
		"over_max_distance":     1,
		"invalid_duration":      1,
		"outside_window":        1,
	}, removed)

	count, err := db.RowCount(ctx, rawTable)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	assert.True(t, report.Verification.Clean())
	require.NotNil(t, report.Verification.MinPickup)
	assert.Equal(t, base, report.Verification.MinPickup.UTC())
}

func TestCleanDeduplicates(t *testing.T) {
	trips := append(validTrips(), validTrips()[0], validTrips()[0])
	db := seed(t, trips)

	report, err := New(db, scope(t, ""), logger.Nop()).Clean(context.Background(), rawTable)
	require.NoError(t, err)

	assert.Equal(t, contracts.StepResult{Rule: DedupStep, Before: 5, After: 3, Removed: 2}, report.Steps[0])
	assert.Zero(t, report.Verification.Duplicates)
}

func TestCleanIsIdempotent(t *testing.T) {
	trips := append(validTrips(),
		trip(base, 0, ptr(1.0), 1.0),
		trip(base, 600, ptr(1.0), -3.0),
		trip(base, MaxTripSeconds+1, ptr(1.0), 40),
	)
	db := seed(t, trips)
	c := New(db, scope(t, ""), logger.Nop())
	ctx := context.Background()

	first, err := c.Clean(ctx, rawTable)
	require.NoError(t, err)
	assert.Equal(t, int64(3), first.TotalRemoved())

	second, err := c.Clean(ctx, rawTable)
	require.NoError(t, err)
	assert.Zero(t, second.TotalRemoved())
	assert.True(t, second.Verification.Clean())
	assert.Equal(t, first.Verification.MinPickup, second.Verification.MinPickup)
	assert.Equal(t, first.Verification.MaxPickup, second.Verification.MaxPickup)
}

func TestLegacyRulesetKeepsNegativeDistanceAndZeroDuration(t *testing.T) {
	trips := append(validTrips(),
		trip(base, 0, ptr(1.0), 1.0),    // zero duration
		trip(base, 600, ptr(1.0), -3.0), // negative distance
		trip(base, 600, ptr(1.0), 0),    // zero distance
	)

	db := seed(t, trips)
	report, err := New(db, scope(t, "legacy"), logger.Nop()).Clean(context.Background(), rawTable)
	require.NoError(t, err)

	assert.Equal(t, contracts.RulesetLegacy, report.Ruleset)
	assert.Equal(t, int64(1), report.TotalRemoved())
	assert.Equal(t, int64(1), report.Verification.InvalidDuration)
	assert.False(t, report.Verification.Clean())
}

func TestRulePredicatesMatchSQL(t *testing.T) {
	trips := append(validTrips(),
		trip(base, 600, ptr(0.0), 2.0),
		trip(base, 600, ptr(1.0), 0),
		trip(base, 600, ptr(1.0), -0.5),
		trip(base, 600, ptr(1.0), MaxTripMiles),
		trip(base, 600, ptr(1.0), MaxTripMiles+0.1),
		trip(base, 0, ptr(1.0), 1.0),
		trip(base, -30, ptr(1.0), 1.0),
		trip(base, MaxTripSeconds, ptr(1.0), 1.0),
		trip(base, MaxTripSeconds+1, ptr(1.0), 1.0),
		trip(time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC), 60, ptr(1.0), 1.0),
		trip(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 60, ptr(1.0), 1.0),
		between(base.Add(900*time.Millisecond), base.Add(1100*time.Millisecond)),
		between(base.Add(1100*time.Millisecond), base.Add(1900*time.Millisecond)),
		between(base.Add(500*time.Millisecond), base.Add(MaxTripSeconds*time.Second+1100*time.Millisecond)),
	)

	for _, ruleset := range []string{"strict", "legacy"} {
		t.Run(ruleset, func(t *testing.T) {
			s := scope(t, ruleset)
			var kept int64
			for _, tr := range trips {
				if Keep(tr, s) {
					kept++
				}
			}

			db := seed(t, trips)
			_, err := New(db, s, logger.Nop()).Clean(context.Background(), rawTable)
			require.NoError(t, err)

			count, err := db.RowCount(context.Background(), rawTable)
			require.NoError(t, err)
			assert.Equal(t, kept, count)
		})
	}
}

func TestSubSecondDurationsCountBoundaries(t *testing.T) {
	s := scope(t, "strict")

	// 0.2s elapsed across a second boundary counts as one second
	crossing := between(base.Add(900*time.Millisecond), base.Add(1100*time.Millisecond))
	assert.True(t, Keep(crossing, s))

	within := between(base.Add(1100*time.Millisecond), base.Add(1900*time.Millisecond))
	assert.False(t, Keep(within, s))

	db := seed(t, []contracts.Trip{crossing, within})
	report, err := New(db, s, logger.Nop()).Clean(context.Background(), rawTable)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.TotalRemoved())

	count, err := db.RowCount(context.Background(), rawTable)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCleanMissingTable(t *testing.T) {
	db, err := database.Open("", database.Options{})
	require.NoError(t, err)
	defer db.Close()

	_, err = New(db, scope(t, ""), logger.Nop()).Clean(context.Background(), "green_trips_2024")
	require.Error(t, err)
	assert.True(t, errors.Is(err, database.ErrTableMissing))
}
