package cleaner

import (
	"fmt"

	"github.com/wonny/taxico2/internal/contracts"
)

const (
	// MaxTripMiles is the longest plausible trip distance
	MaxTripMiles = 100
	// MaxTripSeconds is the longest plausible trip duration (one day)
	MaxTripSeconds = 86400
)

// DedupStep is the step name of the full-row deduplication rewrite
const DedupStep = "deduplicate"

// Rule is one row filter. Where renders the SQL predicate of rows to delete;
// Violates is the same predicate over a single trip.
type Rule struct {
	Name        string
	Description string
	Where       func(scope contracts.Scope) string
	Violates    func(trip contracts.Trip, scope contracts.Scope) bool
}

// durationSQL is the whole-second trip duration
const durationSQL = `date_diff('second', pickup_datetime, dropoff_datetime)`

var zeroPassengers = Rule{
	Name:        "zero_passengers",
	Description: "passenger_count = 0",
	Where: func(contracts.Scope) string {
		return `passenger_count = 0`
	},
	// NULL passenger counts never match in SQL
	Violates: func(t contracts.Trip, _ contracts.Scope) bool {
		return t.PassengerCount != nil && *t.PassengerCount == 0
	},
}

var nonPositiveDistance = Rule{
	Name:        "non_positive_distance",
	Description: "trip_distance <= 0",
	Where: func(contracts.Scope) string {
		return `trip_distance <= 0`
	},
	Violates: func(t contracts.Trip, _ contracts.Scope) bool {
		return t.TripDistance <= 0
	},
}

var zeroDistance = Rule{
	Name:        "zero_distance",
	Description: "trip_distance = 0",
	Where: func(contracts.Scope) string {
		return `trip_distance = 0`
	},
	Violates: func(t contracts.Trip, _ contracts.Scope) bool {
		return t.TripDistance == 0
	},
}

var overMaxDistance = Rule{
	Name:        "over_max_distance",
	Description: fmt.Sprintf("trip_distance > %d", MaxTripMiles),
	Where: func(contracts.Scope) string {
		return fmt.Sprintf(`trip_distance > %d`, MaxTripMiles)
	},
	Violates: func(t contracts.Trip, _ contracts.Scope) bool {
		return t.TripDistance > MaxTripMiles
	},
}

var invalidDuration = Rule{
	Name:        "invalid_duration",
	Description: fmt.Sprintf("duration <= 0s or > %ds", MaxTripSeconds),
	Where: func(contracts.Scope) string {
		return fmt.Sprintf(`%s <= 0 OR %s > %d`, durationSQL, durationSQL, MaxTripSeconds)
	},
	Violates: func(t contracts.Trip, _ contracts.Scope) bool {
		d := t.DurationSeconds()
		return d <= 0 || d > MaxTripSeconds
	},
}

var overMaxDuration = Rule{
	Name:        "over_max_duration",
	Description: fmt.Sprintf("duration > %ds", MaxTripSeconds),
	Where: func(contracts.Scope) string {
		return fmt.Sprintf(`%s > %d`, durationSQL, MaxTripSeconds)
	},
	Violates: func(t contracts.Trip, _ contracts.Scope) bool {
		return t.DurationSeconds() > MaxTripSeconds
	},
}

var outsideWindow = Rule{
	Name:        "outside_window",
	Description: "pickup outside the scope years",
	Where: func(s contracts.Scope) string {
		return fmt.Sprintf(`pickup_datetime < TIMESTAMP '%s' OR pickup_datetime >= TIMESTAMP '%s'`,
			s.WindowStart().Format("2006-01-02"), s.WindowEnd().Format("2006-01-02"))
	},
	Violates: func(t contracts.Trip, s contracts.Scope) bool {
		return !s.Contains(t.PickupDatetime)
	},
}

// Rules returns the ordered filter rules of a ruleset. Deduplication always
// runs before them.
func Rules(ruleset contracts.Ruleset) []Rule {
	if ruleset == contracts.RulesetLegacy {
		return []Rule{zeroPassengers, zeroDistance, overMaxDistance, overMaxDuration, outsideWindow}
	}
	return []Rule{zeroPassengers, nonPositiveDistance, overMaxDistance, invalidDuration, outsideWindow}
}

// Keep reports whether a trip survives every rule of the scope's ruleset.
// It is the in-memory twin of the SQL the cleaner runs and serves as the
// oracle for it in tests.
func Keep(trip contracts.Trip, scope contracts.Scope) bool {
	for _, r := range Rules(scope.Ruleset) {
		if r.Violates(trip, scope) {
			return false
		}
	}
	return true
}
