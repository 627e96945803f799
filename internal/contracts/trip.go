package contracts

import (
	"strings"
	"time"
)

// CabType is the taxi fleet a trip belongs to
type CabType string

const (
	CabYellow CabType = "yellow"
	CabGreen  CabType = "green"
)

// CabTypes lists the fleets in processing order
var CabTypes = []CabType{CabYellow, CabGreen}

// EmissionsTable is the static lookup table name
const EmissionsTable = "vehicle_emissions"

// VehicleKey maps a cab type to its emissions lookup key.
// Unknown cab types map to "" (a null join key).
func (c CabType) VehicleKey() string {
	switch c {
	case CabYellow:
		return "yellow_taxi"
	case CabGreen:
		return "green_taxi"
	default:
		return ""
	}
}

// Label is the capitalized name used in reports
func (c CabType) Label() string {
	s := string(c)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ParseCabType accepts "yellow" or "green" in any case
func ParseCabType(s string) (CabType, bool) {
	switch CabType(strings.ToLower(s)) {
	case CabYellow:
		return CabYellow, true
	case CabGreen:
		return CabGreen, true
	default:
		return "", false
	}
}

// Trip is one raw (or cleaned) trip record
type Trip struct {
	CabType         CabType   `json:"cab_type"`
	VendorID        *int64    `json:"vendor_id"`
	PickupDatetime  time.Time `json:"pickup_datetime"`
	DropoffDatetime time.Time `json:"dropoff_datetime"`
	PassengerCount  *float64  `json:"passenger_count"` // nullable in source extracts
	TripDistance    float64   `json:"trip_distance"`   // miles
}

// DurationSeconds counts the second boundaries crossed between pickup and
// dropoff, matching DuckDB date_diff('second', ...). 08:30:00.9 to
// 08:30:01.1 is one second.
func (t Trip) DurationSeconds() int64 {
	return t.DropoffDatetime.Unix() - t.PickupDatetime.Unix()
}

// EmissionFactor is one row of the emissions lookup
type EmissionFactor struct {
	VehicleType     string  `json:"vehicle_type"`
	CO2GramsPerMile float64 `json:"co2_grams_per_mile"`
}

// TransformedTrip is a cleaned trip plus derived emission and calendar columns
type TransformedTrip struct {
	Trip
	TripCO2Kgs  *float64 `json:"trip_co2_kgs"` // null when the lookup join fails
	AvgMPH      *float64 `json:"avg_mph"`      // null when duration <= 0
	HourOfDay   int      `json:"hour_of_day"`
	DayOfWeek   int      `json:"day_of_week"` // 0=Sunday .. 6=Saturday
	WeekOfYear  int      `json:"week_of_year"`
	MonthOfYear int      `json:"month_of_year"`
}
