package contracts

import (
	"strconv"
	"time"
)

// Dimension is a calendar bucket column of the transformed table
type Dimension string

const (
	HourOfDay   Dimension = "hour_of_day"
	DayOfWeek   Dimension = "day_of_week"
	WeekOfYear  Dimension = "week_of_year"
	MonthOfYear Dimension = "month_of_year"
)

// Dimensions lists the bucket dimensions in report order
var Dimensions = []Dimension{HourOfDay, DayOfWeek, WeekOfYear, MonthOfYear}

// ParseDimension accepts the column name or a short alias
func ParseDimension(s string) (Dimension, bool) {
	switch s {
	case "hour", string(HourOfDay):
		return HourOfDay, true
	case "dow", "day", string(DayOfWeek):
		return DayOfWeek, true
	case "week", string(WeekOfYear):
		return WeekOfYear, true
	case "month", string(MonthOfYear):
		return MonthOfYear, true
	default:
		return "", false
	}
}

var (
	dowNames   = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
	monthNames = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
)

// BucketLabel renders a bucket key for reports
func (d Dimension) BucketLabel(key int) string {
	switch d {
	case DayOfWeek:
		if key >= 0 && key <= 6 {
			return dowNames[key]
		}
	case MonthOfYear:
		if key >= 1 && key <= 12 {
			return monthNames[key-1]
		}
	}
	return strconv.Itoa(key)
}

// Title is the report heading for a dimension
func (d Dimension) Title(hourBase int) string {
	switch d {
	case HourOfDay:
		return "Hour of Day (" + strconv.Itoa(hourBase) + "–" + strconv.Itoa(hourBase+23) + ")"
	case DayOfWeek:
		return "Day of Week (Sun–Sat)"
	case WeekOfYear:
		return "Week of Year (1–53)"
	case MonthOfYear:
		return "Month of Year (Jan–Dec)"
	default:
		return string(d)
	}
}

// Bucket is one aggregated calendar bucket
type Bucket struct {
	Key   int     `json:"key"`
	Label string  `json:"label"`
	Value float64 `json:"value"` // sum or mean kg CO2
	Trips int64   `json:"trips"`
}

// BucketExtremes holds the heaviest and lightest bucket of one dimension
type BucketExtremes struct {
	CabType   CabType   `json:"cab_type"`
	Dimension Dimension `json:"dimension"`
	Aggregate Aggregate `json:"aggregate"`
	Heavy     Bucket    `json:"heavy"`
	Light     Bucket    `json:"light"`
}

// LargestTrip is the single trip with maximum CO2
type LargestTrip struct {
	CabType         CabType   `json:"cab_type"`
	TripCO2Kgs      float64   `json:"trip_co2_kgs"`
	TripDistance    float64   `json:"trip_distance"`
	PickupDatetime  time.Time `json:"pickup_datetime"`
	DropoffDatetime time.Time `json:"dropoff_datetime"`
}

// MonthPoint is one calendar month of the CO2 time series
type MonthPoint struct {
	Month  time.Time `json:"month"`
	Yellow float64   `json:"yellow_total_co2"`
	Green  float64   `json:"green_total_co2"`
}

// Value returns the total for a cab type
func (p MonthPoint) Value(cab CabType) float64 {
	if cab == CabGreen {
		return p.Green
	}
	return p.Yellow
}

// AnalysisReport collects every result of one analyzer run
type AnalysisReport struct {
	Scope   Scope                        `json:"scope"`
	Largest map[CabType]*LargestTrip     `json:"largest"`
	Buckets map[CabType][]BucketExtremes `json:"buckets"`
	Monthly []MonthPoint                 `json:"monthly"`
	Charts  []string                     `json:"charts"`
}
