package transformer

import (
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/wonny/taxico2/internal/contracts"
)

// SchemaFrame renders a schema snapshot as a dataframe for console output
func SchemaFrame(cols []contracts.Column) dataframe.DataFrame {
	names := make([]string, len(cols))
	types := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
		types[i] = c.Type
	}
	return dataframe.New(
		series.New(names, series.String, "column_name"),
		series.New(types, series.String, "column_type"),
	)
}

// SampleFrame renders sample rows as a dataframe. Null values show as "NULL".
func SampleFrame(sample []contracts.TransformedTrip) dataframe.DataFrame {
	n := len(sample)
	var (
		cab    = make([]string, n)
		pickup = make([]string, n)
		miles  = make([]float64, n)
		co2    = make([]string, n)
		mph    = make([]string, n)
		hour   = make([]int, n)
		dow    = make([]int, n)
		week   = make([]int, n)
		month  = make([]int, n)
	)
	for i, s := range sample {
		cab[i] = string(s.CabType)
		pickup[i] = s.PickupDatetime.Format("2006-01-02 15:04:05")
		miles[i] = s.TripDistance
		co2[i] = formatNullable(s.TripCO2Kgs, 4)
		mph[i] = formatNullable(s.AvgMPH, 2)
		hour[i] = s.HourOfDay
		dow[i] = s.DayOfWeek
		week[i] = s.WeekOfYear
		month[i] = s.MonthOfYear
	}

	return dataframe.New(
		series.New(cab, series.String, "cab_type"),
		series.New(pickup, series.String, "pickup_datetime"),
		series.New(miles, series.Float, "trip_distance"),
		series.New(co2, series.String, "trip_co2_kgs"),
		series.New(mph, series.String, "avg_mph"),
		series.New(hour, series.Int, "hour_of_day"),
		series.New(dow, series.Int, "day_of_week"),
		series.New(week, series.Int, "week_of_year"),
		series.New(month, series.Int, "month_of_year"),
	)
}

func formatNullable(v *float64, prec int) string {
	if v == nil {
		return "NULL"
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}
