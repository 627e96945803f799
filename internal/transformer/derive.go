package transformer

import (
	"github.com/wonny/taxico2/internal/contracts"
)

// Derive computes the transformed columns of one trip. factor is the
// emissions lookup value in grams per mile, nil when the join fails.
// It mirrors the SQL in transformSQL row for row and is the oracle the
// transformer tests compare the table against.
func Derive(trip contracts.Trip, factor *float64, hourBase int) contracts.TransformedTrip {
	out := contracts.TransformedTrip{Trip: trip}

	if factor != nil {
		co2 := trip.TripDistance * *factor / 1000.0
		out.TripCO2Kgs = &co2
	}

	if secs := trip.DurationSeconds(); secs > 0 {
		mph := trip.TripDistance / (float64(secs) / 3600.0)
		out.AvgMPH = &mph
	}

	p := trip.PickupDatetime
	_, week := p.ISOWeek()
	out.HourOfDay = p.Hour() + hourBase
	out.DayOfWeek = int(p.Weekday())
	out.WeekOfYear = week
	out.MonthOfYear = int(p.Month())

	return out
}

// FactorFor looks up the grams-per-mile factor of a cab type, the in-memory
// side of the emissions join
func FactorFor(cab contracts.CabType, factors []contracts.EmissionFactor) *float64 {
	key := cab.VehicleKey()
	if key == "" {
		return nil
	}
	for _, f := range factors {
		if f.VehicleType == key {
			v := f.CO2GramsPerMile
			return &v
		}
	}
	return nil
}
