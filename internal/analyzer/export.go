package analyzer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"

	"github.com/wonny/taxico2/internal/contracts"
)

// Workbook sheet names
const (
	SheetLargest = "Largest"
	SheetBuckets = "Buckets"
	SheetMonthly = "Monthly"
)

// LargestFrame tabulates the largest trip of each fleet
func LargestFrame(report *contracts.AnalysisReport) dataframe.DataFrame {
	var (
		cabs    []string
		co2     []float64
		miles   []float64
		pickup  []string
		dropoff []string
	)
	for _, cab := range contracts.CabTypes {
		lt := report.Largest[cab]
		if lt == nil {
			continue
		}
		cabs = append(cabs, string(cab))
		co2 = append(co2, lt.TripCO2Kgs)
		miles = append(miles, lt.TripDistance)
		pickup = append(pickup, lt.PickupDatetime.Format("2006-01-02 15:04:05"))
		dropoff = append(dropoff, lt.DropoffDatetime.Format("2006-01-02 15:04:05"))
	}
	return dataframe.New(
		series.New(cabs, series.String, "cab_type"),
		series.New(co2, series.Float, "trip_co2_kgs"),
		series.New(miles, series.Float, "trip_distance"),
		series.New(pickup, series.String, "pickup_datetime"),
		series.New(dropoff, series.String, "dropoff_datetime"),
	)
}

// BucketsFrame tabulates the heavy and light bucket of every dimension
func BucketsFrame(report *contracts.AnalysisReport) dataframe.DataFrame {
	var (
		cabs, dims, kinds, labels []string
		keys                      []int
		values                    []float64
		trips                     []int
	)
	add := func(e contracts.BucketExtremes, kind string, b contracts.Bucket) {
		cabs = append(cabs, string(e.CabType))
		dims = append(dims, string(e.Dimension))
		kinds = append(kinds, kind)
		keys = append(keys, b.Key)
		labels = append(labels, b.Label)
		values = append(values, b.Value)
		trips = append(trips, int(b.Trips))
	}
	for _, cab := range contracts.CabTypes {
		for _, e := range report.Buckets[cab] {
			add(e, "heavy", e.Heavy)
			add(e, "light", e.Light)
		}
	}
	return dataframe.New(
		series.New(cabs, series.String, "cab_type"),
		series.New(dims, series.String, "dimension"),
		series.New(kinds, series.String, "extreme"),
		series.New(keys, series.Int, "bucket"),
		series.New(labels, series.String, "label"),
		series.New(values, series.Float, "co2_kgs_"+string(report.Scope.Aggregate)),
		series.New(trips, series.Int, "trips"),
	)
}

// MonthlyFrame tabulates the monthly series
func MonthlyFrame(report *contracts.AnalysisReport) dataframe.DataFrame {
	months := make([]string, len(report.Monthly))
	yellow := make([]float64, len(report.Monthly))
	green := make([]float64, len(report.Monthly))
	for i, p := range report.Monthly {
		months[i] = p.Month.Format("2006-01")
		yellow[i] = p.Yellow
		green[i] = p.Green
	}
	return dataframe.New(
		series.New(months, series.String, "month"),
		series.New(yellow, series.Float, "yellow_total_co2"),
		series.New(green, series.Float, "green_total_co2"),
	)
}

// ExportWorkbook writes the analysis report into an xlsx file with one
// sheet per result
func ExportWorkbook(path string, report *contracts.AnalysisReport) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	sheets := []struct {
		name string
		df   dataframe.DataFrame
	}{
		{SheetLargest, LargestFrame(report)},
		{SheetBuckets, BucketsFrame(report)},
		{SheetMonthly, MonthlyFrame(report)},
	}

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("create sheet %s: %w", s.name, err)
		}
		if err := writeFrame(f, s.name, s.df); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

// writeFrame writes a header row then one row per dataframe record
func writeFrame(f *excelize.File, sheet string, df dataframe.DataFrame) error {
	names := df.Names()
	for i, name := range names {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return fmt.Errorf("write %s header: %w", sheet, err)
		}
	}

	for row := 0; row < df.Nrow(); row++ {
		for col, name := range names {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, df.Col(name).Val(row)); err != nil {
				return fmt.Errorf("write %s row %d: %w", sheet, row, err)
			}
		}
	}
	return nil
}
