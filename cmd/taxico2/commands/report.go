package commands

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/wonny/taxico2/internal/contracts"
	"github.com/wonny/taxico2/internal/pipeline"
	"github.com/wonny/taxico2/internal/transformer"
)

const timeLayout = "2006-01-02 15:04:05"

func formatPickup(t time.Time) string {
	return t.Format(timeLayout)
}

// printLoadReport prints per-table counts and the emissions preview
func printLoadReport(w io.Writer, r *contracts.LoadReport) {
	PrintSection(w, "Load Summary")
	PrintKeyValue(w, "Months", r.Months)
	PrintKeyValue(w, "Downloaded", FormatBytes(r.Bytes))
	fmt.Fprintln(w)

	widths := []int{24, 14, 20, 20}
	PrintTableHeader(w, []string{"Table", "Rows", "Min pickup", "Max pickup"}, widths)
	for _, t := range r.Tables {
		minP, maxP := "-", "-"
		if t.MinPickup != nil {
			minP = formatPickup(*t.MinPickup)
		}
		if t.MaxPickup != nil {
			maxP = formatPickup(*t.MaxPickup)
		}
		PrintTableRow(w, []string{t.Table, FormatCount(t.Rows), minP, maxP}, widths)
	}

	fmt.Fprintln(w)
	PrintKeyValue(w, contracts.EmissionsTable, FormatCount(r.EmissionsRows)+" rows")
	for _, f := range r.Preview {
		fmt.Fprintf(w, "    %-18s %8.1f g/mile\n", f.VehicleType, f.CO2GramsPerMile)
	}
}

// printCleanReport prints the per-rule deltas and the verification recount
func printCleanReport(w io.Writer, r *contracts.CleanReport) {
	PrintSection(w, fmt.Sprintf("Cleaning %s (%s rules)", r.Table, r.Ruleset))

	widths := []int{26, 14, 14, 12}
	PrintTableHeader(w, []string{"Step", "Before", "After", "Removed"}, widths)
	for _, s := range r.Steps {
		PrintTableRow(w, []string{
			s.Rule,
			FormatCount(s.Before),
			FormatCount(s.After),
			FormatCount(s.Removed),
		}, widths)
	}
	PrintSeparator(w)
	PrintKeyValue(w, "Total removed", FormatCount(r.TotalRemoved()))

	v := r.Verification
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Verification")
	PrintKeyValue(w, "Duplicates", v.Duplicates)
	PrintKeyValue(w, "Zero pax", v.ZeroPassengers)
	PrintKeyValue(w, "Zero distance", v.ZeroDistance)
	PrintKeyValue(w, "Over 100 mi", v.OverMaxDistance)
	PrintKeyValue(w, "Bad duration", v.InvalidDuration)
	if v.MinPickup != nil && v.MaxPickup != nil {
		PrintKeyValue(w, "Pickup range", formatPickup(*v.MinPickup)+" ~ "+formatPickup(*v.MaxPickup))
	}
	if v.Clean() {
		PrintSuccess(w, "No anomalies remain")
	} else {
		PrintWarning(w, "Anomalies remain after cleaning")
	}
}

// printTransformReport prints counts, the schema snapshot and sample rows
func printTransformReport(w io.Writer, r *contracts.TransformReport) {
	PrintSection(w, fmt.Sprintf("Transform %s → %s", r.Source, r.Destination))
	PrintKeyValue(w, "Source rows", FormatCount(r.SourceRows))
	PrintKeyValue(w, "Output rows", FormatCount(r.DestinationRows))
	PrintKeyValue(w, "Null CO2 rows", FormatCount(r.NullCO2Rows))

	if !r.Parity() {
		PrintWarning(w, fmt.Sprintf("Row count changed: %d → %d", r.SourceRows, r.DestinationRows))
	}
	if r.NullCO2Rows > 0 {
		PrintWarning(w, fmt.Sprintf("%d rows have no emissions factor", r.NullCO2Rows))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, transformer.SchemaFrame(r.Schema).String())
	if len(r.Sample) > 0 {
		fmt.Fprintln(w, transformer.SampleFrame(r.Sample).String())
	}
}

// printAnalysis prints one block per question, then the chart and workbook
// outcome
func printAnalysis(w io.Writer, a *pipeline.Analysis) {
	r := a.Report
	scope := r.Scope

	PrintSection(w, "Largest CO2 Trip (kg) for "+scope.Label())
	for _, cab := range contracts.CabTypes {
		lt := r.Largest[cab]
		if lt == nil {
			fmt.Fprintf(w, "%s: No data\n", cab.Label())
			continue
		}
		fmt.Fprintf(w, "%s: %.4f kg (distance %.2f miles, pickup %s, dropoff %s)\n",
			cab.Label(), lt.TripCO2Kgs, lt.TripDistance,
			formatPickup(lt.PickupDatetime), formatPickup(lt.DropoffDatetime))
	}

	for _, dim := range contracts.Dimensions {
		PrintSection(w, "Most/Least Carbon Heavy "+dim.Title(scope.HourBase))
		for _, cab := range contracts.CabTypes {
			ext := findExtremes(r.Buckets[cab], dim)
			if ext == nil {
				fmt.Fprintf(w, "%s: No data\n", cab.Label())
				continue
			}
			fmt.Fprintf(w, "%s: Heavy %s, Light %s\n",
				cab.Label(), formatBucket(dim, ext.Aggregate, ext.Heavy), formatBucket(dim, ext.Aggregate, ext.Light))
		}
	}

	PrintSection(w, "Monthly CO2 Totals (kg)")
	widths := []int{10, 16, 16}
	PrintTableHeader(w, []string{"Month", "Yellow", "Green"}, widths)
	for _, p := range r.Monthly {
		PrintTableRow(w, []string{
			p.Month.Format("2006-01"),
			strconv.FormatFloat(p.Yellow, 'f', 2, 64),
			strconv.FormatFloat(p.Green, 'f', 2, 64),
		}, widths)
	}

	fmt.Fprintln(w)
	if a.ChartErr != nil {
		PrintError(w, "Plotting failed: "+a.ChartErr.Error())
	} else {
		for _, path := range a.Charts {
			PrintSuccess(w, "Saved chart "+path)
		}
	}
	if a.Workbook != "" {
		if a.WorkbookErr != nil {
			PrintError(w, "Workbook export failed: "+a.WorkbookErr.Error())
		} else {
			PrintSuccess(w, "Saved workbook "+a.Workbook)
		}
	}
}

// printStageOutcomes prints how long each attempted stage took
func printStageOutcomes(w io.Writer, stages []contracts.StageOutcome) {
	if len(stages) == 0 {
		return
	}
	PrintSection(w, "Stages")
	widths := []int{12, 14, 40}
	PrintTableHeader(w, []string{"Stage", "Duration", "Result"}, widths)
	for _, o := range stages {
		result := "ok"
		if o.Failed() {
			result = o.Error
		}
		PrintTableRow(w, []string{o.Stage.String(), o.Duration.Round(time.Millisecond).String(), result}, widths)
	}
}

func findExtremes(all []contracts.BucketExtremes, dim contracts.Dimension) *contracts.BucketExtremes {
	for i := range all {
		if all[i].Dimension == dim {
			return &all[i]
		}
	}
	return nil
}

// formatBucket renders "hour=3 (100.00 kg)" or, for means,
// "hour=3 (avg 12.34 kg over 1,234 trips)"
func formatBucket(dim contracts.Dimension, agg contracts.Aggregate, b contracts.Bucket) string {
	name := map[contracts.Dimension]string{
		contracts.HourOfDay:   "hour",
		contracts.DayOfWeek:   "day",
		contracts.WeekOfYear:  "week",
		contracts.MonthOfYear: "month",
	}[dim]

	if agg == contracts.AggregateMean {
		return fmt.Sprintf("%s=%s (avg %.2f kg over %s trips)", name, b.Label, b.Value, FormatCount(b.Trips))
	}
	return fmt.Sprintf("%s=%s (%.2f kg)", name, b.Label, b.Value)
}
