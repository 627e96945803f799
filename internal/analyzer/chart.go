package analyzer

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/wonny/taxico2/internal/contracts"
)

const (
	chartWidth  = 10 * vg.Inch
	chartHeight = 5 * vg.Inch

	// DualAxisChart holds both fleets with independent CO2 scales
	DualAxisChart = "monthly_co2_dual_axis.png"
)

var cabColors = map[contracts.CabType]color.Color{
	contracts.CabYellow: color.RGBA{R: 0xff, G: 0xd7, A: 0xff},
	contracts.CabGreen:  color.RGBA{G: 0x80, A: 0xff},
}

// ChartFile is the per-fleet chart name used for multi-year scopes
func ChartFile(cab contracts.CabType) string {
	return fmt.Sprintf("monthly_co2_%s.png", cab)
}

// RenderCharts writes the monthly series charts for a scope into dir and
// returns the written paths. Single-year scopes get one chart with an
// independent scale per fleet; multi-year scopes get one chart per fleet.
func RenderCharts(dir string, scope contracts.Scope, series []contracts.MonthPoint) ([]string, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("no monthly data to plot")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chart dir: %w", err)
	}

	if scope.StartYear == scope.EndYear {
		path := filepath.Join(dir, DualAxisChart)
		if err := renderDual(path, scope, series); err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	var paths []string
	for _, cab := range contracts.CabTypes {
		path := filepath.Join(dir, ChartFile(cab))
		p, err := fleetPlot(cab, scope, series)
		if err != nil {
			return paths, err
		}
		p.Title.Text = fmt.Sprintf("NYC %s Taxi CO₂ Totals by Month (%s)", cab.Label(), scope.Label())
		if err := p.Save(chartWidth, chartHeight, path); err != nil {
			return paths, fmt.Errorf("save %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// renderDual stacks one panel per fleet over a shared month axis
func renderDual(path string, scope contracts.Scope, series []contracts.MonthPoint) error {
	plots := make([][]*plot.Plot, len(contracts.CabTypes))
	for i, cab := range contracts.CabTypes {
		p, err := fleetPlot(cab, scope, series)
		if err != nil {
			return err
		}
		plots[i] = []*plot.Plot{p}
	}
	plots[0][0].Title.Text = fmt.Sprintf("NYC Taxi CO₂ Totals by Month (%s)", scope.Label())

	img := vgimg.New(chartWidth, chartHeight*2)
	dc := draw.New(img)

	tiles := draw.Tiles{
		Rows: len(plots),
		Cols: 1,
		PadY: vg.Millimeter * 4,
		PadX: vg.Millimeter * 2,
	}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// fleetPlot draws one fleet's monthly totals
func fleetPlot(cab contracts.CabType, scope contracts.Scope, series []contracts.MonthPoint) (*plot.Plot, error) {
	pts := make(plotter.XYs, len(series))
	for i, m := range series {
		pts[i].X = float64(i + 1)
		pts[i].Y = m.Value(cab)
	}

	p := plot.New()
	p.X.Label.Text = "Month"
	p.Y.Label.Text = fmt.Sprintf("%s CO₂ (kg)", cab.Label())
	p.X.Tick.Marker = plot.ConstantTicks(monthTicks(scope, series))
	p.Add(plotter.NewGrid())

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, fmt.Errorf("%s line: %w", cab, err)
	}
	line.Color = cabColors[cab]
	line.Width = vg.Points(1.5)
	points.Color = cabColors[cab]
	points.Shape = draw.CircleGlyph{}

	p.Add(line, points)
	p.Legend.Add(cab.Label(), line, points)
	p.Legend.Top = true

	return p, nil
}

// monthTicks labels every month of a single year, or every January of a
// multi-year scope
func monthTicks(scope contracts.Scope, series []contracts.MonthPoint) []plot.Tick {
	single := scope.StartYear == scope.EndYear
	ticks := make([]plot.Tick, 0, len(series))
	for i, m := range series {
		x := float64(i + 1)
		switch {
		case single:
			ticks = append(ticks, plot.Tick{Value: x, Label: contracts.MonthOfYear.BucketLabel(int(m.Month.Month()))})
		case m.Month.Month() == 1:
			ticks = append(ticks, plot.Tick{Value: x, Label: strconv.Itoa(m.Month.Year())})
		default:
			ticks = append(ticks, plot.Tick{Value: x})
		}
	}
	return ticks
}
