package quant

import (
	"math"
	"os"

	chartjs "github.com/brentp/go-chartjs"
	"github.com/brentp/go-chartjs/types"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PlotBars saves a bar chart of the abundance of the first n rows.
func PlotBars(path string, rows []Row, n int) error {
	if len(rows) < n {
		n = len(rows)
	}
	vals := make(plotter.Values, n)
	names := make([]string, n)
	for i, r := range rows[:n] {
		vals[i] = r.Abundance
		names[i] = r.Name
	}

	p := plot.New()
	p.Y.Label.Text = "abundance"
	if n == 0 {
		return p.Save(10*vg.Inch, 4*vg.Inch, path)
	}
	bar, err := plotter.NewBarChart(vals, vg.Points(12))
	if err != nil {
		return err
	}
	bar.LineStyle.Width = vg.Length(0.1)
	bar.Color = plotutil.Color(0)
	p.Add(bar)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 3
	p.X.Tick.Label.XAlign = -1
	return p.Save(10*vg.Inch, 4*vg.Inch, path)
}

// trace is the per-iteration delta; it meets chartjs.Values.
type trace struct {
	xs []float64
	ys []float64
}

func (t *trace) Xs() []float64 { return t.xs }
func (t *trace) Ys() []float64 { return t.ys }
func (t *trace) Rs() []float64 { return nil }

// asTrace puts the deltas on a log10 scale. Zero deltas are skipped.
func asTrace(deltas []float64) *trace {
	t := &trace{xs: make([]float64, 0, len(deltas)), ys: make([]float64, 0, len(deltas))}
	for i, d := range deltas {
		if d <= 0 {
			continue
		}
		t.xs = append(t.xs, float64(i+1))
		t.ys = append(t.ys, math.Log10(d))
	}
	return t
}

func traceChart(deltas []float64) (chartjs.Chart, error) {
	chart := chartjs.Chart{Label: "convergence"}
	xa, err := chart.AddXAxis(chartjs.Axis{Type: chartjs.Linear, Position: chartjs.Bottom, ScaleLabel: &chartjs.ScaleLabel{FontSize: 16, LabelString: "iteration", Display: chartjs.True}})
	if err != nil {
		return chart, err
	}
	ya, err := chart.AddYAxis(chartjs.Axis{Type: chartjs.Linear, Position: chartjs.Left,
		ScaleLabel: &chartjs.ScaleLabel{FontSize: 16, LabelString: "log10 L1 delta", Display: chartjs.True}})
	if err != nil {
		return chart, err
	}
	c := &types.RGBA{R: 110, G: 150, B: 240, A: 240}
	dataset := chartjs.Dataset{Data: asTrace(deltas), Label: "delta", Fill: chartjs.False, PointRadius: 0, BorderWidth: 2,
		BorderColor: c, BackgroundColor: c, PointHitRadius: 6}
	dataset.XAxisID = xa
	dataset.YAxisID = ya
	chart.AddDataset(dataset)
	chart.Options.Responsive = chartjs.False
	chart.Options.Tooltip = &chartjs.Tooltip{Mode: "nearest"}
	chart.Options.Legend = &chartjs.Legend{Display: chartjs.False}
	return chart, nil
}

// PlotTrace writes an html chart of the L1 delta of each EM iteration.
func PlotTrace(path string, deltas []float64) error {
	chart, err := traceChart(deltas)
	if err != nil {
		return err
	}
	wtr, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := chart.SaveHTML(wtr, map[string]interface{}{"width": 850, "height": 550}); err != nil {
		wtr.Close()
		return err
	}
	return wtr.Close()
}
