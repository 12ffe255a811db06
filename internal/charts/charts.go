// Package charts renders the dashboard figures as SVG with gonum/plot.
package charts

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"airquality-platform/internal/services"
)

// Kind names a dashboard figure.
type Kind string

const (
	KindTimeSeries Kind = "timeseries"
	KindHistogram  Kind = "histogram"
	KindBoxPlot    Kind = "boxplot"
)

// HistogramBins is the bin count of the value distribution chart.
const HistogramBins = 30

// NoDataMessage is drawn on charts for an empty selection.
const NoDataMessage = "No hay datos para esta combinacion"

var (
	lineColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	histColor = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
	boxColor  = color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}
)

// Size of a rendered chart.
type Size struct {
	Width, Height vg.Length
}

// DefaultSize is used when a zero Size is passed.
var DefaultSize = Size{Width: 10 * vg.Inch, Height: 4 * vg.Inch}

// ParseKind validates a chart kind taken from a URL.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindTimeSeries, KindHistogram, KindBoxPlot:
		return k, nil
	}
	return "", fmt.Errorf("unknown chart kind %q", s)
}

// Render draws the chart of the given kind for sel and writes it as SVG.
// An empty selection produces a chart carrying NoDataMessage.
func Render(w io.Writer, kind Kind, sel *services.Selection, size Size) error {
	if size.Width == 0 || size.Height == 0 {
		size = DefaultSize
	}

	var (
		p   *plot.Plot
		err error
	)
	switch {
	case sel == nil || sel.Empty():
		p, err = NoData()
	case kind == KindTimeSeries:
		p, err = TimeSeries(sel)
	case kind == KindHistogram:
		p, err = Histogram(sel)
	case kind == KindBoxPlot:
		p, err = WeekdayBoxPlot(sel)
	default:
		return fmt.Errorf("unknown chart kind %q", kind)
	}
	if err != nil {
		return err
	}

	wt, err := p.WriterTo(size.Width, size.Height, "svg")
	if err != nil {
		return fmt.Errorf("create svg canvas: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write svg: %w", err)
	}
	return nil
}

// TimeSeries plots the selection's values over time.
func TimeSeries(sel *services.Selection) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Serie Temporal - %s - %s", sel.StationName, sel.MonitorName)
	p.X.Label.Text = "Fecha"
	p.Y.Label.Text = valueLabel(sel.Unit)
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02\n15:04"}
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(sel.Points))
	for i, pt := range sel.Points {
		xys[i].X = float64(pt.Timestamp.Unix())
		xys[i].Y = pt.Value
	}

	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, fmt.Errorf("time series: %w", err)
	}
	line.LineStyle.Color = lineColor
	line.LineStyle.Width = vg.Points(1)
	p.Add(line)

	return p, nil
}

// Histogram plots the value distribution in HistogramBins bins.
func Histogram(sel *services.Selection) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Distribucion de Valores"
	p.X.Label.Text = valueLabel(sel.Unit)
	p.Y.Label.Text = "Frecuencia"

	hist, err := plotter.NewHist(plotter.Values(services.Values(sel.Points)), HistogramBins)
	if err != nil {
		return nil, fmt.Errorf("histogram: %w", err)
	}
	hist.FillColor = histColor
	p.Add(hist)

	return p, nil
}

// WeekdayBoxPlot draws one box per day of the week, Monday first. Days
// without readings are left out.
func WeekdayBoxPlot(sel *services.Selection) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Distribucion por Dia de la Semana"
	p.X.Label.Text = "Dia de la Semana"
	p.Y.Label.Text = valueLabel(sel.Unit)

	groups := sel.Weekdays
	if groups == nil {
		groups = services.GroupByWeekday(sel.Points)
	}

	var names []string
	for _, g := range groups {
		if len(g.Values) == 0 {
			continue
		}
		box, err := plotter.NewBoxPlot(vg.Points(20), float64(len(names)), plotter.Values(g.Values))
		if err != nil {
			return nil, fmt.Errorf("box plot %s: %w", g.Label, err)
		}
		box.FillColor = boxColor
		p.Add(box)
		names = append(names, g.Label)
	}
	p.NominalX(names...)

	return p, nil
}

// NoData returns a chart that only carries NoDataMessage.
func NoData() (*plot.Plot, error) {
	p := plot.New()
	p.HideAxes()
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1

	labels, err := plotter.NewLabels(plotter.XYLabels{
		XYs:    []plotter.XY{{X: 0.5, Y: 0.5}},
		Labels: []string{NoDataMessage},
	})
	if err != nil {
		return nil, fmt.Errorf("no data label: %w", err)
	}
	p.Add(labels)

	return p, nil
}

func valueLabel(unit string) string {
	return fmt.Sprintf("Valor (%s)", unit)
}
