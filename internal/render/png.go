// Package render draws chart data server-side as PNG images.
package render

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/plot-visualizer/backend/internal/models"
	"github.com/plot-visualizer/backend/internal/plot"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrNoData is returned when nothing in the chart has a finite point.
var ErrNoData = errors.New("render: no plottable data")

// yTickCount is the number of y ticks, including the unlabeled end ticks.
const yTickCount = 7

// Options controls one render.
type Options struct {
	Width  int
	Height int
	Title  string
}

// PNGRenderer renders models.ChartData with go-chart.
type PNGRenderer struct {
	defaultWidth  int
	defaultHeight int
}

// NewPNGRenderer creates a renderer with the size used when Options omit one.
func NewPNGRenderer(defaultWidth, defaultHeight int) *PNGRenderer {
	if defaultWidth <= 0 {
		defaultWidth = 1024
	}
	if defaultHeight <= 0 {
		defaultHeight = 480
	}
	return &PNGRenderer{defaultWidth: defaultWidth, defaultHeight: defaultHeight}
}

// Render writes a PNG of data to w. Line datasets become connected series,
// scatter datasets dot-only series and annotations dashed horizontal lines
// across the x range. Non-finite points are skipped.
func (r *PNGRenderer) Render(w io.Writer, data models.ChartData, opts Options) error {
	if opts.Width <= 0 {
		opts.Width = r.defaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = r.defaultHeight
	}

	xr, yr := newExtent(), newExtent()
	series := make([]chart.Series, 0, len(data.Datasets)+len(data.Annotations))

	for _, ds := range data.Datasets {
		xs, ys := finitePoints(ds.Data)
		if len(xs) == 0 {
			continue
		}
		for i := range xs {
			xr.add(xs[i])
			yr.add(ys[i])
		}
		series = append(series, chart.ContinuousSeries{
			Name:    ds.Label,
			XValues: xs,
			YValues: ys,
			Style:   datasetStyle(ds),
		})
	}
	if xr.empty() {
		return ErrNoData
	}

	for _, a := range data.Annotations {
		yr.add(a.Value)
	}
	xMin, xMax := xr.padded()
	for _, a := range data.Annotations {
		series = append(series, chart.ContinuousSeries{
			Name:    a.Label,
			XValues: []float64{xMin, xMax},
			YValues: []float64{a.Value, a.Value},
			Style: chart.Style{
				StrokeColor:     drawing.ColorFromHex(a.BorderColor),
				StrokeWidth:     a.BorderWidth,
				StrokeDashArray: a.BorderDash,
			},
		})
	}

	yMin, yMax := yr.padded()
	if len(data.YAxes) > 0 {
		if v := data.YAxes[0].Ticks.Min; v != nil {
			yMin = *v
		}
		if v := data.YAxes[0].Ticks.Max; v != nil {
			yMax = *v
		}
	}
	if yMax <= yMin {
		yMax = yMin + 1
	}

	ticks := yTicks(yMin, yMax)
	ch := chart.Chart{
		Title:      opts.Title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: chart.Style{Padding: chart.Box{Top: 20, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:           "seconds",
			Range:          &chart.ContinuousRange{Min: xMin, Max: xMax},
			ValueFormatter: secondsFormatter,
		},
		YAxis: chart.YAxis{
			Range:          &chart.ContinuousRange{Min: yMin, Max: yMax},
			Ticks:          ticks,
			GridMajorStyle: chart.Style{StrokeColor: drawing.ColorFromHex("dddddd"), StrokeWidth: 1},
			GridLines:      gridLines(ticks),
		},
		Series: series,
	}
	if len(data.Datasets) > 1 {
		ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	}

	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}
	return nil
}

func datasetStyle(ds models.Dataset) chart.Style {
	color := drawing.ColorFromHex(ds.BorderColor)
	dotColor := color
	if ds.PointBackgroundColor != "" {
		dotColor = drawing.ColorFromHex(ds.PointBackgroundColor)
	}
	style := chart.Style{
		StrokeColor: color,
		StrokeWidth: ds.BorderWidth,
		DotColor:    dotColor,
		DotWidth:    ds.PointRadius,
	}
	if !ds.ShowLine {
		style.StrokeWidth = chart.Disabled
		style.DotWidth = math.Max(ds.PointRadius, 2)
	}
	return style
}

func finitePoints(points []models.ChartPoint) (xs, ys []float64) {
	xs = make([]float64, 0, len(points))
	ys = make([]float64, 0, len(points))
	for _, p := range points {
		if !isFinite(p.X) || !isFinite(p.Y) {
			continue
		}
		xs = append(xs, p.X)
		ys = append(ys, p.Y)
	}
	return xs, ys
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// yTicks spaces yTickCount ticks evenly over [min, max].
func yTicks(min, max float64) []chart.Tick {
	ticks := make([]chart.Tick, yTickCount)
	step := (max - min) / float64(yTickCount-1)
	for i := range ticks {
		v := min + step*float64(i)
		if i == yTickCount-1 {
			v = max
		}
		ticks[i] = chart.Tick{Value: v, Label: plot.TickLabel(v, i, yTickCount)}
	}
	return ticks
}

func gridLines(ticks []chart.Tick) []chart.GridLine {
	lines := make([]chart.GridLine, 0, len(ticks))
	for _, t := range ticks {
		lines = append(lines, chart.GridLine{Value: t.Value})
	}
	return lines
}

func secondsFormatter(v interface{}) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// extent tracks the min and max of a set of values.
type extent struct {
	min, max float64
}

func newExtent() *extent {
	return &extent{min: math.Inf(1), max: math.Inf(-1)}
}

func (e *extent) add(v float64) {
	if !isFinite(v) {
		return
	}
	e.min = math.Min(e.min, v)
	e.max = math.Max(e.max, v)
}

func (e *extent) empty() bool {
	return e.min > e.max
}

// padded widens the extent by 5% on each side, and by 1 when it is a
// single value, since go-chart rejects zero-width ranges.
func (e *extent) padded() (float64, float64) {
	if e.empty() {
		return 0, 1
	}
	span := e.max - e.min
	if span == 0 {
		return e.min - 1, e.max + 1
	}
	pad := span * 0.05
	return e.min - pad, e.max + pad
}
