// Package plot turns plot paths and queried message history into chart
// datasets, reference-line annotations and y-axis settings.
//
// Everything here is a pure function of its inputs: no I/O, no shared state.
// Malformed samples are dropped rather than reported.
package plot

import (
	"math"
	"strconv"

	"github.com/plot-visualizer/backend/internal/models"
	"github.com/plot-visualizer/backend/internal/msgpath"
	"github.com/plot-visualizer/backend/internal/timeutil"
)

// YAxisID is the scale every dataset and annotation is drawn against.
const YAxisID = "Y_AXIS_ID"

// Dataset styling.
const (
	borderWidth      = 1
	pointRadius      = 1.5
	pointHoverRadius = 3
	pointBorderColor = "transparent"
)

// BuildDatasets returns one dataset per enabled message path, in path order.
// Disabled paths and reference lines are skipped, not padded.
func BuildDatasets(paths []models.PlotPath, lookup models.ItemLookup, startTime models.Time) []models.Dataset {
	datasets := make([]models.Dataset, 0, len(paths))
	for i, path := range paths {
		if !path.Enabled || path.IsReferenceLine() {
			continue
		}
		datasets = append(datasets, datasetForPath(path, lookup[path.Value], i, startTime))
	}
	return datasets
}

func datasetForPath(path models.PlotPath, items []models.QueriedItem, index int, startTime models.Time) models.Dataset {
	points := make([]models.ChartPoint, 0, len(items))
	showLine := true

	for _, item := range items {
		timestamp, ok := models.TimestampFor(item.Message, path.TimestampMethod)
		if !ok {
			continue
		}
		x := timeutil.ToSec(timeutil.Subtract(timestamp, startTime))

		for _, data := range item.QueriedData {
			if point, ok := chartPoint(item, data, x, startTime); ok {
				points = append(points, point)
			}
		}
		// More than one value for a message makes this a scatter plot.
		if len(item.QueriedData) > 1 {
			showLine = false
		}
	}

	if path.Transform == models.TransformDerivative {
		if showLine {
			points = Derivative(points)
		} else {
			// A derivative of scatter data is meaningless; show nothing instead.
			points = []models.ChartPoint{}
		}
	}

	color := ColorAt(index)
	return models.Dataset{
		BorderColor:          color,
		BorderWidth:          borderWidth,
		Data:                 points,
		Fill:                 false,
		Key:                  strconv.Itoa(index),
		Label:                path.Value,
		PointBackgroundColor: LightColor(color),
		PointBorderColor:     pointBorderColor,
		PointHoverRadius:     pointHoverRadius,
		PointRadius:          pointRadius,
		ShowLine:             showLine,
	}
}

func chartPoint(item models.QueriedItem, data models.QueriedData, x float64, startTime models.Time) (models.ChartPoint, bool) {
	tooltip := models.Tooltip{
		Item:         item,
		Topic:        item.Message.Topic,
		ReceiveTime:  item.Message.ReceiveTime,
		Path:         data.Path,
		ConstantName: data.ConstantName,
		StartTime:    startTime,
	}

	var y float64
	switch data.Value.Kind {
	case models.ValueNumber:
		y = data.Value.Number
		tooltip.Value = data.Value.Raw
	case models.ValueBoolean:
		if data.Value.Bool {
			y = 1
		}
		tooltip.Value = data.Value.Bool
	case models.ValueTime:
		t := data.Value.Time
		y = float64(t.Sec) + float64(t.Nsec)/1e9
		tooltip.Value = timeutil.Format(t) + " (" + timeutil.FormatRaw(t) + ")"
	default:
		// Other shapes are not plottable.
		return models.ChartPoint{}, false
	}
	return models.ChartPoint{X: x, Y: y, Tooltip: tooltip}, true
}

// BuildAnnotations returns one horizontal line per enabled reference path.
// Colours are indexed by position in paths, the same way datasets are, so a
// line may share a colour with an unrelated series. Paths whose text is not
// a finite number are dropped.
func BuildAnnotations(paths []models.PlotPath) []models.Annotation {
	annotations := make([]models.Annotation, 0)
	for i, path := range paths {
		if !path.Enabled || !path.IsReferenceLine() {
			continue
		}
		value, ok := msgpath.ParseLeadingFloat(path.Value)
		if !ok || math.IsInf(value, 0) {
			continue
		}
		annotations = append(annotations, models.Annotation{
			Type:        "line",
			DrawTime:    "beforeDatasetsDraw",
			ScaleID:     YAxisID,
			Label:       path.Value,
			BorderColor: ColorAt(i),
			BorderDash:  []float64{5, 5},
			BorderWidth: borderWidth,
			Mode:        "horizontal",
			Value:       value,
		})
	}
	return annotations
}

// BuildChart assembles everything a renderer needs. minY and maxY are NaN
// when unset.
func BuildChart(paths []models.PlotPath, lookup models.ItemLookup, startTime models.Time, minY, maxY float64) models.ChartData {
	return models.ChartData{
		Datasets:    BuildDatasets(paths, lookup, startTime),
		Annotations: BuildAnnotations(paths),
		YAxes:       YAxes(minY, maxY),
	}
}
