package plot

import (
	"math"
	"testing"

	"github.com/plot-visualizer/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = models.Time{Sec: 1000, Nsec: 0}

func messageAt(topic string, sec, nsec int64) models.Message {
	return models.Message{
		Topic:       topic,
		ReceiveTime: models.Time{Sec: sec, Nsec: nsec},
		Payload:     map[string]interface{}{},
	}
}

func numberItem(sec int64, values ...float64) models.QueriedItem {
	item := models.QueriedItem{Message: messageAt("/a", sec, 0)}
	for _, v := range values {
		item.QueriedData = append(item.QueriedData, models.QueriedData{
			Value: models.NumberValue(v, v),
			Path:  "/a.b",
		})
	}
	return item
}

func messagePath(value string) models.PlotPath {
	return models.PlotPath{
		Value:           value,
		Enabled:         true,
		TimestampMethod: models.TimestampReceiveTime,
		Kind:            models.PlotPathMessage,
		Transform:       models.TransformNone,
	}
}

func referencePath(value string) models.PlotPath {
	return models.PlotPath{Value: value, Enabled: true, Kind: models.PlotPathReference}
}

func xy(points []models.ChartPoint) [][2]float64 {
	out := make([][2]float64, len(points))
	for i, p := range points {
		out[i] = [2]float64{p.X, p.Y}
	}
	return out
}

func TestBuildDatasets_EndToEnd(t *testing.T) {
	paths := []models.PlotPath{messagePath("/a.b")}
	lookup := models.ItemLookup{
		"/a.b": {numberItem(1000, 5), numberItem(1001, 7)},
	}

	datasets := BuildDatasets(paths, lookup, t0)
	require.Len(t, datasets, 1)
	ds := datasets[0]
	assert.Equal(t, [][2]float64{{0, 5}, {1, 7}}, xy(ds.Data))
	assert.True(t, ds.ShowLine)
	assert.Equal(t, "/a.b", ds.Label)
	assert.Equal(t, "0", ds.Key)
	assert.Equal(t, LineColors[0], ds.BorderColor)
	assert.Equal(t, LightColor(LineColors[0]), ds.PointBackgroundColor)
	assert.Equal(t, "transparent", ds.PointBorderColor)
	assert.False(t, ds.Fill)

	tip := ds.Data[1].Tooltip
	assert.Equal(t, 7.0, tip.Value)
	assert.Equal(t, "/a.b", tip.Path)
	assert.Equal(t, t0, tip.StartTime)
	assert.Equal(t, "/a", tip.Topic)
}

func TestBuildDatasets_Derivative(t *testing.T) {
	path := messagePath("/a.b.@derivative")
	path.Transform = models.TransformDerivative
	lookup := models.ItemLookup{
		"/a.b.@derivative": {numberItem(1000, 5), numberItem(1001, 7)},
	}

	datasets := BuildDatasets([]models.PlotPath{path}, lookup, t0)
	require.Len(t, datasets, 1)
	assert.Equal(t, [][2]float64{{1, 2}}, xy(datasets[0].Data))
	assert.True(t, datasets[0].ShowLine)
}

func TestBuildDatasets_DerivativeOfScatterIsEmpty(t *testing.T) {
	path := messagePath("/a.b[:].@derivative")
	path.Transform = models.TransformDerivative
	lookup := models.ItemLookup{
		path.Value: {numberItem(1000, 1, 2), numberItem(1001, 3, 4), numberItem(1002, 5, 6)},
	}

	datasets := BuildDatasets([]models.PlotPath{path}, lookup, t0)
	require.Len(t, datasets, 1)
	assert.False(t, datasets[0].ShowLine)
	assert.NotNil(t, datasets[0].Data)
	assert.Empty(t, datasets[0].Data)
}

func TestBuildDatasets_ScatterIsSticky(t *testing.T) {
	path := messagePath("/a.b[:]")
	lookup := models.ItemLookup{
		path.Value: {numberItem(1000, 1), numberItem(1001, 2, 3), numberItem(1002, 4)},
	}

	datasets := BuildDatasets([]models.PlotPath{path}, lookup, t0)
	require.Len(t, datasets, 1)
	assert.False(t, datasets[0].ShowLine)
	assert.Equal(t, [][2]float64{{0, 1}, {1, 2}, {1, 3}, {2, 4}}, xy(datasets[0].Data))
}

func TestBuildDatasets_DisabledAndReferenceSkipped(t *testing.T) {
	disabled := messagePath("/a.b")
	disabled.Enabled = false
	paths := []models.PlotPath{disabled, referencePath("3.5"), messagePath("/c.d")}
	lookup := models.ItemLookup{
		"/a.b": {numberItem(1000, 1)},
		"/c.d": {numberItem(1000, 2)},
	}

	datasets := BuildDatasets(paths, lookup, t0)
	require.Len(t, datasets, 1)
	assert.Equal(t, "/c.d", datasets[0].Label)
	// Styling follows the path position, not the dataset position.
	assert.Equal(t, "2", datasets[0].Key)
	assert.Equal(t, LineColors[2], datasets[0].BorderColor)
}

func TestBuildDatasets_MissingLookupYieldsEmptySeries(t *testing.T) {
	datasets := BuildDatasets([]models.PlotPath{messagePath("/nothing")}, models.ItemLookup{}, t0)
	require.Len(t, datasets, 1)
	assert.Empty(t, datasets[0].Data)
	assert.True(t, datasets[0].ShowLine)
}

func TestBuildDatasets_ValueKinds(t *testing.T) {
	stamp := models.Time{Sec: 1705312800, Nsec: 5000000}
	item := models.QueriedItem{
		Message: messageAt("/a", 1000, 500000000),
		QueriedData: []models.QueriedData{
			{Value: models.BooleanValue(true), Path: "/a.flag", ConstantName: "ON"},
		},
	}
	timeItem := models.QueriedItem{
		Message:     messageAt("/a", 1001, 0),
		QueriedData: []models.QueriedData{{Value: models.TimeValue(nil, stamp), Path: "/a.stamp"}},
	}
	otherItem := models.QueriedItem{
		Message:     messageAt("/a", 1002, 0),
		QueriedData: []models.QueriedData{{Value: models.OtherValue("text"), Path: "/a.name"}},
	}
	falseItem := models.QueriedItem{
		Message:     messageAt("/a", 1003, 0),
		QueriedData: []models.QueriedData{{Value: models.BooleanValue(false), Path: "/a.flag"}},
	}

	path := messagePath("/a.x")
	lookup := models.ItemLookup{"/a.x": {item, timeItem, otherItem, falseItem}}
	datasets := BuildDatasets([]models.PlotPath{path}, lookup, t0)
	require.Len(t, datasets, 1)
	data := datasets[0].Data
	require.Len(t, data, 3)

	assert.Equal(t, 0.5, data[0].X)
	assert.Equal(t, 1.0, data[0].Y)
	assert.Equal(t, true, data[0].Tooltip.Value)
	assert.Equal(t, "ON", data[0].Tooltip.ConstantName)

	assert.InDelta(t, 1705312800.005, data[1].Y, 1e-6)
	assert.Equal(t, "2024-01-15 10:00:00.005 AM UTC (1705312800.005000000)", data[1].Tooltip.Value)

	assert.Equal(t, 3.0, data[2].X)
	assert.Equal(t, 0.0, data[2].Y)
	assert.True(t, datasets[0].ShowLine)
}

func TestBuildDatasets_SkipsUnresolvableTimestamps(t *testing.T) {
	withHeader := numberItem(1000, 1)
	withHeader.Message.Payload = map[string]interface{}{
		"header": map[string]interface{}{
			"stamp": map[string]interface{}{"sec": int64(1002), "nsec": int64(0)},
		},
	}
	withoutHeader := numberItem(1001, 2)

	path := messagePath("/a.b")
	path.TimestampMethod = models.TimestampHeaderStamp
	datasets := BuildDatasets([]models.PlotPath{path}, models.ItemLookup{"/a.b": {withHeader, withoutHeader}}, t0)
	require.Len(t, datasets, 1)
	assert.Equal(t, [][2]float64{{2, 1}}, xy(datasets[0].Data))
}

func TestBuildDatasets_StylingIsDeterministic(t *testing.T) {
	var paths []models.PlotPath
	lookup := models.ItemLookup{}
	for i := 0; i < len(LineColors)+3; i++ {
		p := messagePath("/a.b" + string(rune('a'+i)))
		paths = append(paths, p)
		lookup[p.Value] = []models.QueriedItem{numberItem(1000, float64(i))}
	}

	first := BuildDatasets(paths, lookup, t0)
	second := BuildDatasets(paths, lookup, t0)
	require.Len(t, first, len(paths))
	for i := range first {
		assert.Equal(t, first[i].BorderColor, second[i].BorderColor)
		assert.Equal(t, LineColors[i%len(LineColors)], first[i].BorderColor)
	}
	assert.Equal(t, first[0].BorderColor, first[len(LineColors)].BorderColor)
}

func TestBuildAnnotations(t *testing.T) {
	disabled := referencePath("9")
	disabled.Enabled = false
	paths := []models.PlotPath{
		messagePath("/a.b"),
		referencePath("3.5"),
		disabled,
		{Value: "not a number", Enabled: true, Kind: models.PlotPathReference},
	}

	annotations := BuildAnnotations(paths)
	require.Len(t, annotations, 1)
	a := annotations[0]
	assert.Equal(t, 3.5, a.Value)
	assert.Equal(t, YAxisID, a.ScaleID)
	assert.Equal(t, "3.5", a.Label)
	assert.Equal(t, "horizontal", a.Mode)
	assert.Equal(t, "line", a.Type)
	assert.Equal(t, []float64{5, 5}, a.BorderDash)
	assert.Equal(t, LineColors[1], a.BorderColor)
}

func TestBuildChart_ReferenceOnly(t *testing.T) {
	chart := BuildChart([]models.PlotPath{referencePath("3.5")}, models.ItemLookup{}, t0, math.NaN(), 10)
	assert.Empty(t, chart.Datasets)
	require.Len(t, chart.Annotations, 1)
	assert.Equal(t, 3.5, chart.Annotations[0].Value)
	require.Len(t, chart.YAxes, 1)
	assert.Nil(t, chart.YAxes[0].Ticks.Min)
	require.NotNil(t, chart.YAxes[0].Ticks.Max)
	assert.Equal(t, 10.0, *chart.YAxes[0].Ticks.Max)
}

func TestPartition(t *testing.T) {
	paths := []models.PlotPath{
		messagePath("/a.b"),
		referencePath("1"),
		messagePath("/c.d"),
		referencePath("2"),
	}
	datasets := BuildDatasets(paths, models.ItemLookup{}, t0)
	annotations := BuildAnnotations(paths)
	assert.Len(t, datasets, 2)
	assert.Len(t, annotations, 2)
	assert.Equal(t, len(paths), len(datasets)+len(annotations))
}
