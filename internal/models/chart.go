package models

import (
	"encoding/json"
	"math"
)

// Tooltip is the per-point payload shown when hovering a plotted sample.
type Tooltip struct {
	Item         QueriedItem `json:"-"`
	Topic        string      `json:"topic"`
	ReceiveTime  Time        `json:"receiveTime"`
	Path         string      `json:"path"`
	Value        interface{} `json:"value"`
	ConstantName string      `json:"constantName,omitempty"`
	StartTime    Time        `json:"startTime"`
}

// ChartPoint is one plotted sample. X is seconds since the plot start time.
type ChartPoint struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Tooltip Tooltip `json:"tooltip"`
}

// MarshalJSON encodes non-finite coordinates and tooltip values as null;
// encoding/json rejects NaN and infinities, which the derivative produces for
// repeated timestamps and recordings may carry in float fields.
func (p ChartPoint) MarshalJSON() ([]byte, error) {
	tooltip := p.Tooltip
	switch v := tooltip.Value.(type) {
	case float32, float64:
		if f, _ := Float64(v); finiteOrNil(f) == nil {
			tooltip.Value = nil
		}
	}
	return json.Marshal(struct {
		X       *float64 `json:"x"`
		Y       *float64 `json:"y"`
		Tooltip Tooltip  `json:"tooltip"`
	}{
		X:       finiteOrNil(p.X),
		Y:       finiteOrNil(p.Y),
		Tooltip: tooltip,
	})
}

func finiteOrNil(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Dataset is one renderable series.
type Dataset struct {
	BorderColor          string       `json:"borderColor"`
	BorderWidth          float64      `json:"borderWidth"`
	Data                 []ChartPoint `json:"data"`
	Fill                 bool         `json:"fill"`
	Key                  string       `json:"key"`
	Label                string       `json:"label"`
	PointBackgroundColor string       `json:"pointBackgroundColor"`
	PointBorderColor     string       `json:"pointBorderColor"`
	PointHoverRadius     float64      `json:"pointHoverRadius"`
	PointRadius          float64      `json:"pointRadius"`
	ShowLine             bool         `json:"showLine"`
}

// Annotation is a horizontal reference line.
type Annotation struct {
	Type        string    `json:"type"`
	DrawTime    string    `json:"drawTime"`
	ScaleID     string    `json:"scaleID"`
	Label       string    `json:"label"`
	BorderColor string    `json:"borderColor"`
	BorderDash  []float64 `json:"borderDash"`
	BorderWidth float64   `json:"borderWidth"`
	Mode        string    `json:"mode"`
	Value       float64   `json:"value"`
}

// YAxisTicks bounds the y axis. A nil bound is left to the renderer.
type YAxisTicks struct {
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Precision int      `json:"precision"`
}

type GridLines struct {
	Color         string `json:"color"`
	ZeroLineColor string `json:"zeroLineColor"`
}

type YAxis struct {
	ID        string     `json:"id"`
	Ticks     YAxisTicks `json:"ticks"`
	GridLines GridLines  `json:"gridLines"`
}

// ChartData is everything a chart renderer needs for one plot.
type ChartData struct {
	Datasets    []Dataset    `json:"datasets"`
	Annotations []Annotation `json:"annotations"`
	YAxes       []YAxis      `json:"yAxes"`
}
