package plot

import (
	"math"
	"strconv"

	"github.com/plot-visualizer/backend/internal/models"
)

const gridLineColor = "rgba(255, 255, 255, 0.2)"

// YAxes returns the y-axis configuration. NaN bounds are left unset.
func YAxes(minY, maxY float64) []models.YAxis {
	return []models.YAxis{{
		ID: YAxisID,
		Ticks: models.YAxisTicks{
			Min:       boundOrNil(minY),
			Max:       boundOrNil(maxY),
			Precision: 3,
		},
		GridLines: models.GridLines{
			Color:         gridLineColor,
			ZeroLineColor: gridLineColor,
		},
	}}
}

func boundOrNil(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// TickLabel formats a y tick. The first and last ticks are left blank so
// they don't collide with neighbouring plots.
func TickLabel(val float64, idx, count int) string {
	if idx == 0 || idx == count-1 {
		return ""
	}
	return strconv.FormatFloat(math.Round(val*1000)/1000, 'f', -1, 64)
}

// Bound converts an optional layout bound to the NaN-for-unset convention.
func Bound(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
