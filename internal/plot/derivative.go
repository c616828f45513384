package plot

import "github.com/plot-visualizer/backend/internal/models"

// Derivative returns the first difference of points: point i has the x of
// points[i+1] and the slope between points[i] and points[i+1]. Repeated x
// values yield non-finite slopes, which are kept so the result always has
// len(points)-1 entries.
func Derivative(points []models.ChartPoint) []models.ChartPoint {
	if len(points) < 2 {
		return []models.ChartPoint{}
	}
	out := make([]models.ChartPoint, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev, next := points[i-1], points[i]
		slope := (next.Y - prev.Y) / (next.X - prev.X)
		tooltip := next.Tooltip
		tooltip.Value = slope
		out = append(out, models.ChartPoint{X: next.X, Y: slope, Tooltip: tooltip})
	}
	return out
}
