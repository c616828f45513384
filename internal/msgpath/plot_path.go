package msgpath

import "github.com/plot-visualizer/backend/internal/models"

// ParsePlotPath resolves the kind and transform of a user-authored plot path.
// Text that starts with a number is a reference line unless the caller set
// the kind explicitly.
func ParsePlotPath(cfg models.PlotPathConfig) models.PlotPath {
	p := models.PlotPath{
		Value:           cfg.Value,
		Enabled:         cfg.Enabled,
		TimestampMethod: cfg.TimestampMethod,
		Kind:            cfg.Kind,
		Transform:       models.TransformNone,
	}
	if p.TimestampMethod == "" {
		p.TimestampMethod = models.TimestampReceiveTime
	}
	if p.Kind == "" {
		if _, ok := ParseLeadingFloat(cfg.Value); ok {
			p.Kind = models.PlotPathReference
		} else {
			p.Kind = models.PlotPathMessage
		}
	}
	if p.Kind == models.PlotPathMessage {
		if parsed, err := Parse(cfg.Value); err == nil && parsed.IsDerivative() {
			p.Transform = models.TransformDerivative
		}
	}
	return p
}

// ParsePlotPaths parses a list of plot paths, keeping order.
func ParsePlotPaths(cfgs []models.PlotPathConfig) []models.PlotPath {
	out := make([]models.PlotPath, len(cfgs))
	for i, cfg := range cfgs {
		out[i] = ParsePlotPath(cfg)
	}
	return out
}
