package models

// PlotPathKind distinguishes message-field paths from constant reference lines.
type PlotPathKind string

const (
	PlotPathMessage   PlotPathKind = "message"
	PlotPathReference PlotPathKind = "reference"
)

// PathTransform is a transform applied to a plotted series.
type PathTransform string

const (
	TransformNone       PathTransform = "none"
	TransformDerivative PathTransform = "derivative"
)

// PlotPathConfig is a plot path as authored by the user and stored in layouts.
// Kind is optional; when empty it is inferred from the text.
type PlotPathConfig struct {
	Value           string          `json:"value" yaml:"value" validate:"required"`
	Enabled         bool            `json:"enabled" yaml:"enabled"`
	TimestampMethod TimestampMethod `json:"timestampMethod,omitempty" yaml:"timestampMethod,omitempty" validate:"omitempty,oneof=receiveTime headerStamp"`
	Kind            PlotPathKind    `json:"kind,omitempty" yaml:"kind,omitempty" validate:"omitempty,oneof=message reference"`
}

// PlotPath is a parsed plot path. Kind and Transform are resolved once when
// the path is parsed so builders never re-derive them from Value.
type PlotPath struct {
	Value           string
	Enabled         bool
	TimestampMethod TimestampMethod
	Kind            PlotPathKind
	Transform       PathTransform
}

// IsReferenceLine reports whether the path is a constant reference line.
func (p PlotPath) IsReferenceLine() bool {
	return p.Kind == PlotPathReference
}
