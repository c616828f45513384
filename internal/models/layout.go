package models

import "time"

// PlotLayout is a saved plot panel configuration.
// Nil y bounds mean the axis is auto-scaled.
type PlotLayout struct {
	ID        string           `json:"id" yaml:"id"`
	Name      string           `json:"name" yaml:"name" validate:"required,max=200"`
	Paths     []PlotPathConfig `json:"paths" yaml:"paths" validate:"dive"`
	MinYValue *float64         `json:"minYValue,omitempty" yaml:"minYValue,omitempty"`
	MaxYValue *float64         `json:"maxYValue,omitempty" yaml:"maxYValue,omitempty"`
	UpdatedAt time.Time        `json:"updatedAt" yaml:"updatedAt"`
}
