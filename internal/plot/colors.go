package plot

import (
	"fmt"

	"github.com/wcharczuk/go-chart/v2/drawing"
)

// LineColors is the series palette. Series i uses LineColors[i%len(LineColors)].
var LineColors = []string{
	"#4e98e2",
	"#f5774d",
	"#f7df71",
	"#5cd6a9",
	"#a395e2",
	"#f15b8a",
	"#63c6ea",
	"#c2e55a",
	"#e18e55",
	"#e06fc8",
}

// lightenAmount is the share of white mixed into a series colour for point fills.
const lightenAmount = 0.25

// ColorAt returns the palette colour for a path position.
func ColorAt(index int) string {
	if index < 0 {
		index = -index
	}
	return LineColors[index%len(LineColors)]
}

// LightColor returns a lighter variant of a "#rrggbb" colour.
func LightColor(hex string) string {
	c := drawing.ColorFromHex(trimHash(hex))
	mix := func(v uint8) uint8 {
		return uint8(float64(v) + (255-float64(v))*lightenAmount + 0.5)
	}
	return fmt.Sprintf("#%02x%02x%02x", mix(c.R), mix(c.G), mix(c.B))
}

func trimHash(hex string) string {
	if len(hex) > 0 && hex[0] == '#' {
		return hex[1:]
	}
	return hex
}
