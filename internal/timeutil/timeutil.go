// Package timeutil provides arithmetic and formatting for models.Time.
package timeutil

import (
	"fmt"
	"time"

	"github.com/plot-visualizer/backend/internal/models"
)

const nsPerSec = int64(time.Second)

// DisplayLayout is the human-readable layout used in tooltips.
const DisplayLayout = "2006-01-02 3:04:05.000 PM MST"

// Normalize carries nanosecond overflow into seconds so that 0 <= Nsec < 1e9.
func Normalize(t models.Time) models.Time {
	sec := t.Sec + t.Nsec/nsPerSec
	nsec := t.Nsec % nsPerSec
	if nsec < 0 {
		nsec += nsPerSec
		sec--
	}
	return models.Time{Sec: sec, Nsec: nsec}
}

// Subtract returns a - b.
func Subtract(a, b models.Time) models.Time {
	return Normalize(models.Time{Sec: a.Sec - b.Sec, Nsec: a.Nsec - b.Nsec})
}

// Add returns a + b.
func Add(a, b models.Time) models.Time {
	return Normalize(models.Time{Sec: a.Sec + b.Sec, Nsec: a.Nsec + b.Nsec})
}

// ToSec converts t to fractional seconds.
func ToSec(t models.Time) float64 {
	return float64(t.Sec) + float64(t.Nsec)/1e9
}

// Compare returns -1, 0 or +1 depending on whether a is before, equal to or after b.
func Compare(a, b models.Time) int {
	a, b = Normalize(a), Normalize(b)
	switch {
	case a.Sec < b.Sec:
		return -1
	case a.Sec > b.Sec:
		return 1
	case a.Nsec < b.Nsec:
		return -1
	case a.Nsec > b.Nsec:
		return 1
	}
	return 0
}

// FromGo converts a time.Time.
func FromGo(t time.Time) models.Time {
	return models.Time{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
}

// ToGo converts to a time.Time in UTC.
func ToGo(t models.Time) time.Time {
	return time.Unix(t.Sec, t.Nsec).UTC()
}

// Format renders t for humans in UTC.
func Format(t models.Time) string {
	return FormatIn(t, time.UTC)
}

// FormatIn renders t for humans in loc.
func FormatIn(t models.Time, loc *time.Location) string {
	return time.Unix(t.Sec, t.Nsec).In(loc).Format(DisplayLayout)
}

// FormatRaw renders t as "sec.nnnnnnnnn" without normalising.
func FormatRaw(t models.Time) string {
	return fmt.Sprintf("%d.%09d", t.Sec, t.Nsec)
}
