package timeutil

import (
	"testing"
	"time"

	"github.com/plot-visualizer/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestSubtract(t *testing.T) {
	tests := []struct {
		name string
		a, b models.Time
		want models.Time
	}{
		{"same second", models.Time{Sec: 10, Nsec: 500}, models.Time{Sec: 10, Nsec: 200}, models.Time{Sec: 0, Nsec: 300}},
		{"borrow", models.Time{Sec: 11, Nsec: 100}, models.Time{Sec: 10, Nsec: 200}, models.Time{Sec: 0, Nsec: 999999900}},
		{"negative", models.Time{Sec: 9, Nsec: 0}, models.Time{Sec: 10, Nsec: 0}, models.Time{Sec: -1, Nsec: 0}},
		{"negative with nanos", models.Time{Sec: 10, Nsec: 0}, models.Time{Sec: 10, Nsec: 1}, models.Time{Sec: -1, Nsec: 999999999}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Subtract(tt.a, tt.b))
		})
	}
}

func TestToSec(t *testing.T) {
	assert.InDelta(t, 1.5, ToSec(models.Time{Sec: 1, Nsec: 500000000}), 1e-12)
	assert.InDelta(t, -0.5, ToSec(Subtract(models.Time{Sec: 1}, models.Time{Sec: 1, Nsec: 500000000})), 1e-12)
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, Compare(models.Time{Sec: 1}, models.Time{Sec: 1, Nsec: 1}))
	assert.Equal(t, 1, Compare(models.Time{Sec: 2}, models.Time{Sec: 1, Nsec: 999999999}))
	assert.Equal(t, 0, Compare(models.Time{Sec: 1, Nsec: 1e9}, models.Time{Sec: 2}))
}

func TestGoRoundTrip(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 0, 0, 123456789, time.UTC)
	assert.True(t, ToGo(FromGo(ts)).Equal(ts))
}

func TestFormat(t *testing.T) {
	ts := models.Time{Sec: 1705312800, Nsec: 5000000}
	assert.Equal(t, "2024-01-15 10:00:00.005 AM UTC", Format(ts))
	assert.Equal(t, "1705312800.005000000", FormatRaw(ts))
	assert.Equal(t, "3.000000007", FormatRaw(models.Time{Sec: 3, Nsec: 7}))
}
