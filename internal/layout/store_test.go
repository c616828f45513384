package layout

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/plot-visualizer/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func ptr(v float64) *float64 { return &v }

func TestStore_SaveGetList(t *testing.T) {
	s := newStore(t)

	first, err := s.Save(models.PlotLayout{
		Name: "odometry",
		Paths: []models.PlotPathConfig{
			{Value: "/odom.pose.x", Enabled: true},
			{Value: "1.5", Enabled: true, Kind: models.PlotPathReference},
		},
		MinYValue: ptr(-1),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.UpdatedAt.IsZero())

	got, err := s.Get(first.ID)
	require.NoError(t, err)
	assert.Equal(t, "odometry", got.Name)
	require.Len(t, got.Paths, 2)
	assert.Equal(t, models.PlotPathReference, got.Paths[1].Kind)
	require.NotNil(t, got.MinYValue)
	assert.Equal(t, -1.0, *got.MinYValue)
	assert.Nil(t, got.MaxYValue)

	time.Sleep(2 * time.Millisecond)
	second, err := s.Save(models.PlotLayout{Name: "imu"})
	require.NoError(t, err)

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "most recently updated first")
}

func TestStore_UpdateAndDelete(t *testing.T) {
	s := newStore(t)
	l, err := s.Save(models.PlotLayout{Name: "a"})
	require.NoError(t, err)

	l.Name = "b"
	_, err = s.Save(*l)
	require.NoError(t, err)
	got, err := s.Get(l.ID)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name)

	require.NoError(t, s.Delete(l.ID))
	_, err = s.Get(l.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(l.ID), ErrNotFound)
}

func TestStore_SaveCurrentYs(t *testing.T) {
	s := newStore(t)
	l, err := s.Save(models.PlotLayout{Name: "a", MaxYValue: ptr(10)})
	require.NoError(t, err)

	updated, err := s.SaveCurrentYs(l.ID, ptr(-2.5), ptr(7.25))
	require.NoError(t, err)
	assert.Equal(t, -2.5, *updated.MinYValue)
	assert.Equal(t, 7.25, *updated.MaxYValue)

	nan := math.NaN()
	updated, err = s.SaveCurrentYs(l.ID, nil, &nan)
	require.NoError(t, err)
	assert.Nil(t, updated.MinYValue)
	assert.Nil(t, updated.MaxYValue)

	_, err = s.SaveCurrentYs("missing", nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_RejectsPathIDs(t *testing.T) {
	s := newStore(t)
	_, err := s.Get("../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListSkipsBrokenFiles(t *testing.T) {
	s := newStore(t)
	_, err := s.Save(models.PlotLayout{Name: "ok"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "broken.yaml"), []byte("paths: [:"), 0644))

	list, err := s.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
