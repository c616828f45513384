package msgpath

import (
	"strings"
	"testing"

	"github.com/plot-visualizer/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func odomMessage() models.Message {
	return models.Message{
		Topic:       "/odom",
		ReceiveTime: models.Time{Sec: 100},
		Payload: map[string]interface{}{
			"header": map[string]interface{}{
				"stamp": map[string]interface{}{"sec": int64(99), "nsec": int64(5)},
			},
			"speed":   float64(1.25),
			"moving":  true,
			"mode":    uint8(2),
			"name":    "base",
			"wheels":  []interface{}{int8(1), int16(2), int32(3)},
			"targets": []interface{}{map[string]interface{}{"x": 1.0}, map[string]interface{}{"y": 2.0}, map[string]interface{}{"x": 3.0}},
		},
	}
}

func mustParse(t *testing.T, text string) Path {
	t.Helper()
	p, err := Parse(text)
	require.NoError(t, err)
	return p
}

func TestQueryScalars(t *testing.T) {
	msg := odomMessage()

	got := Query(mustParse(t, "/odom.speed"), msg, nil)
	require.Len(t, got, 1)
	assert.Equal(t, models.ValueNumber, got[0].Value.Kind)
	assert.Equal(t, 1.25, got[0].Value.Number)
	assert.Equal(t, "/odom.speed", got[0].Path)

	got = Query(mustParse(t, "/odom.moving"), msg, nil)
	require.Len(t, got, 1)
	assert.Equal(t, models.ValueBoolean, got[0].Value.Kind)
	assert.True(t, got[0].Value.Bool)

	got = Query(mustParse(t, "/odom.header.stamp"), msg, nil)
	require.Len(t, got, 1)
	assert.Equal(t, models.ValueTime, got[0].Value.Kind)
	assert.Equal(t, models.Time{Sec: 99, Nsec: 5}, got[0].Value.Time)

	got = Query(mustParse(t, "/odom.name"), msg, nil)
	require.Len(t, got, 1)
	assert.Equal(t, models.ValueOther, got[0].Value.Kind)
	assert.Equal(t, "base", got[0].Value.Raw)
}

func TestQueryArrays(t *testing.T) {
	msg := odomMessage()

	got := Query(mustParse(t, "/odom.wheels[:]"), msg, nil)
	require.Len(t, got, 3)
	for i, d := range got {
		assert.Equal(t, models.ValueNumber, d.Value.Kind)
		assert.Equal(t, float64(i+1), d.Value.Number)
	}
	assert.Equal(t, "/odom.wheels[2]", got[2].Path)

	got = Query(mustParse(t, "/odom.wheels[-1]"), msg, nil)
	require.Len(t, got, 1)
	assert.Equal(t, 3.0, got[0].Value.Number)
	assert.Equal(t, "/odom.wheels[2]", got[0].Path)

	// Elements without the field are skipped.
	got = Query(mustParse(t, "/odom.targets[:].x"), msg, nil)
	require.Len(t, got, 2)
	assert.Equal(t, "/odom.targets[0].x", got[0].Path)
	assert.Equal(t, "/odom.targets[2].x", got[1].Path)

	assert.Empty(t, Query(mustParse(t, "/odom.wheels[7]"), msg, nil))
}

func TestQueryMisses(t *testing.T) {
	msg := odomMessage()
	assert.Empty(t, Query(mustParse(t, "/other.speed"), msg, nil))
	assert.Empty(t, Query(mustParse(t, "/odom.missing"), msg, nil))
	assert.Empty(t, Query(mustParse(t, "/odom.speed.deeper"), msg, nil))
	assert.Empty(t, Query(mustParse(t, "/odom.speed[0]"), msg, nil))
}

func TestQueryIgnoresModifier(t *testing.T) {
	got := Query(mustParse(t, "/odom.speed.@derivative"), odomMessage(), nil)
	require.Len(t, got, 1)
	assert.Equal(t, "/odom.speed", got[0].Path)
}

func TestQueryConstants(t *testing.T) {
	doc := `
constants:
  /odom.mode:
    "2": DOCKED
    "3": CHARGING
  /odom.moving:
    "true": MOVING
`
	constants, err := ParseConstants(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 2, constants.Len())

	got := Query(mustParse(t, "/odom.mode"), odomMessage(), constants)
	require.Len(t, got, 1)
	assert.Equal(t, "DOCKED", got[0].ConstantName)

	got = Query(mustParse(t, "/odom.moving"), odomMessage(), constants)
	require.Len(t, got, 1)
	assert.Equal(t, "MOVING", got[0].ConstantName)

	got = Query(mustParse(t, "/odom.speed"), odomMessage(), constants)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].ConstantName)
}

func TestLoadConstantsMissingFile(t *testing.T) {
	c, err := LoadConstants(t.TempDir() + "/nope.yaml")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}
