package msgpath

import (
	"strconv"

	"github.com/plot-visualizer/backend/internal/models"
)

// Query evaluates p against msg and returns every value it selects, in
// payload order. Missing fields and out-of-range indices select nothing.
// constants may be nil.
func Query(p Path, msg models.Message, constants *Constants) []models.QueriedData {
	if msg.Topic != p.Topic {
		return nil
	}
	var out []models.QueriedData
	fieldKey := p.FieldKey()
	walk(msg.Payload, p.Segments, p.Topic, func(v interface{}, subPath string) {
		value := Classify(v)
		out = append(out, models.QueriedData{
			Value:        value,
			Path:         subPath,
			ConstantName: constants.Lookup(fieldKey, value),
		})
	})
	return out
}

func walk(v interface{}, segs []Segment, prefix string, emit func(interface{}, string)) {
	if len(segs) == 0 {
		emit(v, prefix)
		return
	}
	seg := segs[0]
	switch seg.Kind {
	case SegmentField:
		m, ok := v.(map[string]interface{})
		if !ok {
			return
		}
		child, ok := m[seg.Name]
		if !ok {
			return
		}
		walk(child, segs[1:], prefix+"."+seg.Name, emit)
	case SegmentIndex:
		arr, ok := asSlice(v)
		if !ok {
			return
		}
		idx := seg.Index
		if idx < 0 {
			idx += len(arr)
		}
		if idx < 0 || idx >= len(arr) {
			return
		}
		walk(arr[idx], segs[1:], prefix+"["+strconv.Itoa(idx)+"]", emit)
	case SegmentSlice:
		arr, ok := asSlice(v)
		if !ok {
			return
		}
		for i, elem := range arr {
			walk(elem, segs[1:], prefix+"["+strconv.Itoa(i)+"]", emit)
		}
	}
}

// asSlice accepts the slice shapes produced by the JSON and MessagePack decoders.
func asSlice(v interface{}) ([]interface{}, bool) {
	switch arr := v.(type) {
	case []interface{}:
		return arr, true
	case []float64:
		out := make([]interface{}, len(arr))
		for i, f := range arr {
			out[i] = f
		}
		return out, true
	case []int64:
		out := make([]interface{}, len(arr))
		for i, n := range arr {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

// Classify tags a decoded payload value.
func Classify(v interface{}) models.QueriedValue {
	if b, ok := v.(bool); ok {
		return models.BooleanValue(b)
	}
	if f, ok := models.Float64(v); ok {
		return models.NumberValue(v, f)
	}
	if t, ok := models.TimeFromValue(v); ok {
		return models.TimeValue(v, t)
	}
	return models.OtherValue(v)
}
