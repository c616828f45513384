package models

import "math"

// Time is a robotics-style timestamp split into whole seconds and nanoseconds.
type Time struct {
	Sec  int64 `json:"sec" msgpack:"sec" yaml:"sec"`
	Nsec int64 `json:"nsec" msgpack:"nsec" yaml:"nsec"`
}

// IsZero reports whether t is the zero timestamp.
func (t Time) IsZero() bool {
	return t.Sec == 0 && t.Nsec == 0
}

// TimeFromValue interprets a decoded payload value as a Time.
// The value must be a map with integer-like "sec" and "nsec" fields.
func TimeFromValue(v interface{}) (Time, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return Time{}, false
	}
	sec, ok := IntegerLike(m["sec"])
	if !ok {
		return Time{}, false
	}
	nsec, ok := IntegerLike(m["nsec"])
	if !ok {
		return Time{}, false
	}
	return Time{Sec: sec, Nsec: nsec}, true
}

// Float64 converts any Go numeric value produced by the JSON or MessagePack
// decoders into a float64.
func Float64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// IntegerLike returns v as an int64 when it is numeric and has no fractional part.
func IntegerLike(v interface{}) (int64, bool) {
	f, ok := Float64(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}
