package parser

import (
	"testing"
)

func TestStringIntern(t *testing.T) {
	si := NewStringIntern()

	s1 := si.Intern("/odom")
	s2 := si.Intern("/odom")
	if s1 != s2 {
		t.Error("Expected same string for interned values")
	}

	si.Intern("/imu")
	if si.Len() != 2 {
		t.Errorf("Expected pool size 2, got %d", si.Len())
	}

	si.Clear()
	if si.Len() != 0 {
		t.Errorf("Expected pool size 0 after clear, got %d", si.Len())
	}
}

func TestStringInternBytes(t *testing.T) {
	si := NewStringIntern()

	s1 := si.InternBytes([]byte("/tf"))
	s2 := si.Intern("/tf")
	if s1 != s2 {
		t.Error("Expected InternBytes to return same string as Intern")
	}
	if si.Len() != 1 {
		t.Errorf("Expected pool size 1, got %d", si.Len())
	}
}

func TestStringIntern_InternKeys(t *testing.T) {
	si := NewStringIntern()
	payload := map[string]interface{}{
		"pose": map[string]interface{}{"x": 1.0},
		"list": []interface{}{map[string]interface{}{"y": 2.0}},
	}

	out, ok := si.internKeys(payload).(map[string]interface{})
	if !ok {
		t.Fatal("Expected a map back")
	}
	if out["pose"].(map[string]interface{})["x"] != 1.0 {
		t.Errorf("Nested value lost: %v", out)
	}
	// pose, list, x, y
	if si.Len() != 4 {
		t.Errorf("Expected 4 interned keys, got %d", si.Len())
	}
}
