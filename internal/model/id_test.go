package model

import (
	"testing"
)

func TestGenerateTaskID(t *testing.T) {
	id, err := GenerateTaskID()
	if err != nil {
		t.Fatalf("GenerateTaskID returned error: %v", err)
	}
	if !IsGeneratedTaskID(id) {
		t.Errorf("generated id %q does not match expected form", id)
	}
}

func TestGenerateTaskID_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := GenerateTaskID()
		if err != nil {
			t.Fatalf("GenerateTaskID returned error: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestIsGeneratedTaskID(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		valid bool
	}{
		{"valid", "task_1771722060_b7c1d4e9", true},
		{"wrong prefix", "cmd_1771722060_b7c1d4e9", false},
		{"short timestamp", "task_177172206_b7c1d4e9", false},
		{"long timestamp", "task_17717220601_b7c1d4e9", false},
		{"uppercase hex", "task_1771722060_B7C1D4E9", false},
		{"short hex", "task_1771722060_b7c1d4e", false},
		{"caller-assigned", "nightly-build", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsGeneratedTaskID(tt.id); got != tt.valid {
				t.Errorf("IsGeneratedTaskID(%q) = %v, want %v", tt.id, got, tt.valid)
			}
		})
	}
}

func TestTaskIDTimestamp(t *testing.T) {
	ts, err := TaskIDTimestamp("task_1771722060_b7c1d4e9")
	if err != nil {
		t.Fatalf("TaskIDTimestamp returned error: %v", err)
	}
	if ts.Unix() != 1771722060 {
		t.Errorf("expected timestamp 1771722060, got %d", ts.Unix())
	}
}

func TestTaskIDTimestamp_Invalid(t *testing.T) {
	if _, err := TaskIDTimestamp("nightly-build"); err == nil {
		t.Error("expected error for caller-assigned id")
	}
}
