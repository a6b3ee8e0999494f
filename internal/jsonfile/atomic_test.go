package jsonfile

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAtomicWrite_Success(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")

	data := map[string]any{"key": "value", "count": 42}
	if err := AtomicWrite(path, data); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(content, &result); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if result["key"] != "value" {
		t.Errorf("key: got %v, want %q", result["key"], "value")
	}
}

func TestAtomicWrite_CreatesBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")

	// Write initial content
	if err := AtomicWrite(path, map[string]string{"version": "1"}); err != nil {
		t.Fatalf("first write failed: %v", err)
	}

	// Write updated content
	if err := AtomicWrite(path, map[string]string{"version": "2"}); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	// Verify .bak contains original content
	bakContent, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("ReadFile .bak failed: %v", err)
	}

	var bakData map[string]string
	if err := json.Unmarshal(bakContent, &bakData); err != nil {
		t.Fatalf("Unmarshal .bak failed: %v", err)
	}

	if bakData["version"] != "1" {
		t.Errorf("backup version: got %q, want %q", bakData["version"], "1")
	}

	// Verify current file has new content
	curContent, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile current failed: %v", err)
	}

	var curData map[string]string
	if err := json.Unmarshal(curContent, &curData); err != nil {
		t.Fatalf("Unmarshal current failed: %v", err)
	}

	if curData["version"] != "2" {
		t.Errorf("current version: got %q, want %q", curData["version"], "2")
	}
}

func TestAtomicWriteRaw_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")

	invalidJSON := []byte(`{"broken": [`)
	err := AtomicWriteRaw(path, invalidJSON)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}

	// Verify file was not created
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file should not exist after failed write")
	}
}

func TestAtomicWrite_NoTempFileLeftOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")

	invalidJSON := []byte(`{"broken": [`)
	_ = AtomicWriteRaw(path, invalidJSON)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}

	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".json" {
			t.Errorf("unexpected file remaining: %s", entry.Name())
		}
	}
}

func TestAtomicWrite_StructData(t *testing.T) {
	type testStruct struct {
		Name    string `json:"name"`
		Version int    `json:"version"`
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")

	if err := AtomicWrite(path, &testStruct{Name: "overseer", Version: 2}); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	var result testStruct
	if err := json.Unmarshal(content, &result); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if result.Name != "overseer" || result.Version != 2 {
		t.Errorf("got %+v", result)
	}
}

func TestAtomicWriteLines_Success(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task_1700000000_abcd1234.jsonl")

	content := []byte(`{"id":"task_1700000000_abcd1234","tool":"git"}` + "\n" +
		`{"note":"second value"}` + "\n")
	if err := AtomicWriteLines(path, content); err != nil {
		t.Fatalf("AtomicWriteLines failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content changed on write:\ngot  %q\nwant %q", got, content)
	}
}

func TestAtomicWriteLines_RejectsBadLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task.jsonl")

	content := []byte(`{"id":"task_1"}` + "\n" + `{"broken":` + "\n")
	err := AtomicWriteLines(path, content)
	if err == nil {
		t.Fatal("expected error for unparsable line")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error should name the offending line: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file should not exist after failed write")
	}
}

func TestAtomicWriteLines_BlankLinesIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task.jsonl")

	content := []byte("\n" + `{"id":"task_1"}` + "\n\n   \n" + `{"id":"task_2"}` + "\n")
	if err := AtomicWriteLines(path, content); err != nil {
		t.Fatalf("AtomicWriteLines failed: %v", err)
	}
}

func TestValidateLines(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"single object", `{"id":"a"}`, false},
		{"multiple values", `{"id":"a"}` + "\n" + `[1,2]` + "\n" + `"str"`, false},
		{"empty content", "", false},
		{"only blanks", "\n  \n\t\n", false},
		{"bad first line", `{`, true},
		{"bad middle line", `{"a":1}` + "\n" + `nope` + "\n" + `{"b":2}`, true},
		{"trailing garbage on line", `{"a":1} extra`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLines([]byte(tt.content))
			if tt.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	os.WriteFile(path, []byte(`{"templates": []}`), 0644)

	var doc struct {
		Templates []any `json:"templates"`
	}
	if err := Load(path, &doc); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc.Templates == nil {
		t.Error("templates should decode to an empty slice, not nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	dir := t.TempDir()

	var doc map[string]any
	err := Load(filepath.Join(dir, "absent.json"), &doc)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error should report not-exist: %v", err)
	}
}
