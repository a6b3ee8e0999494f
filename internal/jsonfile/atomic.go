// Package jsonfile provides atomic JSON file I/O and quarantine utilities for
// the shared control documents under the state root.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// AtomicWrite marshals v as indented JSON and writes it complete-or-absent.
func AtomicWrite(path string, v any) error {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	content = append(content, '\n')
	return AtomicWriteRaw(path, content)
}

// AtomicWriteRaw writes a single JSON document. A concurrent reader sees
// either the previous content or the new content, never a partial file.
func AtomicWriteRaw(path string, content []byte) error {
	return atomicWrite(path, content, validateDoc)
}

// AtomicWriteLines writes line-delimited JSON (envelope files). Every
// non-blank line must parse as one JSON value or nothing is written.
func AtomicWriteLines(path string, content []byte) error {
	return atomicWrite(path, content, ValidateLines)
}

func atomicWrite(path string, content []byte, validate func([]byte) error) error {
	// Step 1: Create temp file in the same directory and write content
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".overseer-tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		// Clean up temp file on any failure
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// Step 2: Validate written content by re-reading the temp file
	written, err := os.ReadFile(tmpName)
	if err != nil {
		return fmt.Errorf("read temp file for validation: %w", err)
	}
	if err := validate(written); err != nil {
		return fmt.Errorf("json validation failed: %w", err)
	}

	// Step 3: Create .bak if the target already exists
	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".bak"); err != nil {
			return fmt.Errorf("create backup: %w", err)
		}
	}

	// Step 4: Atomic rename (same volume)
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}

	return nil
}

// Load reads and unmarshals one JSON document. The caller decides whether a
// missing or corrupt file degrades to empty or is surfaced.
func Load(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func validateDoc(content []byte) error {
	var v any
	return json.Unmarshal(content, &v)
}

// ValidateLines parses every non-blank line independently as JSON. All lines
// must parse; the first failure rejects the whole content.
func ValidateLines(content []byte) error {
	for i, line := range bytes.Split(content, []byte("\n")) {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		var v any
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
