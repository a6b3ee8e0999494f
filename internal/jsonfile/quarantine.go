package jsonfile

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Quarantine moves a corrupt control document into <stateDir>/quarantine,
// keeping the bad bytes for inspection. Returns the destination path.
func Quarantine(stateDir, filePath string) (string, error) {
	dir := filepath.Join(stateDir, "quarantine")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create quarantine dir: %w", err)
	}

	stamp := time.Now().Format("20060102T150405")
	dest := filepath.Join(dir, fmt.Sprintf("%s.%s.corrupt", filepath.Base(filePath), stamp))
	if err := os.Rename(filePath, dest); err != nil {
		return "", fmt.Errorf("move to quarantine: %w", err)
	}

	log.Printf("quarantined corrupt file: %s -> %s", filePath, dest)
	return dest, nil
}

// RestoreFromBackup puts the .bak sibling back in place of filePath. The
// backup must itself parse as JSON; a corrupt backup is left untouched.
func RestoreFromBackup(filePath string) error {
	content, err := os.ReadFile(filePath + ".bak")
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	var v any
	if err := json.Unmarshal(content, &v); err != nil {
		return fmt.Errorf("backup is also corrupt: %w", err)
	}
	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}
	return nil
}
