// Package setup handles overseer root initialization.
package setup

import (
	"fmt"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/overseer/internal/model"
)

// Run scaffolds an overseer root in the given directory: the .overseer/
// control directory with a default config.yaml, plus the task, log and state
// roots the worker contract expects.
func Run(baseDir string) error {
	absDir, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("resolve base dir: %w", err)
	}

	cfg := model.DefaultConfig()
	roots := model.ResolveRoots(absDir, cfg)

	if _, err := os.Stat(roots.OverseerDir()); err == nil {
		return fmt.Errorf("%s already exists", roots.OverseerDir())
	}

	// Create directory structure
	dirs := []string{
		roots.OverseerDir(),
		roots.Inbox(),
		roots.Failed(),
		roots.Quarantine(),
		roots.Logs,
		roots.State,
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	if err := writeConfigAtomic(roots.ConfigFile(), cfg); err != nil {
		return fmt.Errorf("write config.yaml: %w", err)
	}

	// Create daemon.lock (empty)
	if err := os.WriteFile(roots.DaemonLock(), nil, 0600); err != nil {
		return fmt.Errorf("create daemon.lock: %w", err)
	}

	return nil
}

// writeConfigAtomic writes YAML complete-or-absent via temp-then-rename.
func writeConfigAtomic(path string, cfg model.Config) error {
	content, err := yamlv3.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".overseer-tmp-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
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

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}
