// Package queue owns atomic transitions of envelope files between the named
// state directories inbox, failed, and quarantine.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/msageha/overseer/internal/jsonfile"
	"github.com/msageha/overseer/internal/lock"
	"github.com/msageha/overseer/internal/model"
)

var (
	// ErrValidation rejects an operation before anything is written.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound reports a missing envelope file.
	ErrNotFound = errors.New("not found")
)

// Entry describes one envelope file in a state directory.
type Entry struct {
	Name    string           `json:"name"`
	Path    string           `json:"path"`
	State   model.QueueState `json:"state"`
	Size    int64            `json:"size"`
	ModTime time.Time        `json:"mod_time"`
}

// PathError records a per-file failure inside a bulk operation.
type PathError struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// MoveResult aggregates a bulk move. Partial completion is normal; callers
// get a count plus per-path failures, never all-or-nothing.
type MoveResult struct {
	Moved  int         `json:"moved"`
	Failed []PathError `json:"failed,omitempty"`
}

// DeleteResult aggregates a bulk delete.
type DeleteResult struct {
	Deleted int         `json:"deleted"`
	Failed  []PathError `json:"failed,omitempty"`
}

// Manager performs envelope file transitions under a tasks root.
type Manager struct {
	roots model.Roots
	locks *lock.MutexMap
}

func NewManager(roots model.Roots, locks *lock.MutexMap) *Manager {
	if locks == nil {
		locks = lock.NewMutexMap()
	}
	return &Manager{roots: roots, locks: locks}
}

// EnvelopeFileName maps a task id to its inbox file name. Generated ids
// already carry the task_ prefix; caller-assigned ids get one.
func EnvelopeFileName(id string) string {
	if strings.HasPrefix(id, "task_") {
		return id + ".jsonl"
	}
	return "task_" + id + ".jsonl"
}

// Enqueue writes env as a one-line JSON file into inbox, assigning a
// generated id when the caller left it empty. The write is all-or-nothing:
// a concurrent scanner of inbox never sees a partial file.
func (m *Manager) Enqueue(env model.Envelope) (model.Envelope, string, error) {
	if env.ID == "" {
		id, err := model.GenerateTaskID()
		if err != nil {
			return env, "", fmt.Errorf("generate task id: %w", err)
		}
		env.ID = id
	}
	if env.Tool == "" {
		return env, "", fmt.Errorf("%w: tool is required", ErrValidation)
	}
	if !model.IsKnownTool(env.Tool) {
		return env, "", fmt.Errorf("%w: unknown tool %q", ErrValidation, env.Tool)
	}
	if err := model.ValidatePriority(env.Priority); err != nil {
		return env, "", fmt.Errorf("%w: %v", ErrValidation, err)
	}

	line, err := json.Marshal(env)
	if err != nil {
		return env, "", fmt.Errorf("encode envelope: %w", err)
	}

	path := filepath.Join(m.roots.Inbox(), EnvelopeFileName(env.ID))
	m.locks.Lock(path)
	defer m.locks.Unlock(path)

	if err := jsonfile.AtomicWriteLines(path, append(line, '\n')); err != nil {
		return env, "", fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return env, path, nil
}

// List enumerates envelope files in a state directory, sorted by file name.
// An absent directory yields an empty list, not an error. limit caps the
// result when positive; 0 means all.
func (m *Manager) List(state model.QueueState, limit int) ([]Entry, error) {
	dir, err := m.dirFor(state)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("list %s: %w", state, err)
	}

	entries := []Entry{}
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".jsonl") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:    de.Name(),
			Path:    filepath.Join(dir, de.Name()),
			State:   state,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		if limit > 0 && len(entries) == limit {
			break
		}
	}
	return entries, nil
}

// Retry moves the named files back into inbox. A move is a rename, not a
// copy+delete. One failed move never aborts the others; an already-gone
// source counts as success (the desired end state is achieved).
func (m *Manager) Retry(paths []string) MoveResult {
	var res MoveResult
	inbox := m.roots.Inbox()
	if err := os.MkdirAll(inbox, 0755); err != nil {
		for _, p := range paths {
			res.Failed = append(res.Failed, PathError{Path: p, Reason: err.Error()})
		}
		return res
	}

	for _, p := range paths {
		dst := filepath.Join(inbox, filepath.Base(p))
		if err := os.Rename(p, dst); err != nil {
			if os.IsNotExist(err) {
				res.Moved++
				continue
			}
			res.Failed = append(res.Failed, PathError{Path: p, Reason: err.Error()})
			continue
		}
		res.Moved++
	}
	return res
}

// RetryAll retries every file currently enumerable in the given state
// directories. Enumeration and move are not one transaction: files added
// concurrently may be skipped this round, never retried twice.
func (m *Manager) RetryAll(states []model.QueueState) MoveResult {
	var res MoveResult
	for _, state := range states {
		entries, err := m.List(state, 0)
		if err != nil {
			res.Failed = append(res.Failed, PathError{Path: string(state), Reason: err.Error()})
			continue
		}
		paths := make([]string, 0, len(entries))
		for _, e := range entries {
			paths = append(paths, e.Path)
		}
		sub := m.Retry(paths)
		res.Moved += sub.Moved
		res.Failed = append(res.Failed, sub.Failed...)
	}
	return res
}

// Delete unlinks the named files. Missing files count as already deleted.
func (m *Manager) Delete(paths []string) DeleteResult {
	var res DeleteResult
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			res.Failed = append(res.Failed, PathError{Path: p, Reason: err.Error()})
			continue
		}
		res.Deleted++
	}
	return res
}

// EditAndRetry validates newText line by line, writes it as a fresh inbox
// envelope named edited_<timestamp>_<original-name>, and preserves the
// original as <name>.bak. Any unparsable line rejects the whole operation
// before a single byte is written.
func (m *Manager) EditAndRetry(path string, newText []byte) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	if err := jsonfile.ValidateLines(newText); err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !hasContent(newText) {
		return "", fmt.Errorf("%w: envelope has no content", ErrValidation)
	}

	name := fmt.Sprintf("edited_%s_%s", time.Now().Format("20060102150405"), filepath.Base(path))
	dst := filepath.Join(m.roots.Inbox(), name)

	m.locks.Lock(dst)
	defer m.locks.Unlock(dst)

	if err := jsonfile.AtomicWriteLines(dst, newText); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}

	// Best effort: keep the original as .bak; if that rename fails, delete
	// it rather than leave two live copies.
	if err := os.Rename(path, path+".bak"); err != nil {
		os.Remove(path)
	}
	return dst, nil
}

// Read returns the raw text of one envelope file.
func (m *Manager) Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// ReadEnvelope parses the first non-blank line of an envelope file.
func (m *Manager) ReadEnvelope(path string) (model.Envelope, error) {
	var env model.Envelope
	text, err := m.Read(path)
	if err != nil {
		return env, err
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
			return env, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
		return env, nil
	}
	return env, fmt.Errorf("%w: %s is empty", ErrNotFound, path)
}

// Depths reports how many envelopes sit in each state directory.
func (m *Manager) Depths() map[model.QueueState]int {
	depths := make(map[model.QueueState]int, 3)
	for _, state := range []model.QueueState{model.StateInbox, model.StateFailed, model.StateQuarantine} {
		entries, err := m.List(state, 0)
		if err != nil {
			depths[state] = 0
			continue
		}
		depths[state] = len(entries)
	}
	return depths
}

func (m *Manager) dirFor(state model.QueueState) (string, error) {
	switch state {
	case model.StateInbox:
		return m.roots.Inbox(), nil
	case model.StateFailed:
		return m.roots.Failed(), nil
	case model.StateQuarantine:
		return m.roots.Quarantine(), nil
	default:
		return "", fmt.Errorf("%w: unknown queue state %q", ErrValidation, state)
	}
}

func hasContent(text []byte) bool {
	for _, line := range strings.Split(string(text), "\n") {
		if strings.TrimSpace(line) != "" {
			return true
		}
	}
	return false
}
