// Package workerstate reads the liveness and activity documents published by
// the external headless worker and owns the stop sentinel. All documents are
// worker-written except the sentinel; reads degrade to "absent" rather than
// erroring so a worker that has not started yet never breaks the control
// surface.
package workerstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/msageha/overseer/internal/model"
)

// HeartbeatState classifies the worker liveness signal.
type HeartbeatState string

const (
	// HeartbeatMissing means heartbeat.json does not exist.
	HeartbeatMissing HeartbeatState = "missing"
	// HeartbeatUnreadable means the document exists but could not be parsed.
	HeartbeatUnreadable HeartbeatState = "unreadable"
	// HeartbeatAlive means the heartbeat is fresher than the stale threshold.
	HeartbeatAlive HeartbeatState = "alive"
	// HeartbeatStale means the heartbeat is older than the stale threshold.
	HeartbeatStale HeartbeatState = "stale"
)

// HeartbeatStatus is the decoded liveness state. Timestamp, PID and Age are
// meaningful only for alive and stale.
type HeartbeatStatus struct {
	State     HeartbeatState `json:"state"`
	Timestamp time.Time      `json:"timestamp,omitzero"`
	PID       int            `json:"pid,omitempty"`
	AgeSec    float64        `json:"age_sec,omitempty"`
}

// Alive reports whether the worker is considered live.
func (s HeartbeatStatus) Alive() bool { return s.State == HeartbeatAlive }

// Reader reads worker-published state under one overseer root.
type Reader struct {
	roots      model.Roots
	staleAfter time.Duration
}

// NewReader returns a Reader. staleAfter <= 0 falls back to the default
// threshold of 10 seconds.
func NewReader(roots model.Roots, staleAfter time.Duration) *Reader {
	if staleAfter <= 0 {
		staleAfter = time.Duration(model.DefaultConfig().Worker.HeartbeatStaleSec) * time.Second
	}
	return &Reader{roots: roots, staleAfter: staleAfter}
}

// Heartbeat reads heartbeat.json and classifies it against the stale
// threshold. Absence and unparsable content are states, not errors.
func (r *Reader) Heartbeat() HeartbeatStatus {
	content, err := os.ReadFile(r.roots.Heartbeat())
	if err != nil {
		return HeartbeatStatus{State: HeartbeatMissing}
	}

	var hb model.Heartbeat
	if err := json.Unmarshal(content, &hb); err != nil || hb.Timestamp == "" {
		return HeartbeatStatus{State: HeartbeatUnreadable}
	}
	ts, err := parseTimestamp(hb.Timestamp)
	if err != nil {
		return HeartbeatStatus{State: HeartbeatUnreadable}
	}

	age := time.Since(ts)
	state := HeartbeatAlive
	if age > r.staleAfter {
		state = HeartbeatStale
	}
	return HeartbeatStatus{
		State:     state,
		Timestamp: ts,
		PID:       hb.PID,
		AgeSec:    age.Seconds(),
	}
}

// parseTimestamp accepts RFC3339 (with or without fractional seconds) and a
// zone-less local form, which some worker builds emit.
func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", s, time.Local)
}

// RunningTasks reads running_tasks.json. The worker replaces the whole array
// on each write. Absent or corrupt documents read as empty; malformed
// entries inside an otherwise valid array are skipped.
func (r *Reader) RunningTasks() []model.RunningTask {
	content, err := os.ReadFile(r.roots.RunningTasks())
	if err != nil {
		return []model.RunningTask{}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(content, &items); err != nil {
		return []model.RunningTask{}
	}
	tasks := make([]model.RunningTask, 0, len(items))
	for _, raw := range items {
		var task model.RunningTask
		if err := json.Unmarshal(raw, &task); err != nil {
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks
}

// RequestStop writes the stop sentinel at the overseer root. The worker
// polls for it and exits after finishing the current task. Write is
// temp-then-rename so a concurrent worker read never sees a partial file.
func (r *Reader) RequestStop() error {
	path := r.roots.StopSentinel()
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".stop-tmp-*")
	if err != nil {
		return fmt.Errorf("create stop sentinel: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.WriteString("stop"); err != nil {
		return fmt.Errorf("write stop sentinel: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close stop sentinel: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("place stop sentinel: %w", err)
	}
	return nil
}

// ClearStop removes the stop sentinel. A missing sentinel is success.
func (r *Reader) ClearStop() error {
	if err := os.Remove(r.roots.StopSentinel()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stop sentinel: %w", err)
	}
	return nil
}

// StopRequested reports whether the sentinel currently exists.
func (r *Reader) StopRequested() bool {
	_, err := os.Stat(r.roots.StopSentinel())
	return err == nil
}
