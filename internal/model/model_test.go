package model

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnvelopeOmitsAbsentFields(t *testing.T) {
	data, err := json.Marshal(Envelope{ID: "task_1", Tool: "git"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	for _, absent := range []string{"repo", "args", "flags", "files", "prompt", "timeout_sec", "priority", "depends_on", "recurring_minutes", "run_at"} {
		if strings.Contains(s, absent) {
			t.Errorf("absent field %q serialized in %s", absent, s)
		}
	}
	if strings.Contains(s, "null") {
		t.Errorf("null placeholder serialized in %s", s)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	e := Envelope{
		ID:         "task_1771722060_b7c1d4e9",
		Tool:       "aider",
		Repo:       "/work/repo",
		Args:       []string{"--message", "refactor"},
		Flags:      []string{"--yes"},
		Prompt:     "Refactor module.",
		TimeoutSec: 1200,
		Priority:   PriorityHigh,
		DependsOn:  []string{"task_1771722000_a3f2b7c1"},
	}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Envelope
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Tool != e.Tool || back.TimeoutSec != e.TimeoutSec || len(back.Args) != 2 {
		t.Errorf("round trip mismatch: %+v", back)
	}
}

func TestLedgerRecordDurationSec(t *testing.T) {
	ms := 2000.0
	r := LedgerRecord{DurationMS: &ms}
	sec, ok := r.DurationSec()
	if !ok || sec != 2.0 {
		t.Errorf("DurationSec = (%v, %v), want (2.0, true)", sec, ok)
	}

	none := LedgerRecord{}
	if _, ok := none.DurationSec(); ok {
		t.Error("expected no duration for record without duration_ms")
	}
}

func TestLedgerRecordAbsentAttemptDecodesToZero(t *testing.T) {
	var r LedgerRecord
	if err := json.Unmarshal([]byte(`{"id":"t1","ok":true}`), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.Attempt != 0 {
		t.Errorf("absent attempt decoded to %d, want 0", r.Attempt)
	}
	if r.Exit != nil || r.DurationMS != nil {
		t.Error("absent exit/duration_ms should decode to nil")
	}
}

func TestParseQueueState(t *testing.T) {
	for _, s := range []string{"inbox", "failed", "quarantine"} {
		if _, err := ParseQueueState(s); err != nil {
			t.Errorf("ParseQueueState(%q) returned error: %v", s, err)
		}
	}
	if _, err := ParseQueueState("done"); err == nil {
		t.Error("expected error for unknown state")
	}
}

func TestValidatePriority(t *testing.T) {
	for _, p := range []string{"", PriorityHigh, PriorityNormal, PriorityLow} {
		if err := ValidatePriority(p); err != nil {
			t.Errorf("ValidatePriority(%q) returned error: %v", p, err)
		}
	}
	if err := ValidatePriority("urgent"); err == nil {
		t.Error("expected error for unknown priority")
	}
}

func TestApplyDefaultsFillsZeroFields(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	def := DefaultConfig()
	if cfg.Paths.TasksRoot != def.Paths.TasksRoot {
		t.Errorf("tasks_root = %q, want %q", cfg.Paths.TasksRoot, def.Paths.TasksRoot)
	}
	if cfg.Daemon.PollIntervalMs != def.Daemon.PollIntervalMs {
		t.Errorf("poll_interval_ms = %d, want %d", cfg.Daemon.PollIntervalMs, def.Daemon.PollIntervalMs)
	}
	if cfg.Worker.HeartbeatStaleSec != def.Worker.HeartbeatStaleSec {
		t.Errorf("heartbeat_stale_sec = %d, want %d", cfg.Worker.HeartbeatStaleSec, def.Worker.HeartbeatStaleSec)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{Paths: PathsConfig{TasksRoot: "/var/queue"}}
	cfg.ApplyDefaults()
	if cfg.Paths.TasksRoot != "/var/queue" {
		t.Errorf("explicit tasks_root overwritten: %q", cfg.Paths.TasksRoot)
	}
}

func TestResolveRoots(t *testing.T) {
	cfg := DefaultConfig()
	r := ResolveRoots("/project", cfg)

	if r.Inbox() != filepath.Join("/project", ".tasks", "inbox") {
		t.Errorf("inbox = %q", r.Inbox())
	}
	if r.Ledger() != filepath.Join("/project", "logs", "ledger.jsonl") {
		t.Errorf("ledger = %q", r.Ledger())
	}
	if r.WorkerLog() != filepath.Join("/project", "logs", "queueworker.log") {
		t.Errorf("worker log = %q", r.WorkerLog())
	}
	if r.Breakers() != filepath.Join("/project", ".state", "circuit_breakers.json") {
		t.Errorf("breakers = %q", r.Breakers())
	}
	if r.StopSentinel() != filepath.Join("/project", "STOP.HEADLESS") {
		t.Errorf("stop sentinel = %q", r.StopSentinel())
	}
}

func TestResolveRootsAbsolutePathWins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths.LogsRoot = "/var/log/worker"
	r := ResolveRoots("/project", cfg)
	if r.Logs != "/var/log/worker" {
		t.Errorf("absolute logs_root not honored: %q", r.Logs)
	}
}
