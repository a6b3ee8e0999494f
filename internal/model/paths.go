package model

import "path/filepath"

// Control-plane file names under the state root.
const (
	BreakersFileName        = "circuit_breakers.json"
	HeartbeatFileName       = "heartbeat.json"
	RunningTasksFileName    = "running_tasks.json"
	CustomTemplatesFileName = "CustomTemplates.json"
	SchedulesFileName       = "schedules.json"
)

// LedgerFileName lives under the logs root next to the worker log.
const LedgerFileName = "ledger.jsonl"

// StopSentinelName is written at the overseer root; its presence asks the
// worker to exit after the current task.
const StopSentinelName = "STOP.HEADLESS"

// Control files under .overseer/, owned by overseer itself.
const (
	OverseerDirName      = ".overseer"
	ConfigFileName       = "config.yaml"
	SocketFileName       = "overseer.sock"
	DaemonLockFileName   = "daemon.lock"
	DaemonPIDFileName    = "daemon.pid"
	DaemonLogFileName    = "overseer.log"
	EventJournalFileName = "events.jsonl"
)

// Roots resolves the configured path roots against the overseer root and
// exposes every file-system contract location from one place.
type Roots struct {
	Base  string
	Tasks string
	Logs  string
	State string

	workerLogName string
}

// ResolveRoots resolves cfg's relative roots against baseDir (the directory
// containing .overseer/). Absolute configured paths win unchanged.
func ResolveRoots(baseDir string, cfg Config) Roots {
	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	logName := cfg.Worker.LogName
	if logName == "" {
		logName = DefaultConfig().Worker.LogName
	}
	return Roots{
		Base:          baseDir,
		Tasks:         resolve(cfg.Paths.TasksRoot),
		Logs:          resolve(cfg.Paths.LogsRoot),
		State:         resolve(cfg.Paths.StateRoot),
		workerLogName: logName,
	}
}

func (r Roots) StateDir(s QueueState) string { return filepath.Join(r.Tasks, string(s)) }
func (r Roots) Inbox() string                { return r.StateDir(StateInbox) }
func (r Roots) Failed() string               { return r.StateDir(StateFailed) }
func (r Roots) Quarantine() string           { return r.StateDir(StateQuarantine) }

func (r Roots) Ledger() string    { return filepath.Join(r.Logs, LedgerFileName) }
func (r Roots) WorkerLog() string { return filepath.Join(r.Logs, r.workerLogName) }

func (r Roots) Breakers() string        { return filepath.Join(r.State, BreakersFileName) }
func (r Roots) Heartbeat() string       { return filepath.Join(r.State, HeartbeatFileName) }
func (r Roots) RunningTasks() string    { return filepath.Join(r.State, RunningTasksFileName) }
func (r Roots) CustomTemplates() string { return filepath.Join(r.State, CustomTemplatesFileName) }
func (r Roots) Schedules() string       { return filepath.Join(r.State, SchedulesFileName) }

func (r Roots) StopSentinel() string { return filepath.Join(r.Base, StopSentinelName) }

func (r Roots) OverseerDir() string { return filepath.Join(r.Base, OverseerDirName) }
func (r Roots) ConfigFile() string  { return filepath.Join(r.OverseerDir(), ConfigFileName) }
func (r Roots) Socket() string      { return filepath.Join(r.OverseerDir(), SocketFileName) }
func (r Roots) DaemonLock() string  { return filepath.Join(r.OverseerDir(), DaemonLockFileName) }
func (r Roots) DaemonPID() string   { return filepath.Join(r.OverseerDir(), DaemonPIDFileName) }
func (r Roots) DaemonLog() string   { return filepath.Join(r.OverseerDir(), DaemonLogFileName) }

func (r Roots) EventJournal() string { return filepath.Join(r.OverseerDir(), EventJournalFileName) }
