package model

type Config struct {
	Version int           `yaml:"version"`
	Paths   PathsConfig   `yaml:"paths"`
	Daemon  DaemonConfig  `yaml:"daemon"`
	Worker  WorkerConfig  `yaml:"worker"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// PathsConfig holds the three roots relative to the overseer root (the
// directory containing .overseer/). Absolute paths are taken as-is.
type PathsConfig struct {
	TasksRoot string `yaml:"tasks_root"`
	LogsRoot  string `yaml:"logs_root"`
	StateRoot string `yaml:"state_root"`
}

type DaemonConfig struct {
	PollIntervalMs     int `yaml:"poll_interval_ms"`
	StateIntervalMs    int `yaml:"state_interval_ms"`
	ScheduleSyncSec    int `yaml:"schedule_sync_sec"`
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec"`
}

type WorkerConfig struct {
	HeartbeatStaleSec int    `yaml:"heartbeat_stale_sec"`
	LogName           string `yaml:"log_name"`
}

type MetricsConfig struct {
	LedgerTailLines int `yaml:"ledger_tail_lines"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func DefaultConfig() Config {
	return Config{
		Version: 1,
		Paths: PathsConfig{
			TasksRoot: ".tasks",
			LogsRoot:  "logs",
			StateRoot: ".state",
		},
		Daemon: DaemonConfig{
			PollIntervalMs:     1000,
			StateIntervalMs:    2000,
			ScheduleSyncSec:    60,
			ShutdownTimeoutSec: 30,
		},
		Worker: WorkerConfig{
			HeartbeatStaleSec: 10,
			LogName:           "queueworker.log",
		},
		Metrics: MetricsConfig{
			LedgerTailLines: 500,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ApplyDefaults fills zero-valued fields so a sparse config.yaml still yields
// a fully usable configuration.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.Version == 0 {
		c.Version = def.Version
	}
	if c.Paths.TasksRoot == "" {
		c.Paths.TasksRoot = def.Paths.TasksRoot
	}
	if c.Paths.LogsRoot == "" {
		c.Paths.LogsRoot = def.Paths.LogsRoot
	}
	if c.Paths.StateRoot == "" {
		c.Paths.StateRoot = def.Paths.StateRoot
	}
	if c.Daemon.PollIntervalMs <= 0 {
		c.Daemon.PollIntervalMs = def.Daemon.PollIntervalMs
	}
	if c.Daemon.StateIntervalMs <= 0 {
		c.Daemon.StateIntervalMs = def.Daemon.StateIntervalMs
	}
	if c.Daemon.ScheduleSyncSec <= 0 {
		c.Daemon.ScheduleSyncSec = def.Daemon.ScheduleSyncSec
	}
	if c.Daemon.ShutdownTimeoutSec <= 0 {
		c.Daemon.ShutdownTimeoutSec = def.Daemon.ShutdownTimeoutSec
	}
	if c.Worker.HeartbeatStaleSec <= 0 {
		c.Worker.HeartbeatStaleSec = def.Worker.HeartbeatStaleSec
	}
	if c.Worker.LogName == "" {
		c.Worker.LogName = def.Worker.LogName
	}
	if c.Metrics.LedgerTailLines <= 0 {
		c.Metrics.LedgerTailLines = def.Metrics.LedgerTailLines
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
}
