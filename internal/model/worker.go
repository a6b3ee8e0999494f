package model

// RunningTask is one currently executing task as published by the worker in
// running_tasks.json. The whole array is replaced on every worker write.
type RunningTask struct {
	ID       string `json:"id"`
	Tool     string `json:"tool,omitempty"`
	Priority string `json:"priority,omitempty"`
	Started  string `json:"started,omitempty"`
	File     string `json:"file,omitempty"`
	Repo     string `json:"repo,omitempty"`
}

// Heartbeat is the worker liveness document, overwritten in place. Staleness
// of Timestamp is the liveness signal, not existence of the PID.
type Heartbeat struct {
	Timestamp string `json:"timestamp"`
	PID       int    `json:"pid"`
}
