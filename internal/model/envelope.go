// Package model defines the data structures for overseer's envelopes, ledger,
// breakers, templates, and worker state documents.
package model

import "fmt"

// Envelope is a single task description as consumed by the headless worker.
// Optional fields are omitted entirely when unset; the worker applies its own
// defaults, so a zero value must never be serialized as an explicit null.
type Envelope struct {
	ID               string   `json:"id,omitempty"`
	Tool             string   `json:"tool"`
	Repo             string   `json:"repo,omitempty"`
	Args             []string `json:"args,omitempty"`
	Flags            []string `json:"flags,omitempty"`
	Files            []string `json:"files,omitempty"`
	Prompt           string   `json:"prompt,omitempty"`
	TimeoutSec       int      `json:"timeout_sec,omitempty"`
	Priority         string   `json:"priority,omitempty"`
	DependsOn        []string `json:"depends_on,omitempty"`
	RecurringMinutes int      `json:"recurring_minutes,omitempty"`
	RunAt            string   `json:"run_at,omitempty"`
}

const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// DefaultTimeoutSec is the timeout suggested for operator-composed tasks.
// The worker owns the real default; this only seeds forms and templates.
const DefaultTimeoutSec = 900

// KnownTools mirrors the executor whitelist enforced by the worker.
// Enqueue-side validation is advisory only.
var KnownTools = []string{"git", "aider", "codex", "claude", "pwsh", "python"}

func IsKnownTool(name string) bool {
	for _, t := range KnownTools {
		if t == name {
			return true
		}
	}
	return false
}

func ValidatePriority(p string) error {
	switch p {
	case "", PriorityHigh, PriorityNormal, PriorityLow:
		return nil
	}
	return fmt.Errorf("invalid priority %q (want high|normal|low)", p)
}
