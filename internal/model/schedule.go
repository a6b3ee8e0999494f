package model

// Schedule enqueues the template named by (Name, Category) every
// EveryMinutes minutes while Enabled. LastRun is informational, updated best
// effort after a successful enqueue.
type Schedule struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	EveryMinutes int    `json:"every_minutes"`
	Enabled      bool   `json:"enabled"`
	LastRun      string `json:"last_run,omitempty"`
}

type ScheduleDoc struct {
	Schedules []Schedule `json:"schedules"`
}
