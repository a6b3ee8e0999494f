package model

// LedgerRecord is one execution attempt as appended by the worker. The ledger
// file is worker-owned and append-only; overseer only ever reads it.
// Attempt numbering starts wherever the worker chooses; an absent attempt
// decodes to 0, which makes unnumbered groups degrade to last-line-wins.
type LedgerRecord struct {
	ID         string   `json:"id"`
	Tool       string   `json:"tool,omitempty"`
	Attempt    int      `json:"attempt,omitempty"`
	OK         bool     `json:"ok"`
	Exit       *int     `json:"exit,omitempty"`
	DurationMS *float64 `json:"duration_ms,omitempty"`
	TS         string   `json:"ts,omitempty"`
}

// DurationSec returns the attempt duration in seconds and whether one was
// recorded at all.
func (r LedgerRecord) DurationSec() (float64, bool) {
	if r.DurationMS == nil {
		return 0, false
	}
	return *r.DurationMS / 1000.0, true
}
