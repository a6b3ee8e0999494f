package model

// Breaker states as written by the worker. Anything else (a worker-side
// half-open, say) is passed through verbatim, so BreakerEntry.State is a
// plain string rather than a closed enum.
const (
	BreakerClosed = "closed"
	BreakerOpen   = "open"
)

// BreakerEntry is the per-tool failure state inside circuit_breakers.json.
// Until is an ISO-8601 timestamp or empty.
type BreakerEntry struct {
	State string `json:"state"`
	Fails int    `json:"fails"`
	Until string `json:"until"`
}

func (b BreakerEntry) IsOpen() bool {
	return b.State == BreakerOpen
}
