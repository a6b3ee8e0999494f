package model

// MetricsSummary is the aggregation of the ledger into per-task final
// outcomes. It is derived, never persisted; recomputing it from the ledger
// must always yield the same result for the same file contents.
type MetricsSummary struct {
	Total          int               `json:"total"`
	Succeeded      int               `json:"succeeded"`
	SuccessRate    float64           `json:"success_rate"`
	AvgDurationSec float64           `json:"avg_duration_sec"`
	Tools          []ToolStat        `json:"tools,omitempty"`
	Histogram      []HistogramBucket `json:"histogram"`
}

type ToolStat struct {
	Tool        string  `json:"tool"`
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	SuccessRate float64 `json:"success_rate"`
}

type HistogramBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// DurationBucketUppersSec are the inclusive upper bounds of the duration
// histogram; anything slower lands in the overflow bucket.
var DurationBucketUppersSec = []float64{30, 60, 120, 300, 600}
