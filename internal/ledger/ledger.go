// Package ledger folds the worker's append-only execution ledger into
// per-task final outcomes and summary statistics. The aggregation holds no
// state of its own: every result is re-derivable from the file.
package ledger

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/msageha/overseer/internal/model"
)

// Aggregator reads and summarizes one ledger file.
type Aggregator struct {
	path         string
	singleflight singleflight.Group
}

func NewAggregator(path string) *Aggregator {
	return &Aggregator{path: path}
}

// group collects the records seen for one task id.
type group struct {
	final      model.LedgerRecord
	finalKnown bool
	lastTool   string
}

type aggregation struct {
	summary   model.MetricsSummary
	durations []float64
}

// Summarize aggregates the last tailLines ledger lines (0 = whole file).
// An absent ledger yields an empty summary. Concurrent calls with the same
// bounds are coalesced since the result is identical for a given file state.
func (a *Aggregator) Summarize(tailLines int) (model.MetricsSummary, error) {
	key := fmt.Sprintf("%s:%d", a.path, tailLines)
	v, err, _ := a.singleflight.Do(key, func() (interface{}, error) {
		return a.aggregate(tailLines)
	})
	if err != nil {
		return model.MetricsSummary{}, err
	}
	return v.(*aggregation).summary, nil
}

// ExportCSV writes per-tool rows (header tool,total,success) followed by a
// duration_seconds section, one row per final outcome with a duration.
func (a *Aggregator) ExportCSV(w io.Writer, tailLines int) error {
	agg, err := a.aggregate(tailLines)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"tool", "total", "success"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, ts := range agg.summary.Tools {
		row := []string{ts.Tool, strconv.Itoa(ts.Total), strconv.Itoa(ts.Succeeded)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	if err := cw.Write([]string{"duration_seconds"}); err != nil {
		return fmt.Errorf("write csv section: %w", err)
	}
	for _, d := range agg.durations {
		if err := cw.Write([]string{strconv.FormatFloat(d, 'f', 3, 64)}); err != nil {
			return fmt.Errorf("write csv duration: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Recent returns the last n ledger records in file order, parsed
// best-effort: unparsable lines are skipped.
func (a *Aggregator) Recent(n int) ([]model.LedgerRecord, error) {
	lines, err := a.readTail(n)
	if err != nil {
		return nil, err
	}
	records := []model.LedgerRecord{}
	for _, line := range lines {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		var rec model.LedgerRecord
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (a *Aggregator) aggregate(tailLines int) (*aggregation, error) {
	lines, err := a.readTail(tailLines)
	if err != nil {
		return nil, err
	}

	// Group records by id in file order. The final outcome per group is the
	// record with the maximum attempt; on equal attempts the later line wins,
	// so unnumbered groups degrade to last-line-wins.
	groups := make(map[string]*group)
	order := []string{}
	for _, line := range lines {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		var rec model.LedgerRecord
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			continue
		}
		id := rec.ID
		if id == "" {
			id = "unknown"
		}
		tool := rec.Tool
		if tool == "" {
			tool = "unknown"
		}

		g, ok := groups[id]
		if !ok {
			g = &group{}
			groups[id] = g
			order = append(order, id)
		}
		g.lastTool = tool
		if !g.finalKnown || rec.Attempt >= g.final.Attempt {
			g.final = rec
			g.finalKnown = true
		}
	}

	summary := model.MetricsSummary{
		Total:     len(groups),
		Tools:     []model.ToolStat{},
		Histogram: emptyHistogram(),
	}

	var durations []float64
	toolStats := make(map[string]*model.ToolStat)
	for _, id := range order {
		g := groups[id]
		ok := g.final.OK
		if ok {
			summary.Succeeded++
		}

		ts, present := toolStats[g.lastTool]
		if !present {
			ts = &model.ToolStat{Tool: g.lastTool}
			toolStats[g.lastTool] = ts
		}
		ts.Total++
		if ok {
			ts.Succeeded++
		}

		if sec, has := g.final.DurationSec(); has {
			durations = append(durations, sec)
			placeInHistogram(summary.Histogram, sec)
		}
	}

	if summary.Total > 0 {
		summary.SuccessRate = float64(summary.Succeeded) / float64(summary.Total) * 100
	}
	if len(durations) > 0 {
		var sum float64
		for _, d := range durations {
			sum += d
		}
		summary.AvgDurationSec = sum / float64(len(durations))
	}

	names := make([]string, 0, len(toolStats))
	for name := range toolStats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ts := toolStats[name]
		if ts.Total > 0 {
			ts.SuccessRate = float64(ts.Succeeded) / float64(ts.Total) * 100
		}
		summary.Tools = append(summary.Tools, *ts)
	}

	return &aggregation{summary: summary, durations: durations}, nil
}

// readTail returns the last n raw lines (0 = all). An absent ledger is an
// empty result, not an error: the worker may not have written yet.
func (a *Aggregator) readTail(n int) ([][]byte, error) {
	data, err := os.ReadFile(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	lines := bytes.Split(data, []byte("\n"))
	// A trailing newline leaves an empty final element; drop it so the tail
	// bound counts real lines.
	if len(lines) > 0 && len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

func emptyHistogram() []model.HistogramBucket {
	buckets := make([]model.HistogramBucket, 0, len(model.DurationBucketUppersSec)+1)
	for _, upper := range model.DurationBucketUppersSec {
		buckets = append(buckets, model.HistogramBucket{Label: fmt.Sprintf("<=%ds", int(upper))})
	}
	last := int(model.DurationBucketUppersSec[len(model.DurationBucketUppersSec)-1])
	return append(buckets, model.HistogramBucket{Label: fmt.Sprintf(">%ds", last)})
}

// placeInHistogram puts sec into the first bucket whose upper bound it does
// not exceed (inclusive), else the overflow bucket.
func placeInHistogram(buckets []model.HistogramBucket, sec float64) {
	for i, upper := range model.DurationBucketUppersSec {
		if sec <= upper {
			buckets[i].Count++
			return
		}
	}
	buckets[len(buckets)-1].Count++
}
