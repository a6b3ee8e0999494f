package ledger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLedger(t *testing.T, lines ...string) *Aggregator {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	content := strings.Join(lines, "\n")
	if content != "" {
		content += "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return NewAggregator(path)
}

func TestSummarize_FinalOutcomeIsMaxAttempt(t *testing.T) {
	a := writeLedger(t,
		`{"id":"1","tool":"git","attempt":0,"ok":false}`,
		`{"id":"1","tool":"git","attempt":1,"ok":true,"duration_ms":2000}`,
	)

	s, err := a.Summarize(0)
	require.NoError(t, err)

	assert.Equal(t, 1, s.Total)
	assert.Equal(t, 1, s.Succeeded)
	assert.InDelta(t, 100.0, s.SuccessRate, 0.001)
	assert.InDelta(t, 2.0, s.AvgDurationSec, 0.001)
}

func TestSummarize_EmptyLedger(t *testing.T) {
	a := writeLedger(t)

	s, err := a.Summarize(0)
	require.NoError(t, err)

	assert.Equal(t, 0, s.Total)
	assert.Equal(t, 0.0, s.SuccessRate)
	assert.Equal(t, 0.0, s.AvgDurationSec)
}

func TestSummarize_AbsentLedger(t *testing.T) {
	a := NewAggregator(filepath.Join(t.TempDir(), "ledger.jsonl"))

	s, err := a.Summarize(0)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Total)
}

func TestSummarize_UnparsableLinesSkipped(t *testing.T) {
	a := writeLedger(t,
		`{"id":"1","tool":"git","attempt":0,"ok":true}`,
		`not json at all`,
		``,
		`{"id":"2","tool":"aider","attempt":0,"ok":false}`,
	)

	s, err := a.Summarize(0)
	require.NoError(t, err)

	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Succeeded)
	assert.InDelta(t, 50.0, s.SuccessRate, 0.001)
}

func TestSummarize_AbsentAttemptLastLineWins(t *testing.T) {
	a := writeLedger(t,
		`{"id":"1","tool":"git","ok":true}`,
		`{"id":"1","tool":"git","ok":false}`,
	)

	s, err := a.Summarize(0)
	require.NoError(t, err)

	assert.Equal(t, 1, s.Total)
	assert.Equal(t, 0, s.Succeeded, "later line should win when attempts are unnumbered")
}

func TestSummarize_LaterLowerAttemptDoesNotReplaceFinal(t *testing.T) {
	a := writeLedger(t,
		`{"id":"1","tool":"git","attempt":2,"ok":true}`,
		`{"id":"1","tool":"git","attempt":1,"ok":false}`,
	)

	s, err := a.Summarize(0)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Succeeded, "attempt 2 stays final even when attempt 1 appears later")
}

func TestSummarize_DurationExclusions(t *testing.T) {
	a := writeLedger(t,
		`{"id":"1","tool":"git","attempt":0,"ok":true,"duration_ms":1000}`,
		`{"id":"2","tool":"git","attempt":0,"ok":true}`,
		`{"id":"3","tool":"git","attempt":0,"ok":true,"duration_ms":3000}`,
	)

	s, err := a.Summarize(0)
	require.NoError(t, err)

	// id 2 has no duration: excluded from the mean, not counted as zero.
	assert.InDelta(t, 2.0, s.AvgDurationSec, 0.001)
}

func TestSummarize_PerToolPartitionByMostRecentTool(t *testing.T) {
	a := writeLedger(t,
		`{"id":"1","tool":"git","attempt":0,"ok":false}`,
		`{"id":"1","tool":"aider","attempt":1,"ok":true}`,
		`{"id":"2","tool":"git","attempt":0,"ok":true}`,
	)

	s, err := a.Summarize(0)
	require.NoError(t, err)

	require.Len(t, s.Tools, 2)
	// Sorted by tool name: aider, git.
	assert.Equal(t, "aider", s.Tools[0].Tool)
	assert.Equal(t, 1, s.Tools[0].Total)
	assert.Equal(t, 1, s.Tools[0].Succeeded)
	assert.Equal(t, "git", s.Tools[1].Tool)
	assert.Equal(t, 1, s.Tools[1].Total)
}

func TestSummarize_MissingIDAndToolDegradeToUnknown(t *testing.T) {
	a := writeLedger(t,
		`{"attempt":0,"ok":true}`,
		`{"attempt":1,"ok":false}`,
	)

	s, err := a.Summarize(0)
	require.NoError(t, err)

	assert.Equal(t, 1, s.Total, "records without ids share the unknown group")
	require.Len(t, s.Tools, 1)
	assert.Equal(t, "unknown", s.Tools[0].Tool)
}

func TestSummarize_Histogram(t *testing.T) {
	a := writeLedger(t,
		`{"id":"1","attempt":0,"ok":true,"duration_ms":15000}`,
		`{"id":"2","attempt":0,"ok":true,"duration_ms":30000}`,
		`{"id":"3","attempt":0,"ok":true,"duration_ms":90000}`,
		`{"id":"4","attempt":0,"ok":true,"duration_ms":400000}`,
		`{"id":"5","attempt":0,"ok":true,"duration_ms":601000}`,
	)

	s, err := a.Summarize(0)
	require.NoError(t, err)

	require.Len(t, s.Histogram, 6)
	counts := map[string]int{}
	for _, b := range s.Histogram {
		counts[b.Label] = b.Count
	}
	// 15s and 30s (inclusive upper bound) land in <=30s.
	assert.Equal(t, 2, counts["<=30s"])
	assert.Equal(t, 0, counts["<=60s"])
	assert.Equal(t, 1, counts["<=120s"])
	assert.Equal(t, 0, counts["<=300s"])
	assert.Equal(t, 1, counts["<=600s"])
	assert.Equal(t, 1, counts[">600s"])
}

func TestSummarize_TailBound(t *testing.T) {
	a := writeLedger(t,
		`{"id":"old","attempt":0,"ok":false}`,
		`{"id":"new1","attempt":0,"ok":true}`,
		`{"id":"new2","attempt":0,"ok":true}`,
	)

	s, err := a.Summarize(2)
	require.NoError(t, err)

	assert.Equal(t, 2, s.Total, "tail bound should drop the oldest line")
	assert.Equal(t, 2, s.Succeeded)
}

func TestSummarize_Replayable(t *testing.T) {
	a := writeLedger(t,
		`{"id":"1","tool":"git","attempt":0,"ok":true,"duration_ms":1000}`,
		`{"id":"2","tool":"git","attempt":0,"ok":false}`,
	)

	first, err := a.Summarize(0)
	require.NoError(t, err)
	second, err := a.Summarize(0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestExportCSV(t *testing.T) {
	a := writeLedger(t,
		`{"id":"1","tool":"git","attempt":0,"ok":true,"duration_ms":1500}`,
		`{"id":"2","tool":"aider","attempt":0,"ok":false,"duration_ms":2000}`,
		`{"id":"3","tool":"git","attempt":0,"ok":true}`,
	)

	var buf bytes.Buffer
	require.NoError(t, a.ExportCSV(&buf, 0))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 5)
	assert.Equal(t, "tool,total,success", lines[0])
	assert.Equal(t, "aider,1,0", lines[1])
	assert.Equal(t, "git,2,2", lines[2])
	assert.Equal(t, "duration_seconds", lines[3])
	assert.Equal(t, "1.500", lines[4])
	assert.Equal(t, "2.000", lines[5])
}

func TestRecent(t *testing.T) {
	a := writeLedger(t,
		`{"id":"1","tool":"git","attempt":0,"ok":true}`,
		`garbage`,
		`{"id":"2","tool":"git","attempt":0,"ok":false}`,
	)

	records, err := a.Recent(2)
	require.NoError(t, err)

	// Last two raw lines are the garbage line (skipped) and id 2.
	require.Len(t, records, 1)
	assert.Equal(t, "2", records[0].ID)
}
