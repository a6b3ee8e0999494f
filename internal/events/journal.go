package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultMaxJournalBytes is the rotation threshold when the caller passes 0.
const DefaultMaxJournalBytes = 100 * 1024 * 1024

const (
	journalExt     = ".jsonl"
	archiveDirName = "archive"
)

// journaledEvents is every event type the daemon publishes. Attach
// subscribes to all of them so the journal is a complete trail.
var journaledEvents = []EventType{
	EventQueueChanged,
	EventLogLines,
	EventBreakerChanged,
	EventWorkerAlive,
	EventWorkerStale,
	EventTemplatesChanged,
	EventScheduleFired,
}

// JournalEntry is one recorded event, one JSON object per line.
type JournalEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Event     EventType              `json:"event"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Journal appends bus events to a JSONL file, rotating into an archive/
// sibling directory when the file exceeds maxSize.
type Journal struct {
	mu          sync.Mutex
	file        *os.File
	currentSize int64
	maxSize     int64
	path        string
	rotations   int
}

// NewJournal opens (or creates) the journal file for appending.
func NewJournal(path string, maxSize int64) (*Journal, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxJournalBytes
	}

	j := &Journal{
		path:    path,
		maxSize: maxSize,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	if err := j.open(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) open() error {
	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat journal: %w", err)
	}

	j.file = file
	j.currentSize = stat.Size()
	return nil
}

// Attach subscribes the journal to every event type on bus. The returned
// function detaches all subscriptions. Write errors are swallowed; the
// journal is a trail, not a dependency.
func (j *Journal) Attach(bus *Bus) func() {
	unsubs := make([]func(), 0, len(journaledEvents))
	for _, et := range journaledEvents {
		unsubs = append(unsubs, bus.Subscribe(et, func(e Event) {
			_ = j.Record(e)
		}))
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// Record appends one event to the journal, rotating first if the write
// would cross the size threshold.
func (j *Journal) Record(e Event) error {
	entry := JournalEntry{
		Timestamp: e.Timestamp,
		Event:     e.Type,
		Data:      e.Data,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.currentSize+int64(len(data)) > j.maxSize {
		if err := j.rotate(); err != nil {
			return fmt.Errorf("rotate journal: %w", err)
		}
	}

	n, err := j.file.Write(data)
	if err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	j.currentSize += int64(n)
	return nil
}

// rotate moves the current file into archive/ under a timestamped name and
// reopens a fresh one. The counter disambiguates rotations within a second.
func (j *Journal) rotate() error {
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}

	archiveDir := filepath.Join(filepath.Dir(j.path), archiveDirName)
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	j.rotations++
	base := filepath.Base(j.path)
	stem := base[:len(base)-len(journalExt)]
	archiveName := fmt.Sprintf("%s.%s.%d%s",
		stem, time.Now().Format("20060102_150405"), j.rotations, journalExt)

	if err := os.Rename(j.path, filepath.Join(archiveDir, archiveName)); err != nil {
		return fmt.Errorf("archive journal: %w", err)
	}

	return j.open()
}

// Close flushes and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	if err := j.file.Sync(); err != nil {
		return err
	}
	return j.file.Close()
}
