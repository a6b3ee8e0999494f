// Package breaker exposes the worker-owned circuit breaker document and the
// one corrective write overseer is allowed to make: force-closing a breaker.
package breaker

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/msageha/overseer/internal/jsonfile"
	"github.com/msageha/overseer/internal/model"
)

// Store reads and mutates the shared breaker document. All writes are
// whole-document, last-writer-wins with the worker; there is no
// cross-process locking.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Read parses the document into per-tool entries. An absent or unparsable
// document degrades to an empty mapping: the worker may simply not have
// started yet, and a read must never fail the caller.
func (s *Store) Read() map[string]model.BreakerEntry {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return map[string]model.BreakerEntry{}
	}

	var doc map[string]model.BreakerEntry
	if err := json.Unmarshal(data, &doc); err != nil {
		return map[string]model.BreakerEntry{}
	}
	if doc == nil {
		return map[string]model.BreakerEntry{}
	}
	return doc
}

// ForceClose sets fails=0, state=closed, until=now for each named tool
// present in the document, then writes the whole document back. Tools
// without an entry are silently ignored. Unlike Read, a document that fails
// to parse is an explicit error here: silently discarding an operator's
// intended mutation would be misleading.
func (s *Store) ForceClose(tools []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			// No document means no breakers tripped; nothing to close.
			return 0, nil
		}
		return 0, fmt.Errorf("read breakers: %w", err)
	}

	// Keep per-tool fields the worker wrote that overseer does not model.
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("parse breakers: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	changed := 0
	for _, tool := range tools {
		raw, ok := doc[tool]
		if !ok {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal(raw, &entry); err != nil {
			// Malformed entry; skip it rather than fail the rest.
			continue
		}
		entry["fails"] = 0
		entry["state"] = model.BreakerClosed
		entry["until"] = now

		updated, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		doc[tool] = updated
		changed++
	}

	if changed == 0 {
		return 0, nil
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode breakers: %w", err)
	}
	if err := jsonfile.AtomicWriteRaw(s.path, append(out, '\n')); err != nil {
		return 0, fmt.Errorf("write breakers: %w", err)
	}
	return changed, nil
}
