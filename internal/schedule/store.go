// Package schedule persists recurring enqueue schedules. The daemon's cron
// runner reads the document periodically and reconciles its jobs against it;
// this package only owns the document.
package schedule

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/msageha/overseer/internal/jsonfile"
	"github.com/msageha/overseer/internal/model"
)

var (
	// ErrNotFound is returned when no schedule has the given id.
	ErrNotFound = errors.New("schedule not found")
	// ErrValidation is returned when a schedule fails validation.
	ErrValidation = errors.New("validation failed")
)

// Store owns schedules.json under the state root. Every mutation rewrites
// the whole document; document order is insertion order.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(roots model.Roots) *Store {
	return &Store{path: roots.Schedules()}
}

// List returns the schedules in document order. An absent document is an
// empty list; a corrupt one is an error so callers keep their previous state
// instead of silently dropping every schedule.
func (s *Store) List() ([]model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	return doc.Schedules, nil
}

// Add creates an enabled schedule for the template named by (name,
// category) and returns it with its generated id.
func (s *Store) Add(name, category string, everyMinutes int) (model.Schedule, error) {
	if name == "" {
		return model.Schedule{}, fmt.Errorf("%w: template name is required", ErrValidation)
	}
	if everyMinutes < 1 {
		return model.Schedule{}, fmt.Errorf("%w: every_minutes must be at least 1, got %d", ErrValidation, everyMinutes)
	}
	if category == "" {
		category = model.DefaultCategory
	}

	sched := model.Schedule{
		ID:           uuid.NewString(),
		Name:         name,
		Category:     category,
		EveryMinutes: everyMinutes,
		Enabled:      true,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		return model.Schedule{}, err
	}
	doc.Schedules = append(doc.Schedules, sched)
	if err := s.persistLocked(doc); err != nil {
		return model.Schedule{}, err
	}
	return sched, nil
}

// Remove deletes the schedule with the given id.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		return err
	}
	kept := doc.Schedules[:0]
	found := false
	for _, sched := range doc.Schedules {
		if sched.ID == id {
			found = true
			continue
		}
		kept = append(kept, sched)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	doc.Schedules = kept
	return s.persistLocked(doc)
}

// Enable flips the enabled flag for the schedule with the given id.
func (s *Store) Enable(id string, enabled bool) error {
	return s.update(id, func(sched *model.Schedule) {
		sched.Enabled = enabled
	})
}

// UpdateLastRun records a successful fire. Best effort from the caller's
// perspective; the daemon logs but does not retry on failure.
func (s *Store) UpdateLastRun(id string, ts time.Time) error {
	return s.update(id, func(sched *model.Schedule) {
		sched.LastRun = ts.UTC().Format(time.RFC3339)
	})
}

func (s *Store) update(id string, apply func(*model.Schedule)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		return err
	}
	for i := range doc.Schedules {
		if doc.Schedules[i].ID == id {
			apply(&doc.Schedules[i])
			return s.persistLocked(doc)
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *Store) loadLocked() (model.ScheduleDoc, error) {
	var doc model.ScheduleDoc
	err := jsonfile.Load(s.path, &doc)
	if err == nil {
		return doc, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return model.ScheduleDoc{}, nil
	}
	return model.ScheduleDoc{}, fmt.Errorf("parse schedules: %w", err)
}

func (s *Store) persistLocked(doc model.ScheduleDoc) error {
	if err := jsonfile.AtomicWrite(s.path, doc); err != nil {
		return fmt.Errorf("persist schedules: %w", err)
	}
	return nil
}
