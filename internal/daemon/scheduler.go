package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/msageha/overseer/internal/events"
	"github.com/msageha/overseer/internal/model"
	"github.com/msageha/overseer/internal/queue"
	"github.com/msageha/overseer/internal/schedule"
	"github.com/msageha/overseer/internal/template"
)

// scheduler drives recurring enqueues from schedules.json. Cron entries are
// reconciled against the document on a periodic sync, so edits made while
// the daemon runs are picked up without a restart. Fire bodies re-read the
// document and skip stale or disabled entries; a missing template logs a
// warning and skips the tick.
type scheduler struct {
	store   *schedule.Store
	catalog *template.Catalog
	queues  *queue.Manager
	bus     *events.Bus
	logf    func(LogLevel, string, ...any)

	cron      *cron.Cron
	mu        sync.Mutex
	jobs      map[string]cron.EntryID
	intervals map[string]int // schedule ID → every_minutes, for change detection
	running   bool
	syncEvery time.Duration
	stopSync  chan struct{}
	wg        sync.WaitGroup
}

func newScheduler(store *schedule.Store, catalog *template.Catalog, queues *queue.Manager,
	bus *events.Bus, syncEvery time.Duration, logf func(LogLevel, string, ...any)) *scheduler {
	return &scheduler{
		store:     store,
		catalog:   catalog,
		queues:    queues,
		bus:       bus,
		logf:      logf,
		cron:      cron.New(),
		jobs:      make(map[string]cron.EntryID),
		intervals: make(map[string]int),
		syncEvery: syncEvery,
		stopSync:  make(chan struct{}),
	}
}

// Start loads the current document, starts the cron runner, and begins the
// periodic sync. An unreadable document is not fatal: the sync loop keeps
// retrying, so fixing the file on disk is enough.
func (s *scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.Sync()
	s.cron.Start()

	s.wg.Add(1)
	go s.syncLoop()
}

// Stop halts the sync loop and waits for any in-flight fire to finish.
func (s *scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopSync)
	s.wg.Wait()

	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *scheduler) syncLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopSync:
			return
		case <-ticker.C:
			s.Sync()
		}
	}
}

// Sync reconciles cron entries against schedules.json: removed or disabled
// schedules are unscheduled, new enabled ones are added, and changed
// intervals are rescheduled.
func (s *scheduler) Sync() {
	schedules, err := s.store.List()
	if err != nil {
		s.logf(LogLevelWarn, "schedule sync: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]model.Schedule, len(schedules))
	for _, sched := range schedules {
		current[sched.ID] = sched
	}

	for id := range s.jobs {
		if _, ok := current[id]; !ok {
			s.unscheduleLocked(id)
		}
	}

	for _, sched := range schedules {
		_, scheduled := s.jobs[sched.ID]
		switch {
		case sched.Enabled && !scheduled:
			if err := s.scheduleLocked(sched); err != nil {
				s.logf(LogLevelWarn, "schedule %s: %v", sched.ID, err)
			}
		case !sched.Enabled && scheduled:
			s.unscheduleLocked(sched.ID)
		case sched.Enabled && scheduled && sched.EveryMinutes != s.intervals[sched.ID]:
			if err := s.scheduleLocked(sched); err != nil {
				s.logf(LogLevelWarn, "schedule %s: %v", sched.ID, err)
			}
		}
	}
}

// Entries reports the schedule IDs currently registered with cron.
func (s *scheduler) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	return ids
}

func (s *scheduler) scheduleLocked(sched model.Schedule) error {
	if entryID, ok := s.jobs[sched.ID]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, sched.ID)
		delete(s.intervals, sched.ID)
	}

	id := sched.ID
	entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %dm", sched.EveryMinutes), func() {
		s.fire(id)
	})
	if err != nil {
		return fmt.Errorf("register cron entry: %w", err)
	}

	s.jobs[sched.ID] = entryID
	s.intervals[sched.ID] = sched.EveryMinutes
	s.logf(LogLevelDebug, "schedule %s registered: %q every %dm", sched.ID, sched.Name, sched.EveryMinutes)
	return nil
}

func (s *scheduler) unscheduleLocked(id string) {
	if entryID, ok := s.jobs[id]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, id)
		delete(s.intervals, id)
		s.logf(LogLevelDebug, "schedule %s unscheduled", id)
	}
}

// fire runs one schedule tick: re-read the document for fresh state, resolve
// the template, enqueue its task.
func (s *scheduler) fire(id string) {
	schedules, err := s.store.List()
	if err != nil {
		s.logf(LogLevelWarn, "schedule %s fire: %v", id, err)
		return
	}

	var sched model.Schedule
	found := false
	for _, candidate := range schedules {
		if candidate.ID == id {
			sched, found = candidate, true
			break
		}
	}
	if !found || !sched.Enabled {
		// Removed or disabled since registration; the next sync cleans up.
		return
	}

	tmpl, ok := s.catalog.Get(sched.Name, sched.Category)
	if !ok {
		s.logf(LogLevelWarn, "schedule %s: template %s/%s not found, skipping",
			sched.ID, sched.Category, sched.Name)
		return
	}

	env := tmpl.Task
	env.ID = "" // fresh task id per fire
	env, path, err := s.queues.Enqueue(env)
	if err != nil {
		s.logf(LogLevelError, "schedule %s: enqueue %q: %v", sched.ID, sched.Name, err)
		return
	}

	if err := s.store.UpdateLastRun(sched.ID, time.Now()); err != nil {
		s.logf(LogLevelDebug, "schedule %s: update last_run: %v", sched.ID, err)
	}

	s.logf(LogLevelInfo, "schedule %q fired, enqueued %s", sched.Name, env.ID)
	s.bus.Publish(events.EventScheduleFired, map[string]interface{}{
		"schedule_id": sched.ID,
		"template":    sched.Name,
		"category":    sched.Category,
		"task_id":     env.ID,
		"path":        path,
	})
}
