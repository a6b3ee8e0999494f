// Package daemon runs the background coordination process: it watches the
// queue directories, polls the worker log and state documents, fires
// schedules, and serves every CLI command over the IPC socket.
package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/msageha/overseer/internal/breaker"
	"github.com/msageha/overseer/internal/events"
	"github.com/msageha/overseer/internal/ipc"
	"github.com/msageha/overseer/internal/ledger"
	"github.com/msageha/overseer/internal/lock"
	"github.com/msageha/overseer/internal/model"
	"github.com/msageha/overseer/internal/queue"
	"github.com/msageha/overseer/internal/schedule"
	"github.com/msageha/overseer/internal/tail"
	"github.com/msageha/overseer/internal/template"
	"github.com/msageha/overseer/internal/workerstate"
)

const Version = "1.0.0"

// tailBufferLines bounds the in-memory buffer served by tail_since.
const tailBufferLines = 500

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func parseLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// TailLine is one worker log line with its buffer sequence number.
type TailLine struct {
	Seq  int64  `json:"seq"`
	Text string `json:"text"`
}

// Daemon is the overseer background process. One instance per overseer root,
// enforced by an advisory file lock.
type Daemon struct {
	roots    model.Roots
	config   model.Config
	logLevel LogLevel
	logger   *log.Logger
	logFile  io.Closer

	fileLock *lock.FileLock
	server   *ipc.Server
	watcher  *fsnotify.Watcher

	tailTicker  *time.Ticker
	stateTicker *time.Ticker

	bus          *events.Bus
	journal      *events.Journal
	detach       func()
	catalogUnsub func()

	queues    *queue.Manager
	breakers  *breaker.Store
	metrics   *ledger.Aggregator
	tailer    *tail.Tailer
	worker    *workerstate.Reader
	catalog   *template.Catalog
	schedules *schedule.Store
	scheduler *scheduler
	lockMap   *lock.MutexMap

	// quarantinedCustom is the path the template catalog moved an unreadable
	// custom document to, reported once at startup.
	quarantinedCustom string

	// mu guards the tail buffer and the state-poll snapshots below.
	mu           sync.Mutex
	recent       []TailLine
	nextSeq      int64
	lastBreakers map[string]model.BreakerEntry
	workerAlive  bool
	aliveKnown   bool
	runningCount int

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown sync.Once

	forceExit atomic.Bool
}

// New creates a Daemon logging to .overseer/overseer.log.
func New(roots model.Roots, cfg model.Config) (*Daemon, error) {
	logFile, err := openDaemonLog(roots)
	if err != nil {
		return nil, err
	}
	return newDaemon(roots, cfg, logFile, logFile)
}

// NewForeground is New with the log teed to stderr, for running the daemon
// attached to a terminal.
func NewForeground(roots model.Roots, cfg model.Config) (*Daemon, error) {
	logFile, err := openDaemonLog(roots)
	if err != nil {
		return nil, err
	}
	return newDaemon(roots, cfg, io.MultiWriter(logFile, os.Stderr), logFile)
}

func openDaemonLog(roots model.Roots) (*os.File, error) {
	if err := os.MkdirAll(roots.OverseerDir(), 0755); err != nil {
		return nil, fmt.Errorf("create overseer dir: %w", err)
	}
	logFile, err := os.OpenFile(roots.DaemonLog(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open daemon log: %w", err)
	}
	return logFile, nil
}

// newDaemon is the internal constructor for testing.
func newDaemon(roots model.Roots, cfg model.Config, w io.Writer, closer io.Closer) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	pollMs := cfg.Daemon.PollIntervalMs
	if pollMs <= 0 {
		pollMs = 1000
	}
	stateMs := cfg.Daemon.StateIntervalMs
	if stateMs <= 0 {
		stateMs = 2000
	}
	syncSec := cfg.Daemon.ScheduleSyncSec
	if syncSec <= 0 {
		syncSec = 60
	}

	d := &Daemon{
		roots:       roots,
		config:      cfg,
		logLevel:    parseLogLevel(cfg.Logging.Level),
		logger:      log.New(w, "", 0),
		logFile:     closer,
		fileLock:    lock.NewFileLock(roots.DaemonLock()),
		server:      ipc.NewServer(roots.Socket()),
		tailTicker:  time.NewTicker(time.Duration(pollMs) * time.Millisecond),
		stateTicker: time.NewTicker(time.Duration(stateMs) * time.Millisecond),
		bus:         events.NewBus(0),
		lockMap:     lock.NewMutexMap(),
		nextSeq:     1,
		ctx:         ctx,
		cancel:      cancel,
	}

	d.server.SetLogf(func(format string, args ...any) {
		d.log(LogLevelWarn, format, args...)
	})
	d.queues = queue.NewManager(roots, d.lockMap)
	d.breakers = breaker.NewStore(roots.Breakers())
	d.metrics = ledger.NewAggregator(roots.Ledger())
	d.tailer = tail.New(roots.WorkerLog())
	d.worker = workerstate.NewReader(roots, time.Duration(cfg.Worker.HeartbeatStaleSec)*time.Second)
	d.catalog, d.quarantinedCustom = template.NewCatalog(roots)
	d.schedules = schedule.NewStore(roots)
	d.scheduler = newScheduler(d.schedules, d.catalog, d.queues, d.bus,
		time.Duration(syncSec)*time.Second, d.log)

	return d, nil
}

// Run starts the daemon and blocks until shutdown completes.
func (d *Daemon) Run() error {
	// Step 1: Acquire file lock
	if err := d.fileLock.TryLock(); err != nil {
		return fmt.Errorf("daemon lock: %w", err)
	}
	d.log(LogLevelInfo, "daemon starting pid=%d", os.Getpid())
	if d.quarantinedCustom != "" {
		d.log(LogLevelWarn, "custom templates were unreadable, quarantined to %s", d.quarantinedCustom)
	}

	// Step 2: Write pid file
	pid := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(d.roots.DaemonPID(), []byte(pid), 0644); err != nil {
		d.fileLock.Unlock()
		return fmt.Errorf("write pid file: %w", err)
	}

	// Step 3: Ensure queue directories and watch them. A failed watch is not
	// fatal; the poll loops still observe everything, just slower.
	for _, dir := range []string{d.roots.Inbox(), d.roots.Failed(), d.roots.Quarantine()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			d.cleanup()
			return fmt.Errorf("ensure dir %s: %w", dir, err)
		}
	}
	if err := d.startWatcher(); err != nil {
		d.log(LogLevelWarn, "fsnotify unavailable, falling back to polling only: %v", err)
	}

	// Step 4: Attach the event journal
	journal, err := events.NewJournal(d.roots.EventJournal(), 0)
	if err != nil {
		d.log(LogLevelWarn, "event journal disabled: %v", err)
	} else {
		d.journal = journal
		d.detach = journal.Attach(d.bus)
	}

	// Step 5: Register IPC handlers
	d.registerHandlers()

	// Step 6: Start IPC server
	if err := d.server.Start(); err != nil {
		d.cleanup()
		return fmt.Errorf("start IPC server: %w", err)
	}
	d.log(LogLevelInfo, "IPC server listening on %s", d.roots.Socket())

	// Step 7: Start the cron scheduler
	d.scheduler.Start()

	// Step 8: Start background loops
	d.wg.Add(2)
	go d.tailLoop()
	go d.statePollLoop()
	if d.watcher != nil {
		d.wg.Add(1)
		go d.fsnotifyLoop()
	}

	// Bridge catalog change signals onto the bus.
	catalogCh, catalogUnsub := d.catalog.Subscribe()
	d.catalogUnsub = catalogUnsub
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-d.ctx.Done():
				return
			case _, ok := <-catalogCh:
				if !ok {
					return
				}
				d.bus.Publish(events.EventTemplatesChanged, nil)
			}
		}
	}()

	// Step 9: Prime initial state
	d.pollTail()
	d.pollState()
	d.log(LogLevelInfo, "daemon ready")

	// Step 10: Wait for signals
	d.waitSignals()

	return nil
}

// startWatcher sets up the fsnotify watcher over the three queue directories.
func (d *Daemon) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	for _, dir := range []string{d.roots.Inbox(), d.roots.Failed(), d.roots.Quarantine()} {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	d.watcher = watcher
	return nil
}

// fsnotifyLoop publishes queue-change events for envelope file activity.
func (d *Daemon) fsnotifyLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				d.log(LogLevelDebug, "queue watch op=%s file=%s", event.Op, event.Name)
				d.bus.Publish(events.EventQueueChanged, map[string]interface{}{
					"op":   event.Op.String(),
					"file": event.Name,
				})
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.log(LogLevelError, "queue watch error: %v", err)
		}
	}
}

// tailLoop polls the worker log at the configured interval.
func (d *Daemon) tailLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.tailTicker.C:
			d.pollTail()
		}
	}
}

// pollTail reads newly appended worker log lines into the tail buffer.
func (d *Daemon) pollTail() {
	lines := d.tailer.Poll()
	if len(lines) == 0 {
		return
	}

	d.mu.Lock()
	for _, line := range lines {
		d.recent = append(d.recent, TailLine{Seq: d.nextSeq, Text: line})
		d.nextSeq++
	}
	if excess := len(d.recent) - tailBufferLines; excess > 0 {
		d.recent = append([]TailLine(nil), d.recent[excess:]...)
	}
	d.mu.Unlock()

	d.log(LogLevelDebug, "tail: %d new line(s)", len(lines))
	d.bus.Publish(events.EventLogLines, map[string]interface{}{
		"count": len(lines),
	})
}

// statePollLoop checks worker state documents at the configured interval.
func (d *Daemon) statePollLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.stateTicker.C:
			d.pollState()
		}
	}
}

// pollState snapshots breakers, heartbeat and running tasks, publishing
// events only on transitions. The first poll establishes the baseline
// silently so a restart does not replay old state as news.
func (d *Daemon) pollState() {
	breakers := d.breakers.Read()
	hb := d.worker.Heartbeat()
	running := d.worker.RunningTasks()

	d.mu.Lock()
	prevBreakers := d.lastBreakers
	d.lastBreakers = breakers
	prevAlive, aliveKnown := d.workerAlive, d.aliveKnown
	d.workerAlive, d.aliveKnown = hb.Alive(), true
	prevRunning := d.runningCount
	d.runningCount = len(running)
	d.mu.Unlock()

	if prevBreakers != nil {
		d.publishBreakerTransitions(prevBreakers, breakers)
	}

	if aliveKnown && hb.Alive() != prevAlive {
		if hb.Alive() {
			d.log(LogLevelInfo, "worker heartbeat recovered pid=%d", hb.PID)
			d.bus.Publish(events.EventWorkerAlive, map[string]interface{}{
				"pid": hb.PID,
			})
		} else {
			d.log(LogLevelWarn, "worker heartbeat %s", hb.State)
			d.bus.Publish(events.EventWorkerStale, map[string]interface{}{
				"state": string(hb.State),
			})
		}
	}

	if len(running) != prevRunning {
		d.log(LogLevelDebug, "running tasks: %d", len(running))
	}
}

// publishBreakerTransitions diffs two breaker snapshots and publishes one
// event per tool whose state changed. A tool absent from a snapshot counts
// as closed.
func (d *Daemon) publishBreakerTransitions(prev, cur map[string]model.BreakerEntry) {
	tools := make(map[string]struct{}, len(prev)+len(cur))
	for tool := range prev {
		tools[tool] = struct{}{}
	}
	for tool := range cur {
		tools[tool] = struct{}{}
	}

	for tool := range tools {
		before := prev[tool].State
		if before == "" {
			before = model.BreakerClosed
		}
		after := cur[tool].State
		if after == "" {
			after = model.BreakerClosed
		}
		if before == after {
			continue
		}
		d.log(LogLevelInfo, "breaker %s: %s -> %s fails=%d", tool, before, after, cur[tool].Fails)
		d.bus.Publish(events.EventBreakerChanged, map[string]interface{}{
			"tool":  tool,
			"from":  before,
			"to":    after,
			"fails": cur[tool].Fails,
		})
	}
}

// tailSince returns buffered lines with a sequence after since, plus the
// highest sequence currently buffered.
func (d *Daemon) tailSince(since int64) ([]TailLine, int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	lines := []TailLine{}
	for _, line := range d.recent {
		if line.Seq > since {
			lines = append(lines, line)
		}
	}
	return lines, d.nextSeq - 1
}

// waitSignals blocks until a shutdown signal arrives. A second signal skips
// the graceful drain entirely.
func (d *Daemon) waitSignals() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	d.log(LogLevelInfo, "signal %s, shutting down", sig)

	go func() {
		<-sigCh
		d.log(LogLevelWarn, "second signal, exiting immediately")
		d.forceExit.Store(true)
		os.Exit(1)
	}()

	d.Shutdown()
}

// Shutdown runs the stop sequence once: stop the producers, close the
// listener, give in-flight work a bounded drain, then release everything.
func (d *Daemon) Shutdown() {
	d.shutdown.Do(func() {
		d.log(LogLevelInfo, "shutdown started")

		d.cancel()
		d.tailTicker.Stop()
		d.stateTicker.Stop()
		d.scheduler.Stop()
		if d.catalogUnsub != nil {
			d.catalogUnsub()
		}
		if d.watcher != nil {
			d.watcher.Close()
		}
		if d.server != nil {
			d.server.Stop()
		}

		timeout := d.config.Daemon.ShutdownTimeoutSec
		if timeout <= 0 {
			timeout = 30
		}
		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			d.log(LogLevelInfo, "background loops drained")
		case <-time.After(time.Duration(timeout) * time.Second):
			d.log(LogLevelWarn, "drain timed out after %ds, exiting with work in flight", timeout)
		}

		if d.detach != nil {
			d.detach()
		}
		d.bus.Close()
		if d.journal != nil {
			d.journal.Close()
		}
		d.cleanup()
		d.log(LogLevelInfo, "daemon stopped")
	})
}

// cleanup releases resources.
func (d *Daemon) cleanup() {
	os.Remove(d.roots.Socket())
	os.Remove(d.roots.DaemonPID())
	d.fileLock.Unlock()
	if d.logFile != nil {
		d.logFile.Close()
	}
}

func (d *Daemon) log(level LogLevel, format string, args ...any) {
	if level < d.logLevel {
		return
	}
	d.logger.Printf("%s %s daemon: %s",
		time.Now().Format(time.RFC3339), level, fmt.Sprintf(format, args...))
}
