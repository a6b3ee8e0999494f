// Package status collects one snapshot of the whole control surface: daemon
// liveness, queue depths, worker heartbeat, running tasks and breaker states.
package status

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/msageha/overseer/internal/breaker"
	"github.com/msageha/overseer/internal/ipc"
	"github.com/msageha/overseer/internal/model"
	"github.com/msageha/overseer/internal/queue"
	"github.com/msageha/overseer/internal/workerstate"
)

type Snapshot struct {
	Daemon        DaemonStatus                  `json:"daemon"`
	Worker        workerstate.HeartbeatStatus   `json:"worker"`
	StopRequested bool                          `json:"stop_requested"`
	Queues        map[string]int                `json:"queues"`
	Running       []model.RunningTask           `json:"running,omitempty"`
	Breakers      map[string]model.BreakerEntry `json:"breakers,omitempty"`
}

type DaemonStatus struct {
	Running bool   `json:"running"`
	Pid     string `json:"pid,omitempty"`
}

// Collect gathers the snapshot by direct file reads plus a daemon ping. It
// works whether or not the daemon is up; degraded sources read as empty.
func Collect(roots model.Roots, cfg model.Config) Snapshot {
	return CollectWith(roots, cfg, checkDaemon(roots))
}

// CollectWith gathers the snapshot with daemon liveness already known. The
// daemon's own status handler uses it instead of dialing its own socket.
func CollectWith(roots model.Roots, cfg model.Config, daemon DaemonStatus) Snapshot {
	s := Snapshot{
		Daemon: daemon,
		Queues: map[string]int{},
	}

	reader := workerstate.NewReader(roots, time.Duration(cfg.Worker.HeartbeatStaleSec)*time.Second)
	s.Worker = reader.Heartbeat()
	s.StopRequested = reader.StopRequested()
	s.Running = reader.RunningTasks()

	for state, n := range queue.NewManager(roots, nil).Depths() {
		s.Queues[string(state)] = n
	}

	s.Breakers = breaker.NewStore(roots.Breakers()).Read()
	return s
}

func checkDaemon(roots model.Roots) DaemonStatus {
	client := ipc.NewClient(roots.Socket())
	client.SetTimeout(2 * time.Second)
	resp, err := client.SendCommand("ping", nil)
	if err != nil || !resp.Success {
		return DaemonStatus{Running: false}
	}
	return DaemonStatus{Running: true, Pid: readPid(roots)}
}

func readPid(roots model.Roots) string {
	content, err := os.ReadFile(roots.DaemonPID())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(content))
}

// Print writes the human-readable snapshot.
func Print(w io.Writer, s Snapshot) {
	if s.Daemon.Running {
		if s.Daemon.Pid != "" {
			fmt.Fprintf(w, "Daemon: running (pid %s)\n", s.Daemon.Pid)
		} else {
			fmt.Fprintln(w, "Daemon: running")
		}
	} else {
		fmt.Fprintln(w, "Daemon: stopped")
	}

	switch s.Worker.State {
	case workerstate.HeartbeatAlive:
		fmt.Fprintf(w, "Worker: alive (heartbeat %s, pid %d)\n",
			humanize.Time(s.Worker.Timestamp), s.Worker.PID)
	case workerstate.HeartbeatStale:
		fmt.Fprintf(w, "Worker: stale (last heartbeat %s, pid %d)\n",
			humanize.Time(s.Worker.Timestamp), s.Worker.PID)
	case workerstate.HeartbeatUnreadable:
		fmt.Fprintln(w, "Worker: heartbeat unreadable")
	default:
		fmt.Fprintln(w, "Worker: no heartbeat")
	}
	if s.StopRequested {
		fmt.Fprintln(w, "Stop requested: yes")
	}

	fmt.Fprintln(w, "\nQueues:")
	fmt.Fprintf(w, "  %-12s  %5s\n", "STATE", "DEPTH")
	for _, state := range []model.QueueState{model.StateInbox, model.StateFailed, model.StateQuarantine} {
		fmt.Fprintf(w, "  %-12s  %5d\n", state, s.Queues[string(state)])
	}

	if len(s.Breakers) > 0 {
		tools := make([]string, 0, len(s.Breakers))
		for tool := range s.Breakers {
			tools = append(tools, tool)
		}
		sort.Strings(tools)

		fmt.Fprintln(w, "\nBreakers:")
		fmt.Fprintf(w, "  %-10s  %-8s  %5s  %s\n", "TOOL", "STATE", "FAILS", "UNTIL")
		for _, tool := range tools {
			b := s.Breakers[tool]
			fmt.Fprintf(w, "  %-10s  %-8s  %5d  %s\n", tool, b.State, b.Fails, b.Until)
		}
	}

	if len(s.Running) > 0 {
		fmt.Fprintln(w, "\nRunning:")
		fmt.Fprintf(w, "  %-26s  %-8s  %-8s  %s\n", "ID", "TOOL", "PRIORITY", "STARTED")
		for _, task := range s.Running {
			fmt.Fprintf(w, "  %-26s  %-8s  %-8s  %s\n", task.ID, task.Tool, task.Priority, task.Started)
		}
	}
}
