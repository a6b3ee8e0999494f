package cli

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/msageha/overseer/internal/model"
)

func TestWorkerStopAndResume(t *testing.T) {
	roots := scaffold(t)

	out, err := runCommand(t, "worker", "stop")
	if err != nil {
		t.Fatalf("worker stop: %v", err)
	}
	if !strings.Contains(out, "Stop requested") {
		t.Errorf("unexpected output: %s", out)
	}
	if _, err := os.Stat(roots.StopSentinel()); err != nil {
		t.Fatalf("stop sentinel missing: %v", err)
	}

	out, err = runCommand(t, "worker", "resume")
	if err != nil {
		t.Fatalf("worker resume: %v", err)
	}
	if !strings.Contains(out, "Stop request cleared") {
		t.Errorf("unexpected output: %s", out)
	}
	if _, err := os.Stat(roots.StopSentinel()); !os.IsNotExist(err) {
		t.Error("stop sentinel should be removed")
	}
}

func TestWorkerResumeWithoutStopIsFine(t *testing.T) {
	scaffold(t)

	if _, err := runCommand(t, "worker", "resume"); err != nil {
		t.Fatalf("resume without sentinel should succeed: %v", err)
	}
}

func TestWorkerRunningEmpty(t *testing.T) {
	scaffold(t)

	out, err := runCommand(t, "worker", "running")
	if err != nil {
		t.Fatalf("worker running: %v", err)
	}
	if !strings.Contains(out, "No running tasks") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestWorkerRunningShowsTasks(t *testing.T) {
	roots := scaffold(t)

	started := time.Now().Add(-2 * time.Minute).UTC().Format(time.RFC3339)
	doc := `[{"id":"task_1","tool":"git","priority":"high","started":"` + started + `"}]`
	if err := os.WriteFile(roots.RunningTasks(), []byte(doc), 0644); err != nil {
		t.Fatalf("seed running tasks: %v", err)
	}

	out, err := runCommand(t, "worker", "running")
	if err != nil {
		t.Fatalf("worker running: %v", err)
	}
	if !strings.Contains(out, "task_1") || !strings.Contains(out, "git") {
		t.Errorf("task missing: %s", out)
	}
	if !strings.Contains(out, "minutes ago") {
		t.Errorf("started should be humanized: %s", out)
	}
}

func TestWorkerRunningJSON(t *testing.T) {
	roots := scaffold(t)

	doc := `[{"id":"task_1","tool":"aider"}]`
	if err := os.WriteFile(roots.RunningTasks(), []byte(doc), 0644); err != nil {
		t.Fatalf("seed running tasks: %v", err)
	}

	out, err := runCommand(t, "worker", "running", "--json")
	if err != nil {
		t.Fatalf("worker running --json: %v", err)
	}
	if !strings.Contains(out, `"tasks"`) || !strings.Contains(out, `"aider"`) {
		t.Errorf("json output missing task: %s", out)
	}
}

// Keep the sentinel name an explicit part of the worker contract.
func TestStopSentinelName(t *testing.T) {
	roots := model.ResolveRoots("/srv/agent", model.DefaultConfig())
	if got := roots.StopSentinel(); !strings.HasSuffix(got, "STOP.HEADLESS") {
		t.Errorf("stop sentinel path = %q", got)
	}
}
