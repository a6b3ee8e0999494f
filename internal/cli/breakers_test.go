package cli

import (
	"os"
	"strings"
	"testing"

	"github.com/msageha/overseer/internal/breaker"
	"github.com/msageha/overseer/internal/model"
)

func seedBreakers(t *testing.T, roots model.Roots, doc string) {
	t.Helper()
	if err := os.WriteFile(roots.Breakers(), []byte(doc), 0644); err != nil {
		t.Fatalf("seed breakers: %v", err)
	}
}

func TestBreakersListEmpty(t *testing.T) {
	scaffold(t)

	out, err := runCommand(t, "breakers", "list")
	if err != nil {
		t.Fatalf("breakers list: %v", err)
	}
	if !strings.Contains(out, "No breakers recorded") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestBreakersListShowsEntries(t *testing.T) {
	roots := scaffold(t)
	seedBreakers(t, roots, `{
		"git":   {"state": "open", "fails": 5, "until": "2026-08-23T10:00:00Z"},
		"aider": {"state": "closed", "fails": 0, "until": ""}
	}`)

	out, err := runCommand(t, "breakers", "list")
	if err != nil {
		t.Fatalf("breakers list: %v", err)
	}
	if !strings.Contains(out, "git") || !strings.Contains(out, "open") {
		t.Errorf("open breaker missing: %s", out)
	}
	if !strings.Contains(out, "aider") || !strings.Contains(out, "closed") {
		t.Errorf("closed breaker missing: %s", out)
	}
}

func TestBreakersListJSON(t *testing.T) {
	roots := scaffold(t)
	seedBreakers(t, roots, `{"git": {"state": "open", "fails": 3, "until": ""}}`)

	out, err := runCommand(t, "breakers", "list", "--json")
	if err != nil {
		t.Fatalf("breakers list --json: %v", err)
	}
	if !strings.Contains(out, `"breakers"`) || !strings.Contains(out, `"open"`) {
		t.Errorf("json output missing breaker: %s", out)
	}
}

func TestBreakersForceClose(t *testing.T) {
	roots := scaffold(t)
	seedBreakers(t, roots, `{"git": {"state": "open", "fails": 5, "until": "2026-08-23T10:00:00Z"}}`)

	out, err := runCommand(t, "breakers", "force-close", "git")
	if err != nil {
		t.Fatalf("breakers force-close: %v", err)
	}
	if !strings.Contains(out, "Closed 1 breaker(s)") {
		t.Errorf("unexpected output: %s", out)
	}

	entries := breaker.NewStore(roots.Breakers()).Read()
	if entries["git"].State != model.BreakerClosed || entries["git"].Fails != 0 {
		t.Errorf("breaker not reset: %+v", entries["git"])
	}
}

func TestBreakersForceCloseUnknownTool(t *testing.T) {
	roots := scaffold(t)
	seedBreakers(t, roots, `{"git": {"state": "open", "fails": 5, "until": ""}}`)

	out, err := runCommand(t, "breakers", "force-close", "codex")
	if err != nil {
		t.Fatalf("force-close unknown tool: %v", err)
	}
	if !strings.Contains(out, "Closed 0 breaker(s)") {
		t.Errorf("unknown tools close nothing: %s", out)
	}
}
