package template

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/overseer/internal/model"
)

func newTestCatalog(t *testing.T) (*Catalog, model.Roots) {
	t.Helper()
	roots := model.ResolveRoots(t.TempDir(), model.DefaultConfig())
	cat, quarantined := NewCatalog(roots)
	require.Empty(t, quarantined)
	return cat, roots
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewCatalog_SeedsBuiltins(t *testing.T) {
	cat, _ := newTestCatalog(t)

	all := cat.List()
	require.Len(t, all, 4)

	fetch, ok := cat.Get("Git: fetch + prune", "")
	require.True(t, ok)
	assert.Equal(t, model.SourceBuiltin, fetch.Source)
	assert.Equal(t, "git", fetch.Task.Tool)
	assert.Equal(t, []string{"fetch", "--all", "--prune"}, fetch.Task.Args)

	gate, ok := cat.Get("Quality Gate", model.DefaultCategory)
	require.True(t, ok)
	assert.Equal(t, "pwsh", gate.Task.Tool)
	assert.Equal(t, 1800, gate.Task.TimeoutSec)

	aider, ok := cat.Get("Aider: refactor stub", "")
	require.True(t, ok)
	assert.Equal(t, []string{"--yes"}, aider.Task.Flags)
	assert.Equal(t, 1200, aider.Task.TimeoutSec)
}

func TestLoadExternal_ListShape(t *testing.T) {
	cat, _ := newTestCatalog(t)

	path := writeDoc(t, t.TempDir(), "templates.json", `[
		{"name": "Custom", "task": {"tool": "git", "args": ["status"]}},
		{"task": {"tool": "pwsh", "flags": ["-NoProfile"]}}
	]`)

	ch, unsub := cat.Subscribe()
	defer unsub()

	n, err := cat.LoadExternal(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	select {
	case <-ch:
	default:
		t.Fatal("expected a change signal after external load")
	}

	custom, ok := cat.Get("Custom", "")
	require.True(t, ok)
	assert.Equal(t, model.SourceExternal, custom.Source)
	assert.Equal(t, "git", custom.Task.Tool)

	// Entries without a name get a positional fallback.
	fallback, ok := cat.Get("Template 2", "")
	require.True(t, ok)
	assert.Equal(t, "pwsh", fallback.Task.Tool)
}

func TestLoadExternal_DictShape(t *testing.T) {
	cat, _ := newTestCatalog(t)

	path := writeDoc(t, t.TempDir(), "templates.json", `{
		"Git Fetch": {"tool": "git", "args": ["fetch", "--all"]},
		"Python": {"tool": "python", "args": ["-m", "pip", "list"]}
	}`)

	n, err := cat.LoadExternal(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	py, ok := cat.Get("Python", "")
	require.True(t, ok)
	assert.Equal(t, []string{"-m", "pip", "list"}, py.Task.Args)
	assert.Equal(t, model.DefaultCategory, py.Category)
}

func TestLoadExternal_WrapperShape(t *testing.T) {
	cat, _ := newTestCatalog(t)

	path := writeDoc(t, t.TempDir(), "templates.json", `{
		"templates": [
			{"name": "Deploy", "category": "Ops", "description": "ship it", "task": {"tool": "pwsh"}}
		]
	}`)

	n, err := cat.LoadExternal(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	deploy, ok := cat.Get("Deploy", "Ops")
	require.True(t, ok)
	assert.Equal(t, "ship it", deploy.Description)
	assert.Equal(t, model.SourceExternal, deploy.Source)
}

func TestLoadExternal_WholesaleReplace(t *testing.T) {
	cat, _ := newTestCatalog(t)
	dir := t.TempDir()

	first := writeDoc(t, dir, "first.json", `{
		"Keep": {"tool": "git"},
		"Drop": {"tool": "python"}
	}`)
	_, err := cat.LoadExternal(first)
	require.NoError(t, err)
	_, ok := cat.Get("Drop", "")
	require.True(t, ok)

	second := writeDoc(t, dir, "second.json", `{"Keep": {"tool": "git"}}`)
	_, err = cat.LoadExternal(second)
	require.NoError(t, err)

	_, ok = cat.Get("Drop", "")
	assert.False(t, ok, "reload should drop templates removed from the source file")
	_, ok = cat.Get("Keep", "")
	assert.True(t, ok)
}

func TestLoadExternal_BadDocuments(t *testing.T) {
	cat, _ := newTestCatalog(t)
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"truncated", `{"name": "x"`},
		{"scalar", `42`},
		{"bad task value", `{"X": "not an object"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeDoc(t, dir, tt.name+".json", tt.content)
			_, err := cat.LoadExternal(path)
			assert.Error(t, err)
		})
	}

	_, err := cat.LoadExternal(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestGet_CustomWinsOverBuiltin(t *testing.T) {
	cat, _ := newTestCatalog(t)

	err := cat.Save(model.Template{
		Name:     "Git: fetch + prune",
		Category: model.DefaultCategory,
		Task:     model.Envelope{Tool: "git", Args: []string{"fetch"}},
	})
	require.NoError(t, err)

	got, ok := cat.Get("Git: fetch + prune", "")
	require.True(t, ok)
	assert.Equal(t, model.SourceCustom, got.Source)
	assert.Equal(t, []string{"fetch"}, got.Task.Args)

	// The shadowed builtin stays in its tier: deleting the custom override
	// surfaces it again.
	require.NoError(t, cat.Delete("Git: fetch + prune", ""))
	got, ok = cat.Get("Git: fetch + prune", "")
	require.True(t, ok)
	assert.Equal(t, model.SourceBuiltin, got.Source)
	assert.Equal(t, []string{"fetch", "--all", "--prune"}, got.Task.Args)
}

func TestSave_UpsertReplacesNotDuplicates(t *testing.T) {
	cat, _ := newTestCatalog(t)

	tpl := model.Template{
		Name:        "Nightly",
		Category:    "Ops",
		Description: "v1",
		Task:        model.Envelope{Tool: "git", Args: []string{"gc"}},
	}
	require.NoError(t, cat.Save(tpl))
	tpl.Description = "v2"
	require.NoError(t, cat.Save(tpl))

	count := 0
	for _, got := range cat.List() {
		if got.Name == "Nightly" {
			count++
			assert.Equal(t, "v2", got.Description)
		}
	}
	assert.Equal(t, 1, count)
}

func TestSave_Validation(t *testing.T) {
	cat, _ := newTestCatalog(t)

	tests := []struct {
		name string
		tpl  model.Template
	}{
		{"no name", model.Template{Task: model.Envelope{Tool: "git"}}},
		{"no tool", model.Template{Name: "X"}},
		{"unknown tool", model.Template{Name: "X", Task: model.Envelope{Tool: "rm"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cat.Save(tt.tpl)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSave_PersistsAcrossReload(t *testing.T) {
	cat, roots := newTestCatalog(t)

	require.NoError(t, cat.Save(model.Template{
		Name: "Nightly",
		Task: model.Envelope{Tool: "git", Args: []string{"gc"}},
	}))

	reloaded, quarantined := NewCatalog(roots)
	require.Empty(t, quarantined)

	got, ok := reloaded.Get("Nightly", "")
	require.True(t, ok)
	assert.Equal(t, model.SourceCustom, got.Source)
	assert.Equal(t, model.DefaultCategory, got.Category)
	assert.Equal(t, []string{"gc"}, got.Task.Args)
}

func TestDelete_CustomOnly(t *testing.T) {
	cat, roots := newTestCatalog(t)

	err := cat.Delete("Git: status -sb", "")
	assert.ErrorIs(t, err, ErrNotPermitted)

	path := writeDoc(t, t.TempDir(), "ext.json", `{"Ext": {"tool": "git"}}`)
	_, err = cat.LoadExternal(path)
	require.NoError(t, err)
	err = cat.Delete("Ext", "")
	assert.ErrorIs(t, err, ErrNotPermitted)

	err = cat.Delete("Nope", "")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, cat.Save(model.Template{
		Name: "Mine",
		Task: model.Envelope{Tool: "git"},
	}))
	require.NoError(t, cat.Delete("Mine", ""))
	_, ok := cat.Get("Mine", "")
	assert.False(t, ok)

	// The removal is persisted, not just in memory.
	reloaded, _ := NewCatalog(roots)
	_, ok = reloaded.Get("Mine", "")
	assert.False(t, ok)
}

func TestGrouped_Ordering(t *testing.T) {
	cat, _ := newTestCatalog(t)

	require.NoError(t, cat.Save(model.Template{
		Name: "zz cleanup", Category: "ops",
		Task: model.Envelope{Tool: "git"},
	}))
	require.NoError(t, cat.Save(model.Template{
		Name: "AA deploy", Category: "build",
		Task: model.Envelope{Tool: "pwsh"},
	}))

	groups := cat.Grouped()
	require.Len(t, groups, 3)

	// Case-insensitive category order.
	assert.Equal(t, "build", groups[0].Category)
	assert.Equal(t, model.DefaultCategory, groups[1].Category)
	assert.Equal(t, "ops", groups[2].Category)

	names := make([]string, 0, len(groups[1].Templates))
	for _, tpl := range groups[1].Templates {
		names = append(names, tpl.Name)
	}
	assert.Equal(t, []string{
		"Aider: refactor stub",
		"Git: fetch + prune",
		"Git: status -sb",
		"Quality Gate",
	}, names)
}

func TestGrouped_CustomShadowsForSameKey(t *testing.T) {
	cat, _ := newTestCatalog(t)

	require.NoError(t, cat.Save(model.Template{
		Name:     "Quality Gate",
		Category: model.DefaultCategory,
		Task:     model.Envelope{Tool: "python", Args: []string{"-m", "quality"}},
	}))

	groups := cat.Grouped()
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Templates, 4)

	for _, tpl := range groups[0].Templates {
		if tpl.Name == "Quality Gate" {
			assert.Equal(t, model.SourceCustom, tpl.Source)
			assert.Equal(t, "python", tpl.Task.Tool)
		}
	}
}

func TestNewCatalog_CorruptCustomDocQuarantined(t *testing.T) {
	roots := model.ResolveRoots(t.TempDir(), model.DefaultConfig())
	require.NoError(t, os.MkdirAll(roots.State, 0755))
	require.NoError(t, os.WriteFile(roots.CustomTemplates(), []byte("{not json"), 0644))

	cat, quarantined := NewCatalog(roots)
	assert.Contains(t, quarantined, "CustomTemplates.json.")

	// With no backup to restore, the catalog starts with builtins only and
	// the bad bytes are kept for inspection.
	assert.Len(t, cat.List(), 4)
	_, err := os.Stat(roots.CustomTemplates())
	assert.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(filepath.Join(roots.State, "quarantine"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "CustomTemplates.json.")
}

func TestNewCatalog_CorruptCustomDocRestoredFromBackup(t *testing.T) {
	roots := model.ResolveRoots(t.TempDir(), model.DefaultConfig())
	require.NoError(t, os.MkdirAll(roots.State, 0755))

	backup, err := json.Marshal(model.CustomTemplatesDoc{Templates: []model.Template{
		{Name: "Survivor", Task: model.Envelope{Tool: "git", Args: []string{"status"}}},
	}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(roots.CustomTemplates()+".bak", backup, 0644))
	require.NoError(t, os.WriteFile(roots.CustomTemplates(), []byte("{not json"), 0644))

	cat, quarantined := NewCatalog(roots)
	assert.Contains(t, quarantined, "CustomTemplates.json.")

	// The previous good write comes back alongside the builtins.
	tpl, ok := cat.Get("Survivor", "")
	require.True(t, ok)
	assert.Equal(t, model.SourceCustom, tpl.Source)
	assert.Len(t, cat.List(), 5)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	cat, _ := newTestCatalog(t)

	ch, unsub := cat.Subscribe()
	require.NoError(t, cat.Save(model.Template{
		Name: "One", Task: model.Envelope{Tool: "git"},
	}))

	select {
	case _, open := <-ch:
		assert.True(t, open)
	default:
		t.Fatal("expected a change signal after save")
	}

	unsub()
	// Mutations after unsubscribe must not panic on the closed channel.
	require.NoError(t, cat.Save(model.Template{
		Name: "Two", Task: model.Envelope{Tool: "git"},
	}))
	_, open := <-ch
	assert.False(t, open)
}
