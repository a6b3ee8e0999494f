// Package template merges built-in, externally loaded, and operator-authored
// task templates into one addressable catalog with deterministic override
// precedence: custom beats external beats builtin for the same (name,
// category) key, while the shadowed records stay in their own tiers.
package template

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/msageha/overseer/internal/jsonfile"
	"github.com/msageha/overseer/internal/model"
)

var (
	// ErrNotPermitted is returned when a delete targets a builtin or
	// external record. Only custom records may be removed.
	ErrNotPermitted = errors.New("not permitted")
	// ErrNotFound is returned when no tier holds the requested key.
	ErrNotFound = errors.New("template not found")
	// ErrValidation is returned when a template fails validation.
	ErrValidation = errors.New("validation failed")
)

// Group is one category of templates in display order.
type Group struct {
	Category  string           `json:"category"`
	Templates []model.Template `json:"templates"`
}

// Catalog holds the three template tiers. The custom tier is persisted to a
// single JSON document under the state root; every mutation rewrites the
// whole document. The builtin and external tiers live only in memory.
type Catalog struct {
	mu       sync.RWMutex
	path     string
	stateDir string
	builtin  map[model.TemplateKey]model.Template
	external map[model.TemplateKey]model.Template
	custom   map[model.TemplateKey]model.Template
	subs     []chan struct{}
}

// NewCatalog seeds the builtin tier and loads the persisted custom tier.
// A corrupt custom document is quarantined and treated as empty rather than
// blocking startup; the quarantine path is returned so the caller can log it.
func NewCatalog(roots model.Roots) (*Catalog, string) {
	c := &Catalog{
		path:     roots.CustomTemplates(),
		stateDir: roots.State,
		builtin:  builtinTier(),
		external: make(map[model.TemplateKey]model.Template),
		custom:   make(map[model.TemplateKey]model.Template),
	}
	quarantined := c.loadCustom()
	return c, quarantined
}

// builtinTier returns the seeded base templates.
func builtinTier() map[model.TemplateKey]model.Template {
	seed := []model.Template{
		{
			Name:     "Git: fetch + prune",
			Category: model.DefaultCategory,
			Task:     model.Envelope{Tool: "git", Args: []string{"fetch", "--all", "--prune"}},
		},
		{
			Name:     "Git: status -sb",
			Category: model.DefaultCategory,
			Task:     model.Envelope{Tool: "git", Args: []string{"status", "-sb"}},
		},
		{
			Name:     "Quality Gate",
			Category: model.DefaultCategory,
			Task: model.Envelope{
				Tool:       "pwsh",
				Args:       []string{"-NoProfile", "-File", "scripts/run_quality.ps1"},
				TimeoutSec: 1800,
			},
		},
		{
			Name:     "Aider: refactor stub",
			Category: model.DefaultCategory,
			Task: model.Envelope{
				Tool:       "aider",
				Flags:      []string{"--yes"},
				Prompt:     "Refactor module for better dependency injection.",
				TimeoutSec: 1200,
			},
		},
	}
	tier := make(map[model.TemplateKey]model.Template, len(seed))
	for _, t := range seed {
		t.Source = model.SourceBuiltin
		tier[t.Key()] = t
	}
	return tier
}

// loadCustom reads the persisted custom tier. A corrupt document is moved to
// quarantine and the previous good write (the .bak sibling) is restored when
// it still parses; the returned string is the quarantine destination, or ""
// when nothing was quarantined.
func (c *Catalog) loadCustom() string {
	quarantined := ""
	var doc model.CustomTemplatesDoc
	err := jsonfile.Load(c.path, &doc)
	if errors.Is(err, os.ErrNotExist) {
		return ""
	}
	if err != nil {
		moved, qerr := jsonfile.Quarantine(c.stateDir, c.path)
		if qerr != nil {
			return ""
		}
		quarantined = moved
		doc = model.CustomTemplatesDoc{}
		if jsonfile.RestoreFromBackup(c.path) != nil || jsonfile.Load(c.path, &doc) != nil {
			return quarantined
		}
	}
	for _, t := range doc.Templates {
		t.Source = model.SourceCustom
		if t.Category == "" {
			t.Category = model.DefaultCategory
		}
		c.custom[t.Key()] = t
	}
	return quarantined
}

// Get resolves a template by key, custom tier first, then external, then
// builtin.
func (c *Catalog) Get(name, category string) (model.Template, bool) {
	if category == "" {
		category = model.DefaultCategory
	}
	key := model.TemplateKey{Name: name, Category: category}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, tier := range []map[model.TemplateKey]model.Template{c.custom, c.external, c.builtin} {
		if t, ok := tier[key]; ok {
			return t, true
		}
	}
	return model.Template{}, false
}

// List returns every visible template sorted by category then name
// (case-insensitive). Where custom shadows another tier for a key, only the
// custom record appears.
func (c *Catalog) List() []model.Template {
	c.mu.RLock()
	merged := c.mergedLocked()
	c.mu.RUnlock()

	out := make([]model.Template, 0, len(merged))
	for _, t := range merged {
		out = append(out, t)
	}
	sortTemplates(out)
	return out
}

// sortTemplates orders by category then name, case-insensitively, with a raw
// comparison as the tie break so case-variant names stay deterministic.
func sortTemplates(ts []model.Template) {
	sort.Slice(ts, func(i, j int) bool {
		if c := compareFold(ts[i].Category, ts[j].Category); c != 0 {
			return c < 0
		}
		return compareFold(ts[i].Name, ts[j].Name) < 0
	})
}

func compareFold(a, b string) int {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return strings.Compare(la, lb)
	}
	return strings.Compare(a, b)
}

// Grouped partitions the visible templates by category. Categories and the
// templates within each are sorted case-insensitively by name, giving a
// stable display order.
func (c *Catalog) Grouped() []Group {
	byCategory := make(map[string][]model.Template)
	for _, t := range c.List() {
		byCategory[t.Category] = append(byCategory[t.Category], t)
	}

	categories := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		categories = append(categories, cat)
	}
	sort.Slice(categories, func(i, j int) bool {
		return compareFold(categories[i], categories[j]) < 0
	})

	groups := make([]Group, 0, len(categories))
	for _, cat := range categories {
		groups = append(groups, Group{Category: cat, Templates: byCategory[cat]})
	}
	return groups
}

// mergedLocked overlays the tiers by key, later tiers winning.
func (c *Catalog) mergedLocked() map[model.TemplateKey]model.Template {
	merged := make(map[model.TemplateKey]model.Template, len(c.builtin)+len(c.external)+len(c.custom))
	for k, t := range c.builtin {
		merged[k] = t
	}
	for k, t := range c.external {
		merged[k] = t
	}
	for k, t := range c.custom {
		merged[k] = t
	}
	return merged
}

// Save upserts a custom record and rewrites the persisted document. A custom
// record with the same key is replaced; builtin/external records with the
// same key are left in their tiers (custom wins for lookup).
func (c *Catalog) Save(t model.Template) error {
	if t.Name == "" {
		return fmt.Errorf("%w: template name is required", ErrValidation)
	}
	if t.Task.Tool == "" {
		return fmt.Errorf("%w: template task needs a tool", ErrValidation)
	}
	if !model.IsKnownTool(t.Task.Tool) {
		return fmt.Errorf("%w: unknown tool %q", ErrValidation, t.Task.Tool)
	}
	if t.Category == "" {
		t.Category = model.DefaultCategory
	}
	t.Source = model.SourceCustom

	c.mu.Lock()
	defer c.mu.Unlock()
	c.custom[t.Key()] = t
	if err := c.persistLocked(); err != nil {
		return err
	}
	c.notifyLocked()
	return nil
}

// Delete removes a custom record. Builtin and external records are refused
// with ErrNotPermitted; an unknown key is ErrNotFound.
func (c *Catalog) Delete(name, category string) error {
	if category == "" {
		category = model.DefaultCategory
	}
	key := model.TemplateKey{Name: name, Category: category}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.custom[key]; !ok {
		if _, shadowed := c.external[key]; shadowed {
			return fmt.Errorf("%w: %q is an external template", ErrNotPermitted, name)
		}
		if _, shadowed := c.builtin[key]; shadowed {
			return fmt.Errorf("%w: %q is a builtin template", ErrNotPermitted, name)
		}
		return fmt.Errorf("%w: %s/%s", ErrNotFound, category, name)
	}
	delete(c.custom, key)
	if err := c.persistLocked(); err != nil {
		return err
	}
	c.notifyLocked()
	return nil
}

// LoadExternal replaces the entire external tier with the templates in the
// given document. Reloading drops templates removed from the source file.
// Returns the number of templates loaded.
func (c *Catalog) LoadExternal(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read template document: %w", err)
	}
	loaded, err := parseExternalDoc(content)
	if err != nil {
		return 0, fmt.Errorf("parse template document %s: %w", path, err)
	}

	tier := make(map[model.TemplateKey]model.Template, len(loaded))
	for _, t := range loaded {
		tier[t.Key()] = t
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.external = tier
	c.notifyLocked()
	return len(loaded), nil
}

// Subscribe returns a channel that receives a signal after each catalog
// mutation, plus an unsubscribe func. Signals coalesce: a slow receiver sees
// at least one signal for any burst of changes, not one per change.
func (c *Catalog) Subscribe() (<-chan struct{}, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan struct{}, 1)
	c.subs = append(c.subs, ch)

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, sub := range c.subs {
			if sub == ch {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

func (c *Catalog) notifyLocked() {
	for _, ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// persistLocked rewrites the whole custom document, sorted for a stable
// on-disk order.
func (c *Catalog) persistLocked() error {
	doc := model.CustomTemplatesDoc{Templates: make([]model.Template, 0, len(c.custom))}
	for _, t := range c.custom {
		doc.Templates = append(doc.Templates, t)
	}
	sortTemplates(doc.Templates)
	if err := jsonfile.AtomicWrite(c.path, doc); err != nil {
		return fmt.Errorf("persist custom templates: %w", err)
	}
	return nil
}

// externalEntry is one record in the list and wrapper document shapes.
type externalEntry struct {
	Name        string         `json:"name"`
	Category    string         `json:"category"`
	Description string         `json:"description"`
	Task        model.Envelope `json:"task"`
}

// parseExternalDoc accepts the three supported document shapes: a JSON array
// of {name, task, ...} entries, a {templates: [...]} wrapper, or a JSON
// object mapping name to task.
func parseExternalDoc(content []byte) ([]model.Template, error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return nil, errors.New("empty document")
	}

	switch trimmed[0] {
	case '[':
		var entries []externalEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, err
		}
		return fromEntries(entries), nil
	case '{':
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return nil, err
		}
		if raw, ok := probe["templates"]; ok && len(bytes.TrimSpace(raw)) > 0 && bytes.TrimSpace(raw)[0] == '[' {
			var entries []externalEntry
			if err := json.Unmarshal(raw, &entries); err != nil {
				return nil, err
			}
			return fromEntries(entries), nil
		}
		// Name-keyed object: each value is a bare task. Keys are sorted so
		// repeated loads of the same document produce the same order.
		names := make([]string, 0, len(probe))
		for name := range probe {
			names = append(names, name)
		}
		sort.Strings(names)
		out := make([]model.Template, 0, len(names))
		for _, name := range names {
			var task model.Envelope
			if err := json.Unmarshal(probe[name], &task); err != nil {
				return nil, fmt.Errorf("template %q: %w", name, err)
			}
			out = append(out, model.Template{
				Name:     name,
				Category: model.DefaultCategory,
				Task:     task,
				Source:   model.SourceExternal,
			})
		}
		return out, nil
	}
	return nil, errors.New("unsupported document shape (want array or object)")
}

func fromEntries(entries []externalEntry) []model.Template {
	out := make([]model.Template, 0, len(entries))
	for i, e := range entries {
		name := e.Name
		if name == "" {
			name = fmt.Sprintf("Template %d", i+1)
		}
		category := e.Category
		if category == "" {
			category = model.DefaultCategory
		}
		out = append(out, model.Template{
			Name:        name,
			Category:    category,
			Description: e.Description,
			Task:        e.Task,
			Source:      model.SourceExternal,
		})
	}
	return out
}
