package router

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Action is one named operation a skill advertises. Payload, when set, is
// the literal event value sent to the skill for that action.
type Action struct {
	Name    string         `yaml:"name"`
	Payload map[string]any `yaml:"payload,omitempty"`
}

// UnmarshalYAML accepts both the shorthand scalar form ("BookFlight")
// and the full mapping form with a payload.
func (a *Action) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&a.Name)
	}
	type plain Action
	return value.Decode((*plain)(a))
}

// PayloadJSON returns the action's payload encoded as JSON, or nil when
// the action carries none.
func (a Action) PayloadJSON() (json.RawMessage, error) {
	if a.Payload == nil {
		return nil, nil
	}
	raw, err := json.Marshal(a.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload for action %q: %w", a.Name, err)
	}
	return raw, nil
}

// Skill describes one skill host: its stable ID, where to reach it, and
// the actions it supports. Read-only during a conversation's lifetime.
type Skill struct {
	ID       string   `yaml:"id"`
	Endpoint string   `yaml:"endpoint"`
	Actions  []Action `yaml:"actions"`
}

// ActionNames returns the advertised action names in declared order.
func (s Skill) ActionNames() []string {
	names := make([]string, 0, len(s.Actions))
	for _, a := range s.Actions {
		names = append(names, a.Name)
	}
	return names
}

// FindAction returns the named action.
func (s Skill) FindAction(name string) (Action, bool) {
	for _, a := range s.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return Action{}, false
}

type catalogFile struct {
	Skills []Skill `yaml:"skills"`
}

// Catalog loads and optionally hot-reloads skill descriptors from a YAML
// file.
type Catalog struct {
	path string

	mu     sync.RWMutex
	skills []Skill
}

// NewCatalog creates a catalog backed by the given YAML file.
func NewCatalog(path string) *Catalog {
	return &Catalog{path: path}
}

// Load parses the catalog file, replacing the current skill set.
func (c *Catalog) Load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read catalog %q: %w", c.path, err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse catalog %q: %w", c.path, err)
	}

	seen := make(map[string]bool)
	for _, s := range f.Skills {
		if s.ID == "" {
			return fmt.Errorf("catalog %q: skill with empty id", c.path)
		}
		if seen[s.ID] {
			return fmt.Errorf("catalog %q: duplicate skill id %q", c.path, s.ID)
		}
		seen[s.ID] = true
	}

	c.mu.Lock()
	c.skills = f.Skills
	c.mu.Unlock()
	return nil
}

// Skills returns the configured skills in declared order.
func (c *Catalog) Skills() []Skill {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Skill, len(c.skills))
	copy(out, c.skills)
	return out
}

// IDs returns the configured skill IDs in declared order.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.skills))
	for _, s := range c.skills {
		ids = append(ids, s.ID)
	}
	return ids
}

// Find returns the skill with the given ID.
func (c *Catalog) Find(id string) (Skill, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.skills {
		if s.ID == id {
			return s, true
		}
	}
	return Skill{}, false
}

// SkillSource provides the current skill set to the routing dialog.
// Catalog implements it with hot reload; SkillList serves a fixed set.
type SkillSource interface {
	Skills() []Skill
	Find(id string) (Skill, bool)
}

// SkillList is a fixed SkillSource.
type SkillList []Skill

// Skills implements SkillSource.
func (l SkillList) Skills() []Skill { return l }

// Find implements SkillSource.
func (l SkillList) Find(id string) (Skill, bool) {
	for _, s := range l {
		if s.ID == id {
			return s, true
		}
	}
	return Skill{}, false
}

// WatchAndReload watches the catalog file for changes and reloads. This
// blocks until the done channel is closed.
func (c *Catalog) WatchAndReload(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		return fmt.Errorf("watch dir %q: %w", filepath.Dir(c.path), err)
	}

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) &&
				filepath.Base(event.Name) == filepath.Base(c.path) {
				c.Load()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
