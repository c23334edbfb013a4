package cards

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/fsnotify/fsnotify"
)

// Loader loads and optionally hot-reloads adaptive card templates from
// JSON files. Card names are the file names without extension.
type Loader struct {
	dir string

	mu    sync.RWMutex
	cards map[string]*template.Template
}

// NewLoader creates a card loader for the given directory.
func NewLoader(dir string) *Loader {
	return &Loader{
		dir:   dir,
		cards: make(map[string]*template.Template),
	}
}

// LoadAll loads all .json files from the configured directory.
func (l *Loader) LoadAll() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("read cards dir %q: %w", l.dir, err)
	}

	result := make(map[string]*template.Template)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(l.dir, entry.Name())
		name := strings.TrimSuffix(entry.Name(), ".json")
		tmpl, err := l.loadFile(name, path)
		if err != nil {
			return fmt.Errorf("load %q: %w", path, err)
		}
		result[name] = tmpl
	}

	l.mu.Lock()
	l.cards = result
	l.mu.Unlock()

	return nil
}

func (l *Loader) loadFile(name, path string) (*template.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tmpl, err := template.New(name).Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse card template: %w", err)
	}
	return tmpl, nil
}

// get returns a loaded card template by name.
func (l *Loader) get(name string) (*template.Template, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tmpl, ok := l.cards[name]
	return tmpl, ok
}

// Names returns the loaded card names.
func (l *Loader) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.cards))
	for name := range l.cards {
		names = append(names, name)
	}
	return names
}

// WatchAndReload starts watching the cards directory for changes and
// reloads. This blocks until the done channel is closed.
func (l *Loader) WatchAndReload(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", l.dir, err)
	}

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if filepath.Ext(event.Name) == ".json" {
					l.LoadAll()
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
