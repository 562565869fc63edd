// Package workspace provides file-based agent directives: one markdown
// file per agent in a flat directory, loaded at startup and optionally
// hot-reloaded by the Watcher. At build time a workspace directive is
// the lowest priority source, after inline and per-file config
// entries; once the team is running, a workspace entry for an agent
// overrides its static directive on the next turn.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// maxDirectiveSize caps a single directive file (1MB).
const maxDirectiveSize = 1 * 1024 * 1024

// Directives is the set of agent directives loaded from a directory.
// The key for <dir>/sql_analyst.md is "sql_analyst".
type Directives struct {
	dir string

	mu  sync.RWMutex
	set map[string]string
}

// LoadDirectives reads every *.md file in dir. A missing directory
// yields an empty set, not an error; unreadable or oversized files are
// skipped with a warning so one bad file cannot block startup.
func LoadDirectives(dir string) (*Directives, error) {
	d := &Directives{
		dir: dir,
		set: make(map[string]string),
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read directives directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isDirectiveFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := d.loadFile(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Skipping directive file")
		}
	}

	log.Debug().
		Str("dir", dir).
		Int("count", d.Count()).
		Msg("Directives loaded")

	return d, nil
}

// Lookup returns the directive for the named agent.
func (d *Directives) Lookup(name string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	directive, ok := d.set[name]
	return directive, ok
}

// Names returns the agent names with directives, sorted.
func (d *Directives) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.set))
	for name := range d.set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of loaded directives.
func (d *Directives) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.set)
}

// Dir returns the directory this set was loaded from.
func (d *Directives) Dir() string { return d.dir }

// loadFile reads one directive file into the set.
func (d *Directives) loadFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() > maxDirectiveSize {
		return fmt.Errorf("file size %d exceeds maximum %d", info.Size(), maxDirectiveSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	name := agentName(path)
	d.mu.Lock()
	d.set[name] = strings.TrimSpace(string(data))
	d.mu.Unlock()

	return nil
}

// remove drops the entry for a deleted directive file.
func (d *Directives) remove(path string) {
	name := agentName(path)
	d.mu.Lock()
	delete(d.set, name)
	d.mu.Unlock()
}

// agentName maps a directive path to its agent name.
func agentName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".md")
}

// isDirectiveFile reports whether a file name is a loadable directive.
// Dotfiles and editor droppings are not.
func isDirectiveFile(name string) bool {
	return strings.HasSuffix(name, ".md") && !strings.HasPrefix(name, ".")
}
