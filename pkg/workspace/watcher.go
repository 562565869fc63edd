package workspace

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// defaultStability is how long a file must sit quiet before its change
// is applied. Editors write in bursts.
const defaultStability = 100 * time.Millisecond

// Watcher hot-reloads a Directives set as its directory changes.
// Agents consult the set at the start of every turn, so a reload
// applies from the next turn; a turn in flight keeps the directive it
// started with.
type Watcher struct {
	watcher    *fsnotify.Watcher
	directives *Directives
	stability  time.Duration

	done     chan struct{}
	stopOnce sync.Once

	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

// NewWatcher creates a watcher for the directory the directives were
// loaded from.
func NewWatcher(directives *Directives) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		watcher:    fw,
		directives: directives,
		stability:  defaultStability,
		done:       make(chan struct{}),
		timers:     make(map[string]*time.Timer),
	}, nil
}

// Start begins watching. The directives directory must exist.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.directives.Dir()); err != nil {
		return fmt.Errorf("failed to watch directives directory: %w", err)
	}

	go w.eventLoop()

	log.Info().
		Str("dir", w.directives.Dir()).
		Msg("Directive watcher started")

	return nil
}

// Stop halts the watcher. Safe to call more than once.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.timersMu.Lock()
	for _, timer := range w.timers {
		timer.Stop()
	}
	clear(w.timers)
	w.timersMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Directive watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !isDirectiveFile(filepath.Base(event.Name)) {
		return
	}
	w.debounce(event)
}

// debounce coalesces rapid events on the same file.
func (w *Watcher) debounce(event fsnotify.Event) {
	w.timersMu.Lock()
	defer w.timersMu.Unlock()

	if timer, exists := w.timers[event.Name]; exists {
		timer.Stop()
	}

	eventCopy := event
	w.timers[event.Name] = time.AfterFunc(w.stability, func() {
		w.timersMu.Lock()
		delete(w.timers, eventCopy.Name)
		w.timersMu.Unlock()

		select {
		case <-w.done:
			return
		default:
			w.apply(eventCopy)
		}
	})
}

func (w *Watcher) apply(event fsnotify.Event) {
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create,
		event.Op&fsnotify.Write == fsnotify.Write:
		if err := w.directives.loadFile(event.Name); err != nil {
			log.Error().
				Err(err).
				Str("path", event.Name).
				Msg("Failed to reload directive")
			return
		}
		log.Info().
			Str("agent", agentName(event.Name)).
			Msg("Directive reloaded")

	case event.Op&fsnotify.Remove == fsnotify.Remove,
		event.Op&fsnotify.Rename == fsnotify.Rename:
		// A rename's new name arrives as its own create event.
		w.directives.remove(event.Name)
		log.Info().
			Str("agent", agentName(event.Name)).
			Msg("Directive removed")
	}
}
