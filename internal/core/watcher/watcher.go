// Package watcher re-runs work when the watched source files change.
package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"sorcerer/internal/shared/observability"
	"sorcerer/internal/shared/util"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// DefaultIgnore keeps generated tests and editor droppings from
// triggering a run.
var DefaultIgnore = []string{"*_test.go", "*.swp", "*~", ".#*"}

// Watcher reports debounced changes of a fixed set of files. Directories
// are watched rather than the files themselves so atomic saves, which
// replace the file, are seen.
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	debounce   time.Duration
	ignore     []glob.Glob
	onChange   func([]string)
	callbackMu sync.Mutex

	targets map[string]bool
	hashes  map[string]string

	pending   map[string]time.Time
	pendingMu sync.Mutex
	timer     *time.Timer
}

func NewWatcher(debounce time.Duration, ignore []string, onChange func([]string)) (*Watcher, error) {
	if onChange == nil {
		return nil, os.ErrInvalid
	}

	compiled := make([]glob.Glob, 0, len(ignore))
	for _, pattern := range ignore {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, g)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsWatcher: fsw,
		debounce:  debounce,
		ignore:    compiled,
		onChange:  onChange,
		targets:   make(map[string]bool),
		hashes:    make(map[string]string),
		pending:   make(map[string]time.Time),
	}, nil
}

// Watch starts watching files. onChange receives their absolute paths.
func (w *Watcher) Watch(files []string) error {
	dirs := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		w.targets[abs] = true
		w.hashes[abs] = fileHash(abs)
		dirs[filepath.Dir(abs)] = true
	}
	for _, dir := range util.SortedStringKeys(dirs) {
		if err := w.fsWatcher.Add(dir); err != nil {
			return err
		}
		slog.Debug("watching directory", "dir", dir)
	}

	go w.run()
	return nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			observability.WatcherEventsTotal.Inc()

			if !w.isTarget(event.Name) {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				w.scheduleChange(filepath.Clean(event.Name))
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) isTarget(path string) bool {
	path = filepath.Clean(path)
	if !w.targets[path] {
		return false
	}
	base := filepath.Base(path)
	for _, g := range w.ignore {
		if g.Match(base) {
			return false
		}
	}
	return true
}

func (w *Watcher) scheduleChange(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[path] = time.Now()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flushChanges)
}

// flushChanges hands the pending paths whose content actually changed to
// onChange. Calls are serialized.
func (w *Watcher) flushChanges() {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]time.Time)
	w.pendingMu.Unlock()

	w.callbackMu.Lock()
	defer w.callbackMu.Unlock()

	changed := paths[:0]
	for _, path := range paths {
		h := fileHash(path)
		if h == "" || h == w.hashes[path] {
			continue
		}
		w.hashes[path] = h
		changed = append(changed, path)
	}
	if len(changed) > 0 {
		sort.Strings(changed)
		w.onChange(changed)
	}
}

func (w *Watcher) Close() error {
	w.pendingMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pendingMu.Unlock()
	return w.fsWatcher.Close()
}

func fileHash(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return util.ContentHash(string(data))
}
