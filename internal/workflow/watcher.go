package workflow

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"condo-manager/backend/internal/validation"
)

// DefaultDebounce is how long the watcher waits for a burst of file events to
// settle before reloading.
const DefaultDebounce = 250 * time.Millisecond

// Watcher re-registers definitions from a directory when its YAML files change.
type Watcher struct {
	dir       string
	registry  *Registry
	validator *validation.Validator
	logger    Logger
	debounce  time.Duration
	fsw       *fsnotify.Watcher

	// reloaded receives the outcome of each reload; nil unless set by tests.
	reloaded chan error
}

// NewWatcher watches dir and every directory below it.
func NewWatcher(dir string, registry *Registry, v *validation.Validator, logger Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = nopLogger{}
	}
	w := &Watcher{
		dir:       dir,
		registry:  registry,
		validator: v,
		logger:    logger,
		debounce:  DefaultDebounce,
		fsw:       fsw,
	}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes file events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				w.watchIfDir(ev.Name)
			}
			if !isDefinitionFile(ev.Name) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("definition watcher error", "error", err)
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	n, err := RegisterDir(w.registry, w.dir, w.validator)
	if err != nil {
		w.logger.Error("reload workflow definitions", "dir", w.dir, "error", err)
	} else {
		w.logger.Info("workflow definitions reloaded", "dir", w.dir, "count", n)
	}
	if w.reloaded != nil {
		w.reloaded <- err
	}
}

func (w *Watcher) watchIfDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() {
			return w.fsw.Add(p)
		}
		return nil
	})
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func isDefinitionFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
