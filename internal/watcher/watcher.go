package watcher

// The watcher reports changes to the files of the last build. It watches the
// directories that contain those files, since editors often replace a file by
// renaming a temporary file over it, which drops a watch on the file itself.
// Events within the debounce window are coalesced so that one save that
// touches several files triggers one rebuild.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 100 * time.Millisecond

// Paths that never trigger a rebuild even when a build reads from them
var defaultIgnores = []string{
	"**/.git/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
}

var ErrAlreadyRunning = errors.New("watcher is already running")

type Config struct {
	// Doublestar patterns matched against slash-separated absolute paths
	Ignore []string

	// Zero means the default
	Debounce time.Duration

	// Called with the sorted absolute paths that changed since the last call.
	// Calls never overlap. Changes that arrive during a call are reported by
	// the next one.
	OnChange func(ctx context.Context, changed []string) error

	// Nil means a logger that discards everything
	Logger *log.Logger
}

type Watcher struct {
	config   Config
	fsw      *fsnotify.Watcher
	ignores  []string
	debounce time.Duration
	logger   *log.Logger
	started  atomic.Bool

	mutex sync.Mutex
	files map[string]bool
	dirs  map[string]bool
}

func New(config Config) (*Watcher, error) {
	for _, pattern := range config.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pattern)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	debounce := config.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	ignores := make([]string, 0, len(defaultIgnores)+len(config.Ignore))
	ignores = append(ignores, defaultIgnores...)
	ignores = append(ignores, config.Ignore...)

	return &Watcher{
		config:   config,
		fsw:      fsw,
		ignores:  ignores,
		debounce: debounce,
		logger:   logger,
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
	}, nil
}

// SetFiles replaces the set of watched files. It is called after every build
// with the files that build read, so a file that a rebuild stops importing
// stops triggering rebuilds.
func (w *Watcher) SetFiles(paths []string) error {
	files := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, path := range paths {
		path = filepath.Clean(path)
		if w.isIgnored(path) {
			continue
		}
		files[path] = true
		dirs[filepath.Dir(path)] = true
	}

	w.mutex.Lock()
	defer w.mutex.Unlock()

	for dir := range w.dirs {
		if !dirs[dir] {
			if err := w.fsw.Remove(dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
				w.logger.Warn("stop watching directory", "dir", dir, "err", err)
			}
		}
	}
	for dir := range dirs {
		if !w.dirs[dir] {
			if err := w.fsw.Add(dir); err != nil {
				return fmt.Errorf("watch directory %q: %w", dir, err)
			}
		}
	}
	w.files = files
	w.dirs = dirs
	w.logger.Debug("watching files", "files", len(files), "dirs", len(dirs))
	return nil
}

func (w *Watcher) isWatched(path string) bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.files[path]
}

func (w *Watcher) isIgnored(path string) bool {
	normalized := filepath.ToSlash(path)
	for _, pattern := range w.ignores {
		if matched, err := doublestar.Match(pattern, normalized); err == nil && matched {
			return true
		}
	}
	return false
}

// Run blocks until the context is canceled or the file watcher fails. It
// returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer w.fsw.Close()

	var (
		mutex   sync.Mutex
		pending = make(map[string]bool)
		timer   *time.Timer
		running atomic.Bool
	)

	fire := func() {
		if ctx.Err() != nil {
			return
		}

		// A rebuild that takes longer than the debounce window must not
		// overlap the next one. Try again later instead of dropping the
		// pending changes.
		if !running.CompareAndSwap(false, true) {
			mutex.Lock()
			timer.Reset(w.debounce)
			mutex.Unlock()
			return
		}
		defer running.Store(false)

		mutex.Lock()
		changed := make([]string, 0, len(pending))
		for path := range pending {
			changed = append(changed, path)
		}
		pending = make(map[string]bool)
		mutex.Unlock()
		if len(changed) == 0 {
			return
		}
		sort.Strings(changed)

		w.logger.Debug("files changed", "paths", changed)
		if w.config.OnChange != nil {
			if err := w.config.OnChange(ctx, changed); err != nil {
				w.logger.Error("rebuild failed", "err", err)
			}
		}
	}

	defer func() {
		mutex.Lock()
		if timer != nil {
			timer.Stop()
		}
		mutex.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("file watcher event channel closed")
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			path := filepath.Clean(event.Name)
			if !w.isWatched(path) || w.isIgnored(path) {
				continue
			}

			mutex.Lock()
			pending[path] = true
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mutex.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("file watcher error channel closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("file watcher dropped events", "err", err)
				continue
			}
			return fmt.Errorf("file watcher failed: %w", err)
		}
	}
}

// Close releases the file watcher of a watcher that was never run
func (w *Watcher) Close() error {
	if w.started.Load() {
		return nil
	}
	return w.fsw.Close()
}
