// Package watch reruns work when any of a set of files changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/interpose/internal/logging"
)

// DefaultDelay is the quiet period after the last change before a rerun.
const DefaultDelay = 100 * time.Millisecond

// Watcher errors.
var (
	ErrClosed       = errors.New("watch: watcher closed")
	ErrPathNotExist = errors.New("watch: path does not exist")
)

// Watcher watches individual files. It watches each file's directory so
// that editors which replace files on save are still seen.
type Watcher struct {
	mu sync.Mutex

	fsw   *fsnotify.Watcher
	files map[string]bool // absolute file paths
	dirs  map[string]bool // watched directories
	delay time.Duration
	log   *logging.Logger

	closed bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDelay sets the debounce delay.
func WithDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithLogger sets the watcher logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// New creates a watcher with no files.
func New(opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	w := &Watcher{
		fsw:   fsw,
		files: make(map[string]bool),
		dirs:  make(map[string]bool),
		delay: DefaultDelay,
		log:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.WithComponent("watch")
	return w, nil
}

// Add starts watching paths.
func (w *Watcher) Add(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		if _, err := os.Stat(abs); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%w: %s", ErrPathNotExist, p)
			}
			return err
		}

		dir := filepath.Dir(abs)
		if !w.dirs[dir] {
			if err := w.fsw.Add(dir); err != nil {
				return fmt.Errorf("watching %s: %w", dir, err)
			}
			w.dirs[dir] = true
		}
		w.files[abs] = true
	}
	return nil
}

// Files returns the watched files.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	files := make([]string, 0, len(w.files))
	for f := range w.files {
		files = append(files, f)
	}
	return files
}

// Run calls fn with the changed path once changes have been quiet for the
// debounce delay. Changes arriving while fn runs are coalesced into one more
// call. Run returns when ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, fn func(path string)) error {
	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		changed string
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return ErrClosed
			}
			if !w.relevant(ev) {
				continue
			}
			changed = ev.Name
			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				timer.Reset(w.delay)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.log.Debug("%s changed", changed)
			fn(changed)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return ErrClosed
			}
			w.log.WarnErr(err, "watch error")
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[abs]
}

// Close stops the watcher. A running Run returns ErrClosed.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	return w.fsw.Close()
}
