// Package watcher reports file changes in a single directory using fsnotify.
// Subdirectories are not watched.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"docwatch/internal/dw"
)

// Operation is the kind of a debounced file event.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a change to one file in the watched directory.
type FileEvent struct {
	Path      string
	Operation Operation
}

// Event converts e for the service: creations and modifications become
// EventCreated, deletions EventDeleted.
func (e FileEvent) Event() dw.Event {
	op := dw.EventCreated
	if e.Operation == OpDelete {
		op = dw.EventDeleted
	}
	return dw.Event{Op: op, Path: e.Path}
}

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period before a batch is emitted.
	Debounce time.Duration

	// BufferSize is the number of batches held before new ones are dropped.
	BufferSize int

	// Ignore reports whether a file name should be skipped.
	Ignore func(name string) bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Debounce:   500 * time.Millisecond,
		BufferSize: 100,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = d.Debounce
	}
	if o.BufferSize <= 0 {
		o.BufferSize = d.BufferSize
	}
	if o.Ignore == nil {
		o.Ignore = func(string) bool { return false }
	}
	return o
}

// Watcher watches one directory and emits debounced batches of FileEvents.
type Watcher struct {
	dir       string
	opts      Options
	logger    dw.Logger
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	errors    chan error

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a watcher for dir.
func New(dir string, opts Options, logger dw.Logger) (*Watcher, error) {
	if logger == nil {
		logger = dw.NopLogger{}
	}
	opts = opts.withDefaults()

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		dir:       abs,
		opts:      opts,
		logger:    logger,
		fsw:       fsw,
		debouncer: NewDebouncer(opts.Debounce, opts.BufferSize, logger),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}, nil
}

// Events returns the channel of debounced batches. It is closed by Stop.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.debouncer.Output()
}

// Errors returns non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Start watches until ctx is cancelled or Stop is called. It returns nil on
// Stop and the context error on cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching directory", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if filepath.Dir(path) != w.dir || w.opts.Ignore(filepath.Base(path)) {
		return
	}

	var op Operation
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return
	}

	if op != OpDelete {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return
		}
	}

	w.logger.Debug("file event", "op", op, "path", path)
	w.debouncer.Add(FileEvent{Path: path, Operation: op})
}

func (w *Watcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
		w.logger.Warn("watcher error dropped", "error", err)
	}
}

// Stop stops watching and closes the Events channel. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("closing fsnotify watcher", "error", err)
		}
		w.debouncer.Stop()
	})
}
