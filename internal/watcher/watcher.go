// Package watcher observes the config file for external edits and emits
// debounced reload events. `msk status --watch` uses it to drop the
// validator cache when credentials change under it.
package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultDebounceDelay = 100 * time.Millisecond
	defaultEventsBuffer  = 16
	defaultErrorsBuffer  = 4
)

// Watcher monitors a single file and coalesces bursts of filesystem
// events (editors write, chmod and rename in quick succession) into one
// reload event per burst.
type Watcher struct {
	path string

	fsWatcher *fsnotify.Watcher
	delay     time.Duration

	events    chan struct{}
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once

	wg sync.WaitGroup
}

// New watches path using the default debounce delay.
func New(path string) (*Watcher, error) {
	return NewWithDebounceDelay(path, defaultDebounceDelay)
}

// NewWithDebounceDelay watches path with a configurable debounce delay.
// The file need not exist yet; its parent directory must.
func NewWithDebounceDelay(path string, delay time.Duration) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if delay <= 0 {
		delay = defaultDebounceDelay
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	// Watch the directory, not the file: atomic writers replace the file
	// by rename, which would silently detach a file-level watch.
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:      abs,
		fsWatcher: fsw,
		delay:     delay,
		events:    make(chan struct{}, defaultEventsBuffer),
		errors:    make(chan error, defaultErrorsBuffer),
		done:      make(chan struct{}),
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run()
	}()

	return w, nil
}

func (w *Watcher) run() {
	defer close(w.events)
	defer close(w.errors)

	// The timer implements trailing-edge debounce: every relevant event
	// rearms it, and only when the burst goes quiet does one reload fire.
	timer := time.NewTimer(w.delay)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-w.done:
			return
		case evt, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.relevant(evt) {
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.delay)
		case <-timer.C:
			w.emit()
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) relevant(e fsnotify.Event) bool {
	if filepath.Clean(e.Name) != w.path {
		return false
	}
	return e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0
}

// Events returns a channel receiving one value per debounced change.
func (w *Watcher) Events() <-chan struct{} { return w.events }

// Errors returns a channel of watcher errors.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Close stops the watcher and releases OS resources.
func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}

	w.closeOnce.Do(func() {
		close(w.done)
	})

	// Closing the underlying watcher unblocks the run loop.
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) emit() {
	select {
	case w.events <- struct{}{}:
	default:
		// Best-effort: drop if consumer is stalled.
	}
}

func (w *Watcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
		// Best-effort: drop if consumer is stalled.
	}
}
