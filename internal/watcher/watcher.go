// Package watcher notices when the credential directory is deleted so a fresh
// pairing can start without restarting the process.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce is how long a deletion must stand before the callback runs.
// A directory that is removed and recreated within it is not reported.
const DefaultDebounce = 250 * time.Millisecond

// Watcher calls onDelete when the target path is removed. fsnotify cannot
// watch a path that may vanish, so the parent directory is watched.
type Watcher struct {
	target   string
	parent   string
	onDelete func()
	debounce time.Duration

	fsw    *fsnotify.Watcher
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
	timer   *time.Timer
}

// New creates a watcher for target.
func New(target string, onDelete func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(target)
	if err != nil {
		fsw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		target:   abs,
		parent:   filepath.Dir(abs),
		onDelete: onDelete,
		debounce: DefaultDebounce,
		fsw:      fsw,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// SetDebounce overrides DefaultDebounce. Call it before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	if _, err := os.Stat(w.parent); errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := w.fsw.Add(w.parent); err != nil {
		return err
	}

	w.running = true
	go w.loop()

	log.Info().Str("path", w.target).Msg("watching credential directory")
	return nil
}

// Stop stops watching and cancels a pending callback.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.cancel()
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.target {
				continue
			}

			switch {
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				log.Info().Str("path", w.target).Msg("credential directory removed")
				w.schedule()
			case event.Has(fsnotify.Create):
				w.cancelPending()
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil && w.timer.Stop() {
		log.Info().Str("path", w.target).Msg("credential directory recreated, ignoring removal")
	}
	w.timer = nil
}

func (w *Watcher) fire() {
	w.mu.Lock()
	w.timer = nil
	running := w.running
	w.mu.Unlock()

	if running && w.onDelete != nil {
		w.onDelete()
	}
}
