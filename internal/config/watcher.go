package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = time.Second

// Watcher reloads a config file on change and hands the fresh value to every
// subscriber. The parent directory is watched so editors that replace the file
// by rename are still seen.
type Watcher[T any] struct {
	path     string
	debounce time.Duration
	loader   func(path string) (T, error)
	onError  func(error)
	logger   *slog.Logger

	mu       sync.Mutex
	nextID   int
	handlers map[int]func(T)

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption[T any] func(*Watcher[T])

// WithDebounce collapses bursts of file events into one reload.
func WithDebounce[T any](d time.Duration) WatcherOption[T] {
	return func(w *Watcher[T]) { w.debounce = d }
}

// WithErrorHandler is called when the loader rejects the new file.
func WithErrorHandler[T any](fn func(error)) WatcherOption[T] {
	return func(w *Watcher[T]) { w.onError = fn }
}

// NewConfigWatcher creates a watcher for path using loader to decode it.
func NewConfigWatcher[T any](path string, loader func(string) (T, error), logger *slog.Logger, opts ...WatcherOption[T]) *Watcher[T] {
	w := &Watcher[T]{
		path:     filepath.Clean(path),
		debounce: defaultDebounce,
		loader:   loader,
		logger:   logger,
		handlers: make(map[int]func(T)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnReload subscribes fn and returns its unsubscribe function.
func (w *Watcher[T]) OnReload(fn func(T)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.handlers[id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.handlers, id)
		w.mu.Unlock()
	}
}

// Start begins watching. It fails if the directory cannot be watched.
func (w *Watcher[T]) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.fsw = fsw
	w.cancel = cancel
	w.done = make(chan struct{})

	w.logger.Info("Watching config file", "path", w.path, "debounce", w.debounce)
	go w.loop(ctx)
	return nil
}

// Stop ends the watch loop and waits for it to exit.
func (w *Watcher[T]) Stop() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	err := w.fsw.Close()
	<-w.done
	w.cancel = nil
	return err
}

func (w *Watcher[T]) loop(ctx context.Context) {
	defer close(w.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("Config file event", "op", ev.Op.String())
			timer.Reset(w.debounce)

		case <-timer.C:
			if ctx.Err() != nil {
				return
			}
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher[T]) reload() {
	value, err := w.loader(w.path)
	if err != nil {
		w.logger.Warn("Config reload rejected", "path", w.path, "error", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	ids := make([]int, 0, len(w.handlers))
	for id := range w.handlers {
		ids = append(ids, id)
	}
	handlers := make([]func(T), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		handlers = append(handlers, w.handlers[id])
	}
	w.mu.Unlock()

	w.logger.Info("Config reloaded", "path", w.path, "subscribers", len(handlers))
	for _, fn := range handlers {
		fn(value)
	}
}
