package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const watchDebounce = 100 * time.Millisecond

// fileWatcher calls onChange after writes to one file settle.
// The parent directory is watched so editors that replace the file are seen.
type fileWatcher struct {
	name     string
	delay    time.Duration
	onChange func()
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher

	mu       sync.Mutex
	debounce *time.Timer
}

func newFileWatcher(path string, delay time.Duration, logger zerolog.Logger, onChange func()) (*fileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &fileWatcher{
		name:     filepath.Base(abs),
		delay:    delay,
		onChange: onChange,
		logger:   logger,
		watcher:  watcher,
	}, nil
}

// Run delivers change notifications until ctx ends.
func (w *fileWatcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	defer w.stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("watch error")
		}
	}
}

func (w *fileWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.delay, w.onChange)
}

func (w *fileWatcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
}
