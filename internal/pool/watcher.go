package pool

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Watcher reloads the backing file into the pool when it changes.
// Reloads are debounced: rapid successive writes within the debounce
// window coalesce into one reload. Appending to the file is the
// operator-facing way to add pool capacity.
type Watcher struct {
	allocator *Allocator
	path      string
	debounce  time.Duration
	log       zerolog.Logger

	mu         sync.Mutex
	lastReload time.Time
}

func NewWatcher(allocator *Allocator, debounce time.Duration, log zerolog.Logger) *Watcher {
	return &Watcher{
		allocator: allocator,
		path:      allocator.file.Path(),
		debounce:  debounce,
		log:       log.With().Str("component", "pool-watcher").Logger(),
	}
}

// Run watches the file's directory until ctx is cancelled. Watching the
// directory instead of the file itself survives editors that replace
// the file on save.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create file watcher")
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return errors.Wrapf(err, "watch %s", dir)
	}

	w.log.Info().Str("path", w.path).Dur("debounce", w.debounce).Msg("pool file watcher started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("pool file watcher stopped")
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if !w.shouldReload() {
				continue
			}
			if _, err := w.allocator.ReplenishFromFile(ctx); err != nil {
				w.log.Error().Err(err).Msg("failed to reload pool addresses")
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("file watcher error")
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return false
	}
	return event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create)
}

// shouldReload enforces the minimum interval between reloads.
func (w *Watcher) shouldReload() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if now.Sub(w.lastReload) < w.debounce {
		return false
	}
	w.lastReload = now
	return true
}
