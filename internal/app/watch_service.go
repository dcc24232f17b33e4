package app

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// WatchService reports changes to the config file and the effect files it
// references. Directories are watched rather than files so that editors
// replacing a file by rename are noticed.
type WatchService struct {
	files    map[string]bool
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewWatchService watches path and extra.
func NewWatchService(path string, extra []string) *WatchService {
	w := &WatchService{
		files:    make(map[string]bool),
		debounce: 500 * time.Millisecond,
	}
	for _, p := range append([]string{path}, extra...) {
		if abs, err := filepath.Abs(p); err == nil {
			w.files[abs] = true
		}
	}
	return w
}

// Start begins watching. onChange is called once per settled burst of
// changes with the file that changed last.
func (w *WatchService) Start(ctx context.Context, onChange func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dirs := make(map[string]bool)
	for f := range w.files {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return err
		}
	}
	w.watcher = watcher

	log.Info().Int("files", len(w.files)).Dur("debounce", w.debounce).Msg("Config watcher started")
	go w.watch(ctx, onChange)
	return nil
}

// Stop stops watching and cleans up resources.
func (w *WatchService) Stop() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func (w *WatchService) watch(ctx context.Context, onChange func(string)) {
	var timer *time.Timer
	var timerC <-chan time.Time
	var changed string

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.files[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("Config file change detected")
			changed = event.Name
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			log.Info().Str("path", changed).Msg("Config file changed")
			onChange(changed)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config watcher error")
		}
	}
}
