package library

import (
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"musicman/internal/logger"
	"musicman/pkg/utils"
)

// Watcher triggers a callback when files in the library directory change.
// Events are debounced so a burst of writes (a download landing, a batch
// rewrite) produces a single rescan.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	onChange func()
	log      *logger.Logger
	stop     chan struct{}
}

// WatchDir starts watching dir. onChange runs on the watcher's goroutine
// after the debounce window closes.
func WatchDir(dir string, debounce time.Duration, log *logger.Logger, onChange func()) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, err
	}

	w := &Watcher{
		fs:       fs,
		debounce: debounce,
		onChange: onChange,
		log:      log,
		stop:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.stop)
	return w.fs.Close()
}

func (w *Watcher) run() {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-w.stop:
			timer.Stop()
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if w.log != nil {
				w.log.Debug("Library change: %s", event)
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Warn("Library watcher error: %v", err)
			}

		case <-timer.C:
			w.onChange()
		}
	}
}

// relevant filters out non-audio files and the temp siblings created by
// tag rewrites, which would otherwise trigger a rescan per write.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := event.Name
	if strings.Contains(name, "_TMP") {
		return false
	}
	return utils.IsAudioFile(name)
}
