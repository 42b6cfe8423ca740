// Package filemonitor reacts to filesystem changes on watched paths.
package filemonitor

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// UpdateFn handles one filesystem event.
type UpdateFn func(*logrus.Logger, fsnotify.Event)

// Watcher invokes an update function for every event on its paths.
type Watcher struct {
	notify   *fsnotify.Watcher
	logger   *logrus.Logger
	onUpdate UpdateFn
}

// NewWatch starts monitoring the given paths. Directories are watched
// non-recursively.
func NewWatch(logger *logrus.Logger, paths []string, onUpdate UpdateFn) (*Watcher, error) {
	notify, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, path := range paths {
		if err := notify.Add(path); err != nil {
			notify.Close()
			return nil, err
		}
		logger.Debugf("watching %q", path)
	}
	return &Watcher{notify: notify, logger: logger, onUpdate: onUpdate}, nil
}

// Run dispatches events on a background goroutine until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	go func() {
		defer w.notify.Close()
		for {
			select {
			case <-ctx.Done():
				w.logger.Debug("stopping watch")
				return
			case event := <-w.notify.Events:
				w.logger.Debugf("fs event: %v", event)
				if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					// Most editors save by writing a temporary file
					// and renaming it over the original, which drops
					// the original from the watch list.
					if err := w.notify.Add(event.Name); err != nil {
						w.logger.Warnf("re-adding %q: %v", event.Name, err)
						continue
					}
				}
				if w.onUpdate != nil {
					w.onUpdate(w.logger, event)
				}
			case err := <-w.notify.Errors:
				w.logger.Warnf("watch error: %v", err)
			}
		}
	}()
}
