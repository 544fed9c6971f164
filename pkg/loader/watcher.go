package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher reports newly installed plugin directories so the host can
// register plugins without a restart.
type Watcher struct {
	watcher *fsnotify.Watcher
	log     *logrus.Logger
}

// NewWatcher watches the given plugin directories. Directories that do not
// exist yet are skipped with a log line.
func NewWatcher(dirs []string, log *logrus.Logger) (*Watcher, error) {
	if log == nil {
		log = logrus.New()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			log.Debugf("not watching missing plugin directory: %s", dir)
			continue
		}
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	return &Watcher{watcher: w, log: log}, nil
}

// Run blocks, invoking onPlugin with each plugin directory that gains a
// manifest, until the context is cancelled.
func (w *Watcher) Run(ctx context.Context, onPlugin func(dir string)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			dir := w.pluginDir(event.Name)
			if dir == "" {
				continue
			}
			w.log.WithField("dir", dir).Info("plugin install detected")
			onPlugin(dir)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("watch error")
		}
	}
}

// pluginDir maps a filesystem event to a plugin directory that has a
// manifest, or "" when the event is unrelated.
func (w *Watcher) pluginDir(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}

	dir := path
	if !info.IsDir() {
		if filepath.Base(path) != "plugin.yaml" {
			return ""
		}
		dir = filepath.Dir(path)
	}

	if _, err := os.Stat(filepath.Join(dir, "plugin.yaml")); err != nil {
		return ""
	}
	return dir
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
