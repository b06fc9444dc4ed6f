package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/uu-controllers/schunkgui/logging"
)

// Watcher re-reads a config file whenever it changes on disk. Only settings that can change while
// running are expected to be applied by the receiver, currently the log section.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  logging.Logger
}

// NewWatcher watches the directory holding path, since editors often replace the file rather than
// writing to it.
func NewWatcher(path string, logger logging.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create config watcher")
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		//nolint:errcheck
		fsw.Close()
		return nil, errors.Wrapf(err, "failed to watch %s", abs)
	}
	return &Watcher{path: abs, watcher: fsw, logger: logger}, nil
}

// Run delivers each successfully re-read config to onChange until ctx is done. Configs that fail
// to parse or validate are logged and skipped; the previous one stays in effect.
func (w *Watcher) Run(ctx context.Context, onChange func(*Config)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warnw("config watcher error", "error", err)
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			cfg, err := Read(w.path, w.logger)
			if err != nil {
				w.logger.Warnw("ignoring changed config", "path", w.path, "error", err)
				continue
			}
			w.logger.Infow("config changed", "path", w.path)
			onChange(cfg)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
