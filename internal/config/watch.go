package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	appLog "calgrid/internal/log"
)

// Watch reloads the config at path whenever it is written and passes the
// new value to apply. The parent directory is watched so atomic replacement
// by Save is seen too. Watching stops when ctx is done.
func Watch(ctx context.Context, path string, apply func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrapf(err, "resolve config path %s", path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create config watcher")
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "watch %s", filepath.Dir(abs))
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(abs)
				if err != nil {
					appLog.Error("config reload failed", err, "path", abs)
					continue
				}
				appLog.Info("config reloaded", "path", abs)
				apply(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				appLog.Error("config watcher error", err)
			}
		}
	}()
	return nil
}
