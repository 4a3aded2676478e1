package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// Watch watches configFile and calls onReload with a freshly
// parsed Config on every write or create event. A reload that fails to parse is
// logged and skipped -- the previous Config (and therefore the running
// subnet map) is left untouched, matching the ambient policy of never
// aborting a background task over a transient bad edit.
func Watch(ctx context.Context, configFile string, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return ConfigErrorFromString("watch: create watcher: %v", err)
	}
	if err := watcher.Add(configFile); err != nil {
		watcher.Close()
		return ConfigErrorFromString("watch: add %s: %v", configFile, err)
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
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(configFile)
				if err != nil {
					log.WithError(err).Warn("config: reload failed, keeping previous configuration")
					continue
				}
				log.Info("config: reloaded")
				onReload(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("config: watcher error")
			}
		}
	}()
	return nil
}
