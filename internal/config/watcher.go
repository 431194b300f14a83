package config

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
)

func newWatcher() (*fsnotify.Watcher, error) {
	return fsnotify.NewWatcher()
}

func (cm *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, changesCh chan struct{}, errorsCh chan error) {
	defer close(changesCh)
	defer close(errorsCh)
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			cm.log.Info("Configuration watcher stopped")
			return
		case event, ok := <-watcher.Events:
			if !ok {
				errorsCh <- fmt.Errorf("watcher events channel closed unexpectedly")
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if event.Name != cm.configPath {
				continue
			}

			cm.log.Debug("Configuration file changed. Reloading...")
			if err := cm.Load(); err != nil {
				cm.log.Warn("Error reloading config", "err", err)
				continue
			}

			select {
			case changesCh <- struct{}{}:
			default:
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				errorsCh <- fmt.Errorf("watcher errors channel closed unexpectedly")
				return
			}
			cm.log.Warn("Watcher error", "err", err)
		}
	}
}
