package file

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/logger"
)

// PolicySink receives reloaded policies.
type PolicySink interface {
	Set(p domain.Policy)
}

// Watcher reloads the policy section of the configuration file whenever the
// file changes. An invalid file is logged and the previous policy stays.
type Watcher struct {
	path string
	sink PolicySink
}

// NewWatcher creates a watcher for the configuration file at path.
func NewWatcher(path string, sink PolicySink) *Watcher {
	return &Watcher{path: path, sink: sink}
}

// Reload reads the policy once and hands it to the sink.
func (w *Watcher) Reload() error {
	policy, err := LoadPolicy(w.path)
	if err != nil {
		return err
	}
	w.sink.Set(policy)
	logger.Info("config: policy reloaded from %s (conflict=%s)", w.path, policy.Conflict)
	return nil
}

// Watch blocks until ctx is cancelled, reloading on every change.
// The directory is watched so editors that replace the file are seen.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", w.path, err)
	}
	logger.Debug("config: watching %s", w.path)

	name := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := w.Reload(); err != nil {
					logger.Warn("config: keeping previous policy: %v", err)
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			logger.Warn("config: watcher error: %v", err)
		}
	}
}
