package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// PolicyWatcher reloads the feature policy file whenever it changes and
// hands each successfully parsed policy to a callback. A file that fails to
// parse is logged and the previous policy stays in effect.
type PolicyWatcher struct {
	path     string
	onChange func(FeaturePolicy)
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewPolicyWatcher creates a watcher for the policy file at path.
func NewPolicyWatcher(path string, onChange func(FeaturePolicy), logger *slog.Logger) *PolicyWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PolicyWatcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins watching. The parent directory is watched rather than the
// file, since editors commonly save by writing a new file and renaming it
// over the old one.
func (pw *PolicyWatcher) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(pw.path)); err != nil {
		_ = w.Close()
		return err
	}
	pw.watcher = w

	go pw.loop()
	pw.logger.Info("config: watching feature policy", "path", pw.path)
	return nil
}

// Stop shuts the watcher down and waits for the loop to exit.
func (pw *PolicyWatcher) Stop() {
	if pw.watcher == nil {
		return
	}
	_ = pw.watcher.Close()
	<-pw.done
}

func (pw *PolicyWatcher) loop() {
	defer close(pw.done)
	for {
		select {
		case evt, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != pw.path {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pw.reload()
			}
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			pw.logger.Warn("config: policy watcher error", "error", err)
		}
	}
}

func (pw *PolicyWatcher) reload() {
	policy, err := LoadFeaturePolicy(pw.path)
	if err != nil {
		pw.logger.Warn("config: keeping previous feature policy", "path", pw.path, "error", err)
		return
	}
	pw.onChange(policy)
	pw.logger.Info("config: feature policy reloaded", "path", pw.path)
}
