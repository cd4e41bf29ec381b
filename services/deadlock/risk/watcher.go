// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package risk

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ArtifactWatcher reloads an estimator's classifier when its artifact file
// changes on disk.
//
// Description:
//
//	Watches the artifact's parent directory so that editors and deploy
//	tools that replace the file by rename are picked up. Changes are
//	debounced. A reload that fails keeps the previous classifier and logs
//	a warning.
//
// Thread Safety: Run must be called at most once.
type ArtifactWatcher struct {
	path      string
	estimator *Estimator
	logger    *slog.Logger
	debounce  time.Duration

	// reloaded is signalled after every reload attempt. Used by tests.
	reloaded chan error
}

// NewArtifactWatcher creates a watcher for path that updates estimator.
func NewArtifactWatcher(path string, estimator *Estimator, logger *slog.Logger) *ArtifactWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactWatcher{
		path:      filepath.Clean(path),
		estimator: estimator,
		logger:    logger,
		debounce:  100 * time.Millisecond,
	}
}

// Reload loads the artifact once and installs it.
func (w *ArtifactWatcher) Reload() error {
	c, err := LoadArtifact(w.path)
	if err != nil {
		return err
	}
	w.estimator.SetClassifier(c, w.path)
	return nil
}

// Run watches until ctx is cancelled.
//
// Outputs:
//
//	error - Non-nil only if the watch could not be established.
func (w *ArtifactWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create artifact watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info("watching classifier artifact", "path", w.path)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			err := w.Reload()
			if err != nil {
				w.logger.Warn("classifier reload failed, keeping previous model",
					"path", w.path, "error", err)
			} else {
				w.logger.Info("classifier reloaded", "path", w.path)
			}
			if w.reloaded != nil {
				select {
				case w.reloaded <- err:
				default:
				}
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("artifact watcher error", "error", err)
		}
	}
}
