// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of events a single save produces.
const watchDebounce = 100 * time.Millisecond

// Watch calls fn with the freshly loaded configuration every time config.json
// changes on disk, until ctx is cancelled. The directory is watched rather than
// the file so atomic replace-by-rename is seen. Load failures are passed to
// onErr (if non-nil) and watching continues.
func (s *Store) Watch(ctx context.Context, fn func(*Config), onErr func(error)) error {
	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return &Error{Kind: KindIO, Err: err}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	report := func(err error) {
		if onErr != nil {
			onErr(err)
		}
	}

	// Timer starts stopped; each relevant event re-arms it.
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	target := filepath.Clean(s.Path())

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(watchDebounce)
			}

		case <-timer.C:
			data, err := os.ReadFile(target)
			if err != nil {
				// Between remove and rename the file may briefly be absent.
				if !os.IsNotExist(err) {
					report(&Error{Kind: KindIO, Err: err})
				}
				continue
			}
			cfg, err := parse(data)
			if err != nil {
				report(err)
				continue
			}
			fn(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			report(err)
		}
	}
}
